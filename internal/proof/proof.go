package proof

import (
	"encoding/hex"
	"fmt"

	xerrors "ZKIPFS-Registry/internal/errors"
)

// Hash 表示系统内统一使用的 32 字节哈希值。
type Hash [32]byte

// ZeroHash 是全零哈希，用于空值判断。
var ZeroHash Hash

// IsZero 判断哈希是否为空。
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Hex 返回哈希的十六进制表示。
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String 实现 fmt.Stringer。
func (h Hash) String() string {
	return h.Hex()
}

// MarshalText 实现 encoding.TextMarshaler，JSON 序列化为十六进制字符串。
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash 将十六进制字符串解析为 Hash。
func ParseHash(raw string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return h, fmt.Errorf("解析哈希失败: %w", err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("哈希长度必须为 %d 字节, 实际 %d 字节", len(h), len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}

// SelectionType 表示证明所声明的文件内容选择方式。
type SelectionType string

const (
	SelectionFullFile  SelectionType = "full_file"
	SelectionByteRange SelectionType = "byte_range"
	SelectionPattern   SelectionType = "pattern"
	SelectionMultiple  SelectionType = "multiple"
)

// Valid 判断选择类型是否为已知类型。
func (t SelectionType) Valid() bool {
	switch t {
	case SelectionFullFile, SelectionByteRange, SelectionPattern, SelectionMultiple:
		return true
	}
	return false
}

// ContentSelection 描述证明声明了文件中的哪一部分内容。
type ContentSelection struct {
	Type          SelectionType `json:"type"`
	Selector      []byte        `json:"selector,omitempty"`
	SelectionHash Hash          `json:"selection_hash"`
}

// Proof 是外部证明生成器产出的不可变证明。注册中心不解释
// receipt 与 public_inputs 的内容，只做结构和大小检查。
type Proof struct {
	ID                   string           `json:"id"`
	Timestamp            int64            `json:"timestamp"`
	SecurityLevel        uint32           `json:"security_level"`
	System               string           `json:"proof_system"`
	ContentHash          Hash             `json:"content_hash"`
	RootHash             Hash             `json:"root_hash"`
	FileHash             Hash             `json:"file_hash"`
	FileSize             uint64           `json:"file_size"`
	Receipt              []byte           `json:"receipt"`
	PublicInputs         []byte           `json:"public_inputs"`
	ImageID              Hash             `json:"image_id"`
	Selection            ContentSelection `json:"selection"`
	MaxAge               int64            `json:"max_age,omitempty"`
	RequiresExternalData bool             `json:"requires_external_data,omitempty"`
}

// VerificationResult 记录一次提交的验证结论，按证明身份去重，写入后不再修改。
type VerificationResult struct {
	Identity      Hash   `json:"identity"`
	IsValid       bool   `json:"is_valid"`
	Timestamp     int64  `json:"timestamp"`
	Verifier      string `json:"verifier"`
	ContentHash   Hash   `json:"content_hash"`
	RootHash      Hash   `json:"root_hash"`
	SecurityLevel uint32 `json:"security_level"`
	System        string `json:"proof_system"`
	ResourceCost  uint64 `json:"resource_cost"`
}

// VerificationStats 按提交者聚合验证统计，随每次成功提交单调更新。
type VerificationStats struct {
	Total              uint64 `json:"total_verifications"`
	Successful         uint64 `json:"successful_verifications"`
	TotalResourceCost  uint64 `json:"total_resource_cost"`
	LastVerificationAt int64  `json:"last_verification_at"`
}

// 证明校验相关的错误码。
const (
	CodeInvalidStructure  xerrors.Code = "INVALID_PROOF_STRUCTURE"
	CodeAlreadyVerified   xerrors.Code = "ALREADY_VERIFIED"
	CodeProofTooOld       xerrors.Code = "PROOF_TOO_OLD"
	CodeInsufficientLevel xerrors.Code = "INSUFFICIENT_SECURITY_LEVEL"
	CodeUnsupportedSystem xerrors.Code = "UNSUPPORTED_PROOF_SYSTEM"
	CodeResultNotFound    xerrors.Code = "RESULT_NOT_FOUND"
	CodeDuplicateResult   xerrors.Code = "DUPLICATE_RESULT"
)

var (
	// ErrInvalidStructure 表示证明缺少必填字段或超出大小限制。
	ErrInvalidStructure = xerrors.New(CodeInvalidStructure, "证明结构校验失败")
	// ErrAlreadyVerified 表示该证明身份已经存在验证结论。
	ErrAlreadyVerified = xerrors.New(CodeAlreadyVerified, "证明已验证过", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrProofTooOld 表示证明超出允许的最大年龄。
	ErrProofTooOld = xerrors.New(CodeProofTooOld, "证明已过期")
	// ErrInsufficientLevel 表示证明安全等级低于注册中心要求。
	ErrInsufficientLevel = xerrors.New(CodeInsufficientLevel, "证明安全等级不足")
	// ErrUnsupportedSystem 表示证明系统不在支持列表中。
	ErrUnsupportedSystem = xerrors.New(CodeUnsupportedSystem, "不支持的证明系统")
	// ErrResultNotFound 表示查询的验证结论不存在。
	ErrResultNotFound = xerrors.New(CodeResultNotFound, "验证结论不存在")
	// ErrDuplicateResult 表示存储层发现重复的证明身份写入。
	ErrDuplicateResult = xerrors.New(CodeDuplicateResult, "重复的验证结论写入")
)

func init() {
	xerrors.Register(CodeInvalidStructure, xerrors.Attributes{
		Message:   "proof failed structural validation",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeAlreadyVerified, xerrors.Attributes{
		Message:   "proof identity already verified",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeProofTooOld, xerrors.Attributes{
		Message:   "proof exceeds maximum age",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientLevel, xerrors.Attributes{
		Message:   "proof security level below minimum",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnsupportedSystem, xerrors.Attributes{
		Message:   "proof system not supported",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeResultNotFound, xerrors.Attributes{
		Message:   "verification result not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeDuplicateResult, xerrors.Attributes{
		Message:   "duplicate verification result write",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// Clone 返回证明的深拷贝，避免调用方后续修改影响内部状态。
func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Receipt = append([]byte(nil), p.Receipt...)
	clone.PublicInputs = append([]byte(nil), p.PublicInputs...)
	clone.Selection.Selector = append([]byte(nil), p.Selection.Selector...)
	return &clone
}
