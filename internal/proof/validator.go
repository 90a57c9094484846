package proof

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"sync"
)

// 证明结构校验使用的大小与安全等级边界。
const (
	// MaxReceiptSize 是 receipt 载荷的最大长度（1 MiB）。
	MaxReceiptSize = 1 << 20
	// MaxPublicInputsSize 是 public inputs 的最大长度（64 KiB）。
	MaxPublicInputsSize = 64 << 10
	// MinSecurityLevel 是可接受的最低安全等级（bits）。
	MinSecurityLevel = 80
	// MaxSecurityLevel 是可接受的最高安全等级（bits）。
	MaxSecurityLevel = 256
)

// StructurallyValid 对证明做纯结构校验：必填字段非空、大小在界内。
// 校验不涉及任何密码学判断。
func StructurallyValid(p *Proof) bool {
	if p == nil {
		return false
	}
	if strings.TrimSpace(p.ID) == "" {
		return false
	}
	if p.Timestamp <= 0 {
		return false
	}
	if p.ContentHash.IsZero() || p.RootHash.IsZero() || p.FileHash.IsZero() {
		return false
	}
	if p.Selection.SelectionHash.IsZero() || !p.Selection.Type.Valid() {
		return false
	}
	if len(p.Receipt) == 0 || len(p.Receipt) > MaxReceiptSize {
		return false
	}
	if len(p.PublicInputs) > MaxPublicInputsSize {
		return false
	}
	if p.SecurityLevel < MinSecurityLevel || p.SecurityLevel > MaxSecurityLevel {
		return false
	}
	if p.FileSize == 0 {
		return false
	}
	if strings.TrimSpace(p.System) == "" {
		return false
	}
	return true
}

// ComputeIdentity 计算证明的确定性身份哈希，作为全局去重与查询键。
// 输入只包含证明的不可变字段，相同证明必然得到相同身份。
func ComputeIdentity(p *Proof) Hash {
	var identity Hash
	if p == nil {
		return identity
	}

	hasher := sha256.New()
	hasher.Write([]byte(p.ID))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(p.Timestamp))
	hasher.Write(ts[:])

	hasher.Write(p.ContentHash[:])
	hasher.Write(p.RootHash[:])
	hasher.Write(p.FileHash[:])
	hasher.Write(p.Selection.SelectionHash[:])

	receiptDigest := sha256.Sum256(p.Receipt)
	hasher.Write(receiptDigest[:])

	copy(identity[:], hasher.Sum(nil))
	return identity
}

// Expired 判断证明是否超过其自带的最大年龄。MaxAge 为 0 表示永不过期。
func Expired(p *Proof, now int64) bool {
	if p == nil {
		return true
	}
	if p.MaxAge <= 0 {
		return false
	}
	return now-p.Timestamp > p.MaxAge
}

// VerifyFunc 是注入的按证明系统验证谓词，真正的密码学校验由外部提供。
type VerifyFunc func(receipt, publicInputs []byte, imageID Hash) bool

// CapabilitySet 维护证明系统名称到验证谓词的映射，供注册中心分发调用。
type CapabilitySet struct {
	mu        sync.RWMutex
	verifiers map[string]VerifyFunc
}

// NewCapabilitySet 创建空的能力集合。
func NewCapabilitySet() *CapabilitySet {
	return &CapabilitySet{verifiers: make(map[string]VerifyFunc)}
}

// Register 注册或覆盖某个证明系统的验证谓词。
func (c *CapabilitySet) Register(system string, fn VerifyFunc) {
	system = strings.TrimSpace(system)
	if system == "" || fn == nil {
		return
	}
	c.mu.Lock()
	c.verifiers[system] = fn
	c.mu.Unlock()
}

// Supports 判断是否存在指定系统的验证谓词。
func (c *CapabilitySet) Supports(system string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	_, ok := c.verifiers[system]
	c.mu.RUnlock()
	return ok
}

// Systems 返回当前已注册的证明系统名称。
func (c *CapabilitySet) Systems() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.verifiers))
	for name := range c.verifiers {
		names = append(names, name)
	}
	return names
}

// Dispatch 查找证明对应系统的验证谓词并调用。谓词缺失时直接返回 false，
// 不调用任何外部能力。
func (c *CapabilitySet) Dispatch(p *Proof) bool {
	if c == nil || p == nil {
		return false
	}
	c.mu.RLock()
	fn, ok := c.verifiers[p.System]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return fn(p.Receipt, p.PublicInputs, p.ImageID)
}
