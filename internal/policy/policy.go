package policy

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"ZKIPFS-Registry/internal/proof"
)

// 时间相关的秒数常量。
const (
	hour = int64(3600)
	day  = 24 * hour
)

// 风险评分的分档惩罚值。数值源自既有系统的经验值，保留为可调变量
// 以便不同部署按需收紧或放宽。
var (
	PenaltyLevelBelow128 = 40
	PenaltyLevelBelow192 = 20
	PenaltyLevelBelow256 = 10

	PenaltyAgeOver30Days = 30
	PenaltyAgeOver7Days  = 15
	PenaltyAgeOver1Day   = 5

	PenaltyLevelOutOfRange = 50
	PenaltyWeakLevelLow    = 30
	PenaltyWeakLevelMid    = 20
	PenaltyLargeMaxAge     = 10
	PenaltyShortChallenge  = 5
)

// MaxRiskScore 是风险评分的上限。
const MaxRiskScore = 100

// Params 描述一组待校验的安全策略参数。
type Params struct {
	SecurityLevel     uint32 `json:"security_level"`
	MaxProofAge       int64  `json:"max_proof_age"`
	ChallengeWindow   int64  `json:"challenge_window"`
	AllowWeakSecurity bool   `json:"allow_weak_security"`
	RequireFreshness  bool   `json:"require_freshness"`
}

// Report 是参数校验的结论：错误导致参数不可用，警告仅提示，
// 风险评分为各项惩罚之和并以 MaxRiskScore 封顶。
type Report struct {
	IsValid   bool     `json:"is_valid"`
	Warnings  []string `json:"warnings,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	RiskScore int      `json:"risk_score"`
}

// ValidateParams 对安全策略参数做纯规则校验。
func ValidateParams(params Params) Report {
	report := Report{IsValid: true}
	risk := 0

	if params.SecurityLevel < proof.MinSecurityLevel || params.SecurityLevel > proof.MaxSecurityLevel {
		report.Errors = append(report.Errors,
			fmt.Sprintf("安全等级 %d 超出允许区间 [%d, %d]", params.SecurityLevel, proof.MinSecurityLevel, proof.MaxSecurityLevel))
		risk += PenaltyLevelOutOfRange
	} else if params.SecurityLevel < 128 {
		message := fmt.Sprintf("安全等级 %d 低于推荐的 128 位", params.SecurityLevel)
		if params.AllowWeakSecurity {
			report.Warnings = append(report.Warnings, message)
		} else {
			report.Errors = append(report.Errors, message)
		}
		if params.SecurityLevel < 112 {
			risk += PenaltyWeakLevelLow
		} else {
			risk += PenaltyWeakLevelMid
		}
	}

	if params.MaxProofAge > 90*day {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("最大证明年龄 %d 秒过大, 过期的证明可能长期有效", params.MaxProofAge))
		risk += PenaltyLargeMaxAge
	}

	if params.ChallengeWindow > 0 && params.ChallengeWindow < hour {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("挑战窗口 %d 秒过短, 可能导致正常响应超时", params.ChallengeWindow))
		risk += PenaltyShortChallenge
	}

	if risk > MaxRiskScore {
		risk = MaxRiskScore
	}
	report.RiskScore = risk
	report.IsValid = len(report.Errors) == 0
	return report
}

// MeetsRequirements 判断证明的安全等级与新鲜度是否满足策略参数。
func MeetsRequirements(proofLevel uint32, proofTimestamp int64, params Params, now int64) bool {
	if proofLevel < params.SecurityLevel {
		return false
	}
	if !params.RequireFreshness {
		return true
	}
	return now-proofTimestamp <= params.MaxProofAge
}

// RiskScore 按安全等级与证明年龄计算 0..100 的风险评分。
func RiskScore(level uint32, age int64) int {
	risk := 0

	switch {
	case level < 128:
		risk += PenaltyLevelBelow128
	case level < 192:
		risk += PenaltyLevelBelow192
	case level < 256:
		risk += PenaltyLevelBelow256
	}

	switch {
	case age > 30*day:
		risk += PenaltyAgeOver30Days
	case age > 7*day:
		risk += PenaltyAgeOver7Days
	case age > day:
		risk += PenaltyAgeOver1Day
	}

	if risk > MaxRiskScore {
		risk = MaxRiskScore
	}
	return risk
}

// Category 表示安全等级的分类档位。
type Category string

const (
	CategoryInsufficient     Category = "insufficient"
	CategoryLow              Category = "low"
	CategoryMedium           Category = "medium"
	CategoryHigh             Category = "high"
	CategoryVeryHigh         Category = "very_high"
	CategoryQuantumResistant Category = "quantum_resistant"
)

// Categorize 按固定阈值将安全等级映射为分类档位。
func Categorize(level uint32) Category {
	switch {
	case level < 80:
		return CategoryInsufficient
	case level < 112:
		return CategoryLow
	case level < 128:
		return CategoryMedium
	case level < 192:
		return CategoryHigh
	case level < 256:
		return CategoryVeryHigh
	default:
		return CategoryQuantumResistant
	}
}

// NewNonce 生成一次性的挑战随机数。
func NewNonce() string {
	return uuid.NewString()
}

// NewChallenge 根据验证者、证明身份、随机数和熵源派生挑战值。
// 纯函数, 无任何状态副作用。
func NewChallenge(verifierID string, identity proof.Hash, nonce string, entropy []byte) proof.Hash {
	hasher := sha256.New()
	hasher.Write([]byte(verifierID))
	hasher.Write(identity[:])
	hasher.Write([]byte(nonce))

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(entropy)))
	hasher.Write(size[:])
	hasher.Write(entropy)

	var challenge proof.Hash
	copy(challenge[:], hasher.Sum(nil))
	return challenge
}

// VerifyChallengeResponse 校验挑战响应：期望值应等于 sha256(challenge || response)。
func VerifyChallengeResponse(challenge proof.Hash, response []byte, expected proof.Hash) bool {
	hasher := sha256.New()
	hasher.Write(challenge[:])
	hasher.Write(response)

	var derived proof.Hash
	copy(derived[:], hasher.Sum(nil))
	return derived == expected
}
