package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/ledger"
	"ZKIPFS-Registry/internal/notify"
	"ZKIPFS-Registry/internal/observability/alerting"
	"ZKIPFS-Registry/internal/observability/metrics"
	"ZKIPFS-Registry/internal/policy"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/pkg/logger"
)

// 注册中心层面的错误码。
const (
	CodeInsufficientFee       xerrors.Code = "INSUFFICIENT_FEE"
	CodeInvalidBatchSize      xerrors.Code = "INVALID_BATCH_SIZE"
	CodePaused                xerrors.Code = "REGISTRY_PAUSED"
	CodeInvalidParameterRange xerrors.Code = "INVALID_PARAMETER_RANGE"
)

var (
	// ErrInsufficientFee 表示支付金额低于所需手续费。
	ErrInsufficientFee = xerrors.New(CodeInsufficientFee, "支付金额不足")
	// ErrInvalidBatchSize 表示批量提交的数量超出允许范围。
	ErrInvalidBatchSize = xerrors.New(CodeInvalidBatchSize, "批量大小非法")
	// ErrPaused 表示注册中心处于暂停状态，拒绝新的提交。
	ErrPaused = xerrors.New(CodePaused, "注册中心已暂停")
	// ErrInvalidParameterRange 表示管理参数超出允许边界。
	ErrInvalidParameterRange = xerrors.New(CodeInvalidParameterRange, "参数超出允许范围")
	// ErrUnauthorized 表示调用者不是管理员。
	ErrUnauthorized = xerrors.New(xerrors.CodeUnauthorized, "需要管理员身份")
)

func init() {
	xerrors.Register(CodeInsufficientFee, xerrors.Attributes{
		Message:   "paid amount below required fee",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidBatchSize, xerrors.Attributes{
		Message:   "batch size out of range",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePaused, xerrors.Attributes{
		Message:   "registry paused",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidParameterRange, xerrors.Attributes{
		Message:   "admin parameter out of range",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// 批量与管理参数的固定边界。
const (
	// MaxBatchSize 是单次批量提交允许的最大证明数。
	MaxBatchSize = 50

	minProofAgeBound = int64(3600)        // 1 小时
	maxProofAgeBound = int64(365 * 86400) // 365 天
	defaultProofAge  = int64(30 * 86400)  // 30 天
)

// Config 描述注册中心在构造时的全部配置。构造后的变更只能通过
// 带边界校验的管理操作完成。
type Config struct {
	MinSecurityLevel uint32   `json:"min_security_level"`
	MaxProofAge      int64    `json:"max_proof_age"`
	VerificationFee  uint64   `json:"verification_fee"`
	FeeRecipient     string   `json:"fee_recipient"`
	SupportedSystems []string `json:"supported_systems"`
	AdminIdentity    string   `json:"admin_identity"`
	VerifierIdentity string   `json:"verifier_identity"`
}

func (c *Config) applyDefaults() {
	if c.MinSecurityLevel == 0 {
		c.MinSecurityLevel = 128
	}
	if c.MaxProofAge == 0 {
		c.MaxProofAge = defaultProofAge
	}
	if c.VerifierIdentity == "" {
		c.VerifierIdentity = "zkipfs-registry"
	}
}

// RegistryStats 聚合注册中心级别的验证统计。
type RegistryStats struct {
	Total      uint64 `json:"total_verifications"`
	Successful uint64 `json:"successful_verifications"`
	// SuccessRatePerMyriad 是成功率的万分数表示, floor(successful*10000/total)。
	SuccessRatePerMyriad uint64 `json:"success_rate_per_myriad"`
}

// Registry 是证明验证注册中心：组合结构校验、策略校验、分发验证、
// 去重、统计、费用结算与事件通知。同一实例上的每次提交在单一互斥
// 边界内顺序执行，对外表现为原子提交。
type Registry struct {
	mu sync.Mutex

	cfg       Config
	supported map[string]bool
	paused    bool

	store     Store
	caps      *proof.CapabilitySet
	ledger    ledger.Ledger
	publisher notify.Publisher

	logger  *slog.Logger
	alerter alerting.Dispatcher
	now     func() int64
}

// Option 定义可选配置。
type Option func(*Registry)

// WithClock 覆盖注册中心使用的时钟，主要用于测试。
func WithClock(now func() int64) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPublisher 指定事件发布器。
func WithPublisher(publisher notify.Publisher) Option {
	return func(r *Registry) {
		if publisher != nil {
			r.publisher = publisher
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(r *Registry) {
		r.alerter = dispatcher
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.logger = log
		}
	}
}

// New 构造注册中心实例。
func New(cfg Config, store Store, caps *proof.CapabilitySet, book ledger.Ledger, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置存储后端")
	}
	if caps == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置验证能力集合")
	}
	if book == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置账本")
	}
	cfg.applyDefaults()
	if cfg.MaxProofAge < minProofAgeBound || cfg.MaxProofAge > maxProofAgeBound {
		return nil, ErrInvalidParameterRange
	}
	report := policy.ValidateParams(securityParams(cfg))
	if !report.IsValid {
		return nil, ErrInvalidParameterRange
	}
	if strings.TrimSpace(cfg.FeeRecipient) == "" && cfg.VerificationFee > 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "收费模式下必须配置收费地址")
	}
	if strings.TrimSpace(cfg.AdminIdentity) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "必须配置管理员身份")
	}

	supported := make(map[string]bool, len(cfg.SupportedSystems))
	for _, system := range cfg.SupportedSystems {
		system = strings.TrimSpace(system)
		if system != "" {
			supported[system] = true
		}
	}

	r := &Registry{
		cfg:       cfg,
		supported: supported,
		store:     store,
		caps:      caps,
		ledger:    book,
		publisher: notify.LogPublisher{},
		logger:    logger.Named("registry"),
		now:       func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if len(report.Warnings) > 0 {
		r.logger.Warn("安全策略参数存在风险",
			slog.Int("risk_score", report.RiskScore),
			slog.Any("warnings", report.Warnings),
		)
	}
	return r, nil
}

// securityParams 把注册中心配置映射为安全策略参数。注册中心允许
// [80, 256] 的安全等级, 低于 128 的档位按弱安全放行并记录警告。
func securityParams(cfg Config) policy.Params {
	return policy.Params{
		SecurityLevel:     cfg.MinSecurityLevel,
		MaxProofAge:       cfg.MaxProofAge,
		AllowWeakSecurity: true,
		RequireFreshness:  true,
	}
}

// Submit 处理单笔证明提交。前置校验按固定顺序执行，首个失败即返回；
// 通过校验后的结论写入、统计更新、费用结算作为一个整体提交。
func (r *Registry) Submit(ctx context.Context, p *proof.Proof, paidAmount uint64, submitter string) (*proof.VerificationResult, error) {
	if strings.TrimSpace(submitter) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "提交者身份不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	now := r.now()

	identity, err := r.validateLocked(ctx, p, now)
	if err != nil {
		metrics.ObserveSubmission(string(xerrors.CodeOf(err)), false, time.Since(started))
		return nil, err
	}
	if paidAmount < r.cfg.VerificationFee {
		metrics.ObserveSubmission(string(CodeInsufficientFee), false, time.Since(started))
		return nil, ErrInsufficientFee
	}

	result := r.dispatchLocked(p, identity, now, started)

	stats, err := r.store.Stats(ctx, submitter)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取提交者统计失败")
	}
	stats.Total++
	if result.IsValid {
		stats.Successful++
	}
	stats.TotalResourceCost += result.ResourceCost
	stats.LastVerificationAt = now

	set := CommitSet{
		Results:    []proof.VerificationResult{result},
		Submitter:  submitter,
		Stats:      stats,
		TotalDelta: 1,
	}
	if result.IsValid {
		set.SuccessfulDelta = 1
	}

	if err := r.settleAndCommit(ctx, submitter, paidAmount, r.cfg.VerificationFee, set); err != nil {
		return nil, err
	}

	r.publishVerified(ctx, result)
	metrics.ObserveSubmission("OK", result.IsValid, time.Since(started))
	return &result, nil
}

// SubmitBatch 处理批量提交。两个批级前置条件（批量大小、总手续费）
// 任一失败则整个调用终止；此后每个条目独立处理，单个条目的失败只产生
// 一条负向结论，不回滚也不阻塞其他条目。聚合统计、聚合手续费和批量
// 完成通知各发生一次。
func (r *Registry) SubmitBatch(ctx context.Context, proofs []*proof.Proof, paidAmount uint64, submitter string) ([]proof.VerificationResult, error) {
	if strings.TrimSpace(submitter) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "提交者身份不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.paused {
		return nil, ErrPaused
	}
	if len(proofs) == 0 || len(proofs) > MaxBatchSize {
		return nil, ErrInvalidBatchSize
	}
	required := r.cfg.VerificationFee * uint64(len(proofs))
	if paidAmount < required {
		return nil, ErrInsufficientFee
	}

	now := r.now()
	results := make([]proof.VerificationResult, 0, len(proofs))
	committed := make([]proof.VerificationResult, 0, len(proofs))
	seen := make(map[proof.Hash]struct{}, len(proofs))

	var totalCost uint64
	var successful uint64

	for _, p := range proofs {
		itemStart := time.Now()
		identity, err := r.validateItemLocked(ctx, p, now, seen)
		if err != nil {
			// 条目级隔离：失败转化为负向结论, 继续处理后续条目。
			result := negativeResult(p, identity, r.cfg.VerifierIdentity, now, itemStart)
			results = append(results, result)
			totalCost += result.ResourceCost
			metrics.ObserveSubmission(string(xerrors.CodeOf(err)), false, time.Since(itemStart))
			continue
		}

		result := r.dispatchLocked(p, identity, now, itemStart)
		results = append(results, result)
		committed = append(committed, result)
		seen[identity] = struct{}{}
		totalCost += result.ResourceCost
		if result.IsValid {
			successful++
		}
		metrics.ObserveSubmission("OK", result.IsValid, time.Since(itemStart))
	}

	if len(committed) == 0 {
		// 全部条目失败时没有可落库的结论, 提交者统计保持原样,
		// 但聚合手续费仍然一次性收取。
		if err := r.ledger.Settle(ctx, submitter, r.feeRecipientLocked(), paidAmount, required); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "费用结算失败")
		}
	} else {
		stats, err := r.store.Stats(ctx, submitter)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取提交者统计失败")
		}
		stats.Total += uint64(len(committed))
		stats.Successful += successful
		for _, result := range committed {
			stats.TotalResourceCost += result.ResourceCost
		}
		stats.LastVerificationAt = now

		set := CommitSet{
			Results:         committed,
			Submitter:       submitter,
			Stats:           stats,
			TotalDelta:      uint64(len(committed)),
			SuccessfulDelta: successful,
		}

		if err := r.settleAndCommit(ctx, submitter, paidAmount, required, set); err != nil {
			return nil, err
		}
	}

	event := notify.BatchCompleted{
		EventID:          uuid.NewString(),
		Submitter:        submitter,
		TotalProofs:      len(proofs),
		SuccessfulProofs: int(successful),
		TotalCost:        totalCost,
		Timestamp:        now,
	}
	if err := r.publisher.PublishBatchCompleted(ctx, event); err != nil {
		r.logger.Warn("批量完成通知发布失败", slog.Any("error", err), slog.String("submitter", submitter))
	}
	metrics.ObserveBatch(len(proofs), int(successful))
	return results, nil
}

// validateLocked 执行单笔提交的前置校验链（不含手续费），返回证明身份。
func (r *Registry) validateLocked(ctx context.Context, p *proof.Proof, now int64) (proof.Hash, error) {
	if r.paused {
		return proof.ZeroHash, ErrPaused
	}
	return r.validateItemLocked(ctx, p, now, nil)
}

// validateItemLocked 执行条目级校验链：结构、年龄、安全等级、系统
// 支持、去重。seen 用于同一批次内的先写先得去重。
func (r *Registry) validateItemLocked(ctx context.Context, p *proof.Proof, now int64, seen map[proof.Hash]struct{}) (proof.Hash, error) {
	if !proof.StructurallyValid(p) {
		return proof.ComputeIdentity(p), proof.ErrInvalidStructure
	}
	if proof.Expired(p, now) || now-p.Timestamp > r.cfg.MaxProofAge {
		return proof.ComputeIdentity(p), proof.ErrProofTooOld
	}
	if p.SecurityLevel < r.cfg.MinSecurityLevel {
		return proof.ComputeIdentity(p), proof.ErrInsufficientLevel
	}
	if !r.supported[p.System] {
		return proof.ComputeIdentity(p), proof.ErrUnsupportedSystem
	}

	identity := proof.ComputeIdentity(p)
	if seen != nil {
		if _, dup := seen[identity]; dup {
			return identity, proof.ErrAlreadyVerified
		}
	}
	exists, err := r.store.HasResult(ctx, identity)
	if err != nil {
		return identity, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询去重状态失败")
	}
	if exists {
		return identity, proof.ErrAlreadyVerified
	}
	return identity, nil
}

// dispatchLocked 调用注入的验证谓词并构造验证结论。
func (r *Registry) dispatchLocked(p *proof.Proof, identity proof.Hash, now int64, started time.Time) proof.VerificationResult {
	isValid := r.caps.Dispatch(p)
	return proof.VerificationResult{
		Identity:      identity,
		IsValid:       isValid,
		Timestamp:     now,
		Verifier:      r.cfg.VerifierIdentity,
		ContentHash:   p.ContentHash,
		RootHash:      p.RootHash,
		SecurityLevel: p.SecurityLevel,
		System:        p.System,
		ResourceCost:  measuredCost(started),
	}
}

// settleAndCommit 先结算费用再落库；落库失败时执行账务补偿，保证
// 两侧要么同时生效要么同时回退。
func (r *Registry) feeRecipientLocked() string {
	if r.cfg.FeeRecipient == "" {
		return ledger.ReserveAccount
	}
	return r.cfg.FeeRecipient
}

func (r *Registry) settleAndCommit(ctx context.Context, submitter string, paid, fee uint64, set CommitSet) error {
	recipient := r.feeRecipientLocked()

	if err := r.ledger.Settle(ctx, submitter, recipient, paid, fee); err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "费用结算失败")
	}

	if err := r.store.Commit(ctx, set); err != nil {
		if fee > 0 {
			if reverseErr := r.ledger.Reverse(ctx, submitter, recipient, fee); reverseErr != nil {
				r.alert(ctx, alerting.Event{
					Code:       xerrors.CodeLedgerFailure,
					Message:    "落库失败后的费用补偿同样失败",
					Severity:   xerrors.SeverityCritical,
					Submitter:  submitter,
					OccurredAt: time.Now(),
				})
				r.logger.Error("费用补偿失败",
					slog.Any("error", reverseErr),
					slog.String("submitter", submitter),
				)
			}
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入验证结论失败")
	}
	return nil
}

func (r *Registry) publishVerified(ctx context.Context, result proof.VerificationResult) {
	event := notify.ProofVerified{
		EventID:   uuid.NewString(),
		Identity:  result.Identity,
		IsValid:   result.IsValid,
		Cost:      result.ResourceCost,
		Timestamp: result.Timestamp,
	}
	if err := r.publisher.PublishProofVerified(ctx, event); err != nil {
		r.logger.Warn("验证完成通知发布失败",
			slog.Any("error", err),
			slog.String("identity", result.Identity.Hex()),
		)
	}
}

func (r *Registry) alert(ctx context.Context, event alerting.Event) {
	if r.alerter == nil {
		return
	}
	if err := r.alerter.Notify(ctx, event); err != nil {
		r.logger.Warn("告警派发失败", slog.Any("error", err))
	}
}

// negativeResult 为失败条目构造负向结论，cost 为失败前实际完成的工作量。
func negativeResult(p *proof.Proof, identity proof.Hash, verifier string, now int64, started time.Time) proof.VerificationResult {
	result := proof.VerificationResult{
		Identity:     identity,
		IsValid:      false,
		Timestamp:    now,
		Verifier:     verifier,
		ResourceCost: measuredCost(started),
	}
	if p != nil {
		result.ContentHash = p.ContentHash
		result.RootHash = p.RootHash
		result.SecurityLevel = p.SecurityLevel
		result.System = p.System
	}
	return result
}

// measuredCost 将实际耗时折算为资源成本（微秒, 最小为 1）。
func measuredCost(started time.Time) uint64 {
	cost := uint64(time.Since(started).Microseconds())
	if cost == 0 {
		cost = 1
	}
	return cost
}

// Result 返回指定身份的验证结论。
func (r *Registry) Result(ctx context.Context, identity proof.Hash) (*proof.VerificationResult, error) {
	return r.store.Result(ctx, identity)
}

// IsVerified 判断指定身份是否存在验证结论。
func (r *Registry) IsVerified(ctx context.Context, identity proof.Hash) (bool, error) {
	return r.store.HasResult(ctx, identity)
}

// StatsOf 返回提交者的验证统计。
func (r *Registry) StatsOf(ctx context.Context, submitter string) (proof.VerificationStats, error) {
	return r.store.Stats(ctx, submitter)
}

// Stats 返回注册中心级别的统计信息。
func (r *Registry) Stats(ctx context.Context) (RegistryStats, error) {
	total, successful, err := r.store.Totals(ctx)
	if err != nil {
		return RegistryStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取注册中心计数失败")
	}
	stats := RegistryStats{Total: total, Successful: successful}
	if total > 0 {
		stats.SuccessRatePerMyriad = successful * 10000 / total
	}
	return stats, nil
}

// Config 返回当前配置的副本。
func (r *Registry) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.cfg
	cfg.SupportedSystems = r.supportedLocked()
	return cfg
}

// Paused 返回注册中心是否处于暂停状态。
func (r *Registry) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *Registry) supportedLocked() []string {
	systems := make([]string, 0, len(r.supported))
	for system, enabled := range r.supported {
		if enabled {
			systems = append(systems, system)
		}
	}
	return systems
}

func (r *Registry) ensureAdminLocked(caller string) error {
	if caller == "" || caller != r.cfg.AdminIdentity {
		return ErrUnauthorized
	}
	return nil
}

// SetMinSecurityLevel 更新最低安全等级，允许范围 [80, 256]。
func (r *Registry) SetMinSecurityLevel(caller string, level uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	next := r.cfg
	next.MinSecurityLevel = level
	report := policy.ValidateParams(securityParams(next))
	if !report.IsValid {
		return ErrInvalidParameterRange
	}
	r.cfg.MinSecurityLevel = level
	r.logger.Info("更新最低安全等级",
		slog.Uint64("level", uint64(level)),
		slog.Int("risk_score", report.RiskScore),
	)
	return nil
}

// SetMaxProofAge 更新最大证明年龄（秒），允许范围 [1 小时, 365 天]。
func (r *Registry) SetMaxProofAge(caller string, seconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	if seconds < minProofAgeBound || seconds > maxProofAgeBound {
		return ErrInvalidParameterRange
	}
	next := r.cfg
	next.MaxProofAge = seconds
	if report := policy.ValidateParams(securityParams(next)); len(report.Warnings) > 0 {
		r.logger.Warn("最大证明年龄偏大",
			slog.Int64("seconds", seconds),
			slog.Int("risk_score", report.RiskScore),
		)
	}
	r.cfg.MaxProofAge = seconds
	r.logger.Info("更新最大证明年龄", slog.Int64("seconds", seconds))
	return nil
}

// SetVerificationFee 更新单笔验证手续费。
func (r *Registry) SetVerificationFee(caller string, fee uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	r.cfg.VerificationFee = fee
	r.logger.Info("更新验证手续费", slog.Uint64("fee", fee))
	return nil
}

// SetFeeRecipient 更新收费地址，不允许为空。
func (r *Registry) SetFeeRecipient(caller, recipient string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return ErrInvalidParameterRange
	}
	r.cfg.FeeRecipient = recipient
	r.logger.Info("更新收费地址", slog.String("recipient", recipient))
	return nil
}

// SetProofSystemSupport 启用或停用某个证明系统。
func (r *Registry) SetProofSystemSupport(caller, system string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	system = strings.TrimSpace(system)
	if system == "" {
		return ErrInvalidParameterRange
	}
	if enabled {
		r.supported[system] = true
	} else {
		delete(r.supported, system)
	}
	r.logger.Info("更新证明系统支持", slog.String("system", system), slog.Bool("enabled", enabled))
	return nil
}

// Pause 暂停提交入口；查询与管理操作不受影响。
func (r *Registry) Pause(caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	r.paused = true
	r.logger.Warn("注册中心已暂停")
	return nil
}

// Unpause 恢复提交入口。
func (r *Registry) Unpause(caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	r.paused = false
	r.logger.Info("注册中心已恢复")
	return nil
}

// EmergencyWithdraw 将注册中心账户的累计余额提取给管理员。
func (r *Registry) EmergencyWithdraw(ctx context.Context, caller string, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureAdminLocked(caller); err != nil {
		return err
	}
	if err := r.ledger.Withdraw(ctx, r.cfg.AdminIdentity, amount); err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "紧急提取失败")
	}
	logger.Audit().Warn("紧急提取完成",
		slog.String("admin", r.cfg.AdminIdentity),
		slog.Uint64("amount", amount),
	)
	return nil
}
