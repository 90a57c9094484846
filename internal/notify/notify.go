package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/pkg/logger"
)

// ProofVerified 是单笔提交完成后的对外通知。
type ProofVerified struct {
	EventID   string     `json:"event_id"`
	Identity  proof.Hash `json:"identity"`
	IsValid   bool       `json:"is_valid"`
	Cost      uint64     `json:"cost"`
	Timestamp int64      `json:"timestamp"`
}

// BatchCompleted 是批量提交完成后的对外通知。
type BatchCompleted struct {
	EventID          string `json:"event_id"`
	Submitter        string `json:"submitter"`
	TotalProofs      int    `json:"total_proofs"`
	SuccessfulProofs int    `json:"successful_proofs"`
	TotalCost        uint64 `json:"total_cost"`
	Timestamp        int64  `json:"timestamp"`
}

// Publisher 负责将验证事件投递到外部渠道。发布失败不会回滚已提交的
// 验证结论，调用方只做日志与告警。
type Publisher interface {
	PublishProofVerified(ctx context.Context, event ProofVerified) error
	PublishBatchCompleted(ctx context.Context, event BatchCompleted) error
	Close() error
}

// FanoutPublisher 将事件广播给多个下游发布器。
type FanoutPublisher struct {
	publishers []Publisher
}

// NewFanout 创建 FanoutPublisher，忽略 nil 条目。
func NewFanout(publishers ...Publisher) *FanoutPublisher {
	set := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			set = append(set, p)
		}
	}
	return &FanoutPublisher{publishers: set}
}

// PublishProofVerified 实现 Publisher 接口。
func (f *FanoutPublisher) PublishProofVerified(ctx context.Context, event ProofVerified) error {
	var errs []error
	for i, p := range f.publishers {
		if err := p.PublishProofVerified(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// PublishBatchCompleted 实现 Publisher 接口。
func (f *FanoutPublisher) PublishBatchCompleted(ctx context.Context, event BatchCompleted) error {
	var errs []error
	for i, p := range f.publishers {
		if err := p.PublishBatchCompleted(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close 关闭所有下游发布器。
func (f *FanoutPublisher) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher 将事件写入结构化日志，是默认的发布器实现。
type LogPublisher struct{}

// PublishProofVerified 实现 Publisher 接口。
func (LogPublisher) PublishProofVerified(_ context.Context, event ProofVerified) error {
	logger.Audit().Info("proof_verified",
		slog.String("event_id", event.EventID),
		slog.String("identity", event.Identity.Hex()),
		slog.Bool("is_valid", event.IsValid),
		slog.Uint64("cost", event.Cost),
	)
	return nil
}

// PublishBatchCompleted 实现 Publisher 接口。
func (LogPublisher) PublishBatchCompleted(_ context.Context, event BatchCompleted) error {
	logger.Audit().Info("batch_verification_completed",
		slog.String("event_id", event.EventID),
		slog.String("submitter", event.Submitter),
		slog.Int("total_proofs", event.TotalProofs),
		slog.Int("successful_proofs", event.SuccessfulProofs),
		slog.Uint64("total_cost", event.TotalCost),
	)
	return nil
}

// Close 对日志发布器无需操作。
func (LogPublisher) Close() error { return nil }

// MemoryPublisher 在内存中记录事件，主要用于测试断言。
type MemoryPublisher struct {
	mu       sync.Mutex
	Verified []ProofVerified
	Batches  []BatchCompleted
}

// PublishProofVerified 实现 Publisher 接口。
func (m *MemoryPublisher) PublishProofVerified(_ context.Context, event ProofVerified) error {
	m.mu.Lock()
	m.Verified = append(m.Verified, event)
	m.mu.Unlock()
	return nil
}

// PublishBatchCompleted 实现 Publisher 接口。
func (m *MemoryPublisher) PublishBatchCompleted(_ context.Context, event BatchCompleted) error {
	m.mu.Lock()
	m.Batches = append(m.Batches, event)
	m.mu.Unlock()
	return nil
}

// Close 对内存发布器无需操作。
func (m *MemoryPublisher) Close() error { return nil }

// VerifiedEvents 返回已记录的单笔事件快照。
func (m *MemoryPublisher) VerifiedEvents() []ProofVerified {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProofVerified(nil), m.Verified...)
}

// BatchEvents 返回已记录的批量事件快照。
func (m *MemoryPublisher) BatchEvents() []BatchCompleted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BatchCompleted(nil), m.Batches...)
}

var (
	_ Publisher = (*FanoutPublisher)(nil)
	_ Publisher = LogPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
)
