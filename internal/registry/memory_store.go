package registry

import (
	"context"
	"sync"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/proof"
)

// MemoryStore 以内存方式保存验证结论与统计，主要用于测试和单机部署。
type MemoryStore struct {
	mu         sync.RWMutex
	results    map[proof.Hash]proof.VerificationResult
	stats      map[string]proof.VerificationStats
	total      uint64
	successful uint64
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[proof.Hash]proof.VerificationResult),
		stats:   make(map[string]proof.VerificationStats),
	}
}

// Result 返回指定身份的验证结论。
func (m *MemoryStore) Result(_ context.Context, identity proof.Hash) (*proof.VerificationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[identity]
	if !ok {
		return nil, proof.ErrResultNotFound
	}
	clone := result
	return &clone, nil
}

// HasResult 判断指定身份是否已有验证结论。
func (m *MemoryStore) HasResult(_ context.Context, identity proof.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.results[identity]
	return ok, nil
}

// Stats 返回提交者的统计信息，不存在时返回零值。
func (m *MemoryStore) Stats(_ context.Context, submitter string) (proof.VerificationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats[submitter], nil
}

// Totals 返回注册中心级别的计数器。
func (m *MemoryStore) Totals(_ context.Context) (uint64, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, m.successful, nil
}

// Commit 原子写入一组验证结论与统计更新。任何一条结论的身份已存在
// 时整体失败，不落任何数据。
func (m *MemoryStore) Commit(_ context.Context, set CommitSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set.Submitter == "" && len(set.Results) > 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "提交者身份不能为空")
	}

	seen := make(map[proof.Hash]struct{}, len(set.Results))
	for _, result := range set.Results {
		if _, ok := m.results[result.Identity]; ok {
			return proof.ErrDuplicateResult
		}
		if _, ok := seen[result.Identity]; ok {
			return proof.ErrDuplicateResult
		}
		seen[result.Identity] = struct{}{}
	}

	for _, result := range set.Results {
		m.results[result.Identity] = result
	}
	if set.Submitter != "" {
		m.stats[set.Submitter] = set.Stats
	}
	m.total += set.TotalDelta
	m.successful += set.SuccessfulDelta
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
