package registry

import (
	"context"

	"ZKIPFS-Registry/internal/proof"
)

// CommitSet 聚合一次提交需要原子落库的全部状态变更：
// 新增的验证结论、提交者统计的最新值以及注册中心计数器增量。
type CommitSet struct {
	Results         []proof.VerificationResult
	Submitter       string
	Stats           proof.VerificationStats
	TotalDelta      uint64
	SuccessfulDelta uint64
}

// Store 抽象验证结论与统计数据的持久化接口。Commit 必须整体成功或
// 整体失败；发现重复的证明身份时返回 proof.ErrDuplicateResult 且不
// 落任何数据。
type Store interface {
	Result(ctx context.Context, identity proof.Hash) (*proof.VerificationResult, error)
	HasResult(ctx context.Context, identity proof.Hash) (bool, error)
	Stats(ctx context.Context, submitter string) (proof.VerificationStats, error)
	Totals(ctx context.Context) (total, successful uint64, err error)
	Commit(ctx context.Context, set CommitSet) error
	Close() error
}
