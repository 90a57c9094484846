package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/internal/registry"
	"github.com/go-sql-driver/mysql"
)

// RegistryStore 使用 MySQL 持久化验证结论、提交者统计与全局计数器。
type RegistryStore struct {
	db *sql.DB
}

// NewRegistryStore 建立连接池并执行 schema 迁移。
func NewRegistryStore(ctx context.Context, cfg Config) (*RegistryStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &RegistryStore{db: db}, nil
}

// Result 查询指定身份的验证结论。
func (s *RegistryStore) Result(ctx context.Context, identity proof.Hash) (*proof.VerificationResult, error) {
	const stmt = `SELECT identity, is_valid, verified_at, verifier, content_hash, root_hash,
        security_level, proof_system, resource_cost
        FROM verification_results WHERE identity = ?`

	row := s.db.QueryRowContext(ctx, stmt, identity.Hex())

	var (
		result      proof.VerificationResult
		identityHex string
		contentHex  string
		rootHex     string
		isValid     int
	)
	if err := row.Scan(
		&identityHex,
		&isValid,
		&result.Timestamp,
		&result.Verifier,
		&contentHex,
		&rootHex,
		&result.SecurityLevel,
		&result.System,
		&result.ResourceCost,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, proof.ErrResultNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询验证结论失败")
	}
	result.IsValid = isValid == 1

	var err error
	if result.Identity, err = proof.ParseHash(identityHex); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析结论身份失败")
	}
	if result.ContentHash, err = proof.ParseHash(contentHex); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析内容哈希失败")
	}
	if result.RootHash, err = proof.ParseHash(rootHex); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析根哈希失败")
	}
	return &result, nil
}

// HasResult 判断指定身份是否已经登记过结论。
func (s *RegistryStore) HasResult(ctx context.Context, identity proof.Hash) (bool, error) {
	const stmt = `SELECT 1 FROM verification_results WHERE identity = ?`

	var one int
	if err := s.db.QueryRowContext(ctx, stmt, identity.Hex()).Scan(&one); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询结论是否存在失败")
	}
	return true, nil
}

// Stats 返回指定提交者的累计统计，未登记过的提交者返回零值。
func (s *RegistryStore) Stats(ctx context.Context, submitter string) (proof.VerificationStats, error) {
	const stmt = `SELECT total, successful, total_resource_cost, last_verification_at
        FROM submitter_stats WHERE submitter = ?`

	var stats proof.VerificationStats
	if err := s.db.QueryRowContext(ctx, stmt, strings.TrimSpace(submitter)).Scan(
		&stats.Total,
		&stats.Successful,
		&stats.TotalResourceCost,
		&stats.LastVerificationAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return proof.VerificationStats{}, nil
		}
		return proof.VerificationStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提交者统计失败")
	}
	return stats, nil
}

// Totals 返回注册中心全局计数器。
func (s *RegistryStore) Totals(ctx context.Context) (uint64, uint64, error) {
	const stmt = `SELECT total, successful FROM registry_counters WHERE id = 1`

	var total, successful uint64
	if err := s.db.QueryRowContext(ctx, stmt).Scan(&total, &successful); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询全局计数器失败")
	}
	return total, successful, nil
}

// Commit 在一个事务内写入结论、统计与计数器，遇到重复身份整体回滚。
func (s *RegistryStore) Commit(ctx context.Context, set registry.CommitSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启提交事务失败")
	}

	const insertStmt = `INSERT INTO verification_results
        (identity, is_valid, verified_at, verifier, content_hash, root_hash, security_level, proof_system, resource_cost)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, result := range set.Results {
		isValid := 0
		if result.IsValid {
			isValid = 1
		}
		if _, err := tx.ExecContext(ctx, insertStmt,
			result.Identity.Hex(),
			isValid,
			result.Timestamp,
			result.Verifier,
			result.ContentHash.Hex(),
			result.RootHash.Hex(),
			result.SecurityLevel,
			result.System,
			result.ResourceCost,
		); err != nil {
			_ = tx.Rollback()
			var mysqlErr *mysql.MySQLError
			if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
				return proof.ErrDuplicateResult
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入验证结论失败")
		}
	}

	if set.Submitter != "" {
		const statsStmt = `INSERT INTO submitter_stats
            (submitter, total, successful, total_resource_cost, last_verification_at)
            VALUES (?, ?, ?, ?, ?)
            ON DUPLICATE KEY UPDATE total = ?, successful = ?, total_resource_cost = ?, last_verification_at = ?`

		if _, err := tx.ExecContext(ctx, statsStmt,
			set.Submitter,
			set.Stats.Total,
			set.Stats.Successful,
			set.Stats.TotalResourceCost,
			set.Stats.LastVerificationAt,
			set.Stats.Total,
			set.Stats.Successful,
			set.Stats.TotalResourceCost,
			set.Stats.LastVerificationAt,
		); err != nil {
			_ = tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新提交者统计失败")
		}
	}

	const counterStmt = `UPDATE registry_counters SET total = total + ?, successful = successful + ? WHERE id = 1`
	if _, err := tx.ExecContext(ctx, counterStmt, set.TotalDelta, set.SuccessfulDelta); err != nil {
		_ = tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新全局计数器失败")
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *RegistryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ registry.Store = (*RegistryStore)(nil)
