package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stdErrors "errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/internal/registry"
	"github.com/go-sql-driver/mysql"
)

func storeHash(b byte) proof.Hash {
	var h proof.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func sampleCommitSet() registry.CommitSet {
	return registry.CommitSet{
		Results: []proof.VerificationResult{{
			Identity:      storeHash(0xab),
			IsValid:       true,
			Timestamp:     1_700_000_000,
			Verifier:      "test-verifier",
			ContentHash:   storeHash(0x11),
			RootHash:      storeHash(0x22),
			SecurityLevel: 128,
			System:        "groth16",
			ResourceCost:  42,
		}},
		Submitter: "alice",
		Stats: proof.VerificationStats{
			Total:              1,
			Successful:         1,
			TotalResourceCost:  42,
			LastVerificationAt: 1_700_000_000,
		},
		TotalDelta:      1,
		SuccessfulDelta: 1,
	}
}

func insertResultSQL() string {
	return `INSERT INTO verification_results
        (identity, is_valid, verified_at, verifier, content_hash, root_hash, security_level, proof_system, resource_cost)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func upsertStatsSQL() string {
	return `INSERT INTO submitter_stats
            (submitter, total, successful, total_resource_cost, last_verification_at)
            VALUES (?, ?, ?, ?, ?)
            ON DUPLICATE KEY UPDATE total = ?, successful = ?, total_resource_cost = ?, last_verification_at = ?`
}

func updateCountersSQL() string {
	return `UPDATE registry_counters SET total = total + ?, successful = successful + ? WHERE id = 1`
}

func TestRegistryStoreCommit(t *testing.T) {
	t.Parallel()

	db, drv := newStubDB(t, []stubOp{
		beginOp(),
		execOp(insertResultSQL(), stubResult{rowsAffected: 1}),
		execOp(upsertStatsSQL(), stubResult{rowsAffected: 1}),
		execOp(updateCountersSQL(), stubResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertDrained(t)
	defer db.Close()

	store := &RegistryStore{db: db}
	if err := store.Commit(context.Background(), sampleCommitSet()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestRegistryStoreCommitDuplicateRollsBack(t *testing.T) {
	t.Parallel()

	// MySQL 1062 重复键错误必须映射为领域错误并整体回滚。
	db, drv := newStubDB(t, []stubOp{
		beginOp(),
		execErrOp(insertResultSQL(), &mysql.MySQLError{Number: 1062, Message: "duplicate entry"}),
		rollbackOp(),
	})
	defer drv.assertDrained(t)
	defer db.Close()

	store := &RegistryStore{db: db}
	err := store.Commit(context.Background(), sampleCommitSet())
	if !stdErrors.Is(err, proof.ErrDuplicateResult) {
		t.Fatalf("expected ErrDuplicateResult, got %v", err)
	}
}

func TestRegistryStoreCommitCounterFailureRollsBack(t *testing.T) {
	t.Parallel()

	db, drv := newStubDB(t, []stubOp{
		beginOp(),
		execOp(insertResultSQL(), stubResult{rowsAffected: 1}),
		execOp(upsertStatsSQL(), stubResult{rowsAffected: 1}),
		execErrOp(updateCountersSQL(), stdErrors.New("lock wait timeout")),
		rollbackOp(),
	})
	defer drv.assertDrained(t)
	defer db.Close()

	store := &RegistryStore{db: db}
	err := store.Commit(context.Background(), sampleCommitSet())
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestRegistryStoreQueries(t *testing.T) {
	t.Parallel()

	identity := storeHash(0xab)
	resultRows := stubRows{
		columns: []string{"identity", "is_valid", "verified_at", "verifier", "content_hash", "root_hash", "security_level", "proof_system", "resource_cost"},
		values: [][]driver.Value{{
			identity.Hex(), int64(1), int64(1_700_000_000), "test-verifier",
			storeHash(0x11).Hex(), storeHash(0x22).Hex(), int64(128), "groth16", int64(42),
		}},
	}

	db, drv := newStubDB(t, []stubOp{
		queryOp(`SELECT identity, is_valid, verified_at, verifier, content_hash, root_hash,
        security_level, proof_system, resource_cost
        FROM verification_results WHERE identity = ?`, resultRows),
		queryOp(`SELECT identity, is_valid, verified_at, verifier, content_hash, root_hash,
        security_level, proof_system, resource_cost
        FROM verification_results WHERE identity = ?`, stubRows{columns: resultRows.columns}),
		queryOp(`SELECT 1 FROM verification_results WHERE identity = ?`, stubRows{columns: []string{"1"}}),
		queryOp(`SELECT total, successful, total_resource_cost, last_verification_at
        FROM submitter_stats WHERE submitter = ?`, stubRows{columns: []string{"total", "successful", "total_resource_cost", "last_verification_at"}}),
		queryOp(`SELECT total, successful FROM registry_counters WHERE id = 1`, stubRows{
			columns: []string{"total", "successful"},
			values:  [][]driver.Value{{int64(3), int64(2)}},
		}),
	})
	defer drv.assertDrained(t)
	defer db.Close()

	store := &RegistryStore{db: db}
	ctx := context.Background()

	result, err := store.Result(ctx, identity)
	if err != nil {
		t.Fatalf("result failed: %v", err)
	}
	if result.Identity != identity || !result.IsValid || result.ResourceCost != 42 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// 未登记的身份返回领域错误。
	if _, err := store.Result(ctx, storeHash(0xcd)); !stdErrors.Is(err, proof.ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}

	exists, err := store.HasResult(ctx, storeHash(0xcd))
	if err != nil || exists {
		t.Fatalf("expected miss, got exists=%v err=%v", exists, err)
	}

	stats, err := store.Stats(ctx, "ghost")
	if err != nil || stats.Total != 0 {
		t.Fatalf("expected zero stats, got %+v err=%v", stats, err)
	}

	total, successful, err := store.Totals(ctx)
	if err != nil || total != 3 || successful != 2 {
		t.Fatalf("unexpected totals %d/%d err=%v", total, successful, err)
	}
}

func TestRegistryStoreRunMigrations(t *testing.T) {
	t.Parallel()

	ops := []stubOp{
		execOp(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`, stubResult{}),
		queryOp(`SELECT version FROM schema_migrations`, stubRows{columns: []string{"version"}}),
		beginOp(),
	}
	for _, stmt := range readMigrationStatements() {
		ops = append(ops, execOp(stmt, stubResult{}))
	}
	ops = append(ops,
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, stubResult{rowsAffected: 1}),
		commitOp(),
	)

	db, drv := newStubDB(t, ops)
	defer drv.assertDrained(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func readMigrationStatements() []string {
	content, err := embeddedMigrations.ReadFile("0001_create_registry_tables.sql")
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		panic("no statements in migration")
	}
	return statements
}

// ---- 脚本化的假 SQL 驱动, 按声明顺序消费操作 ----

type opKind int

const (
	opExec opKind = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type stubOp struct {
	kind  opKind
	query string
	res   stubResult
	rows  stubRows
	err   error
}

type stubResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r stubResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type stubRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

type stubDriver struct {
	ops []stubOp
	idx int32
}

var stubSeq atomic.Int32

func newStubDB(t *testing.T, ops []stubOp) (*sql.DB, *stubDriver) {
	t.Helper()

	drv := &stubDriver{ops: ops}
	name := fmt.Sprintf("stub-mysql-%d", stubSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open stub db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, res stubResult) stubOp {
	return stubOp{kind: opExec, query: query, res: res}
}

func execErrOp(query string, err error) stubOp {
	return stubOp{kind: opExec, query: query, err: err}
}

func queryOp(query string, rows stubRows) stubOp {
	return stubOp{kind: opQuery, query: query, rows: rows}
}

func beginOp() stubOp { return stubOp{kind: opBegin} }

func commitOp() stubOp { return stubOp{kind: opCommit} }

func rollbackOp() stubOp { return stubOp{kind: opRollback} }

func (d *stubDriver) assertDrained(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return &stubConn{driver: d}, nil
}

func (d *stubDriver) next(expected opKind, query string) (*stubOp, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.kind != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.kind)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" {
		want := normalizeSQL(op.query)
		got := normalizeSQL(query)
		if want != got {
			return nil, fmt.Errorf("unexpected query. want %q got %q", want, got)
		}
	}
	return op, nil
}

type stubConn struct {
	driver *stubDriver
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &stubTx{driver: c.driver}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.res, nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &stubRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *stubConn) Ping(context.Context) error { return nil }

type stubTx struct {
	driver *stubDriver
}

func (t *stubTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *stubTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
