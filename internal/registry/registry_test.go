package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/ledger"
	"ZKIPFS-Registry/internal/notify"
	"ZKIPFS-Registry/internal/proof"
)

const testNow = int64(1_700_000_000)

func testHash(b byte) proof.Hash {
	var h proof.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

// newTestProof 构造结构合法的测试证明。receipt 首字节决定验证谓词的结论。
func newTestProof(id string, valid bool) *proof.Proof {
	receipt := []byte{0x00, 0xaa, 0xbb}
	if valid {
		receipt[0] = 0x01
	}
	return &proof.Proof{
		ID:            id,
		Timestamp:     testNow - 60,
		SecurityLevel: 128,
		System:        "groth16",
		ContentHash:   testHash(0x11),
		RootHash:      testHash(0x22),
		FileHash:      testHash(0x33),
		FileSize:      4096,
		Receipt:       receipt,
		PublicInputs:  []byte("inputs"),
		Selection: proof.ContentSelection{
			Type:          proof.SelectionFullFile,
			SelectionHash: testHash(0x44),
		},
	}
}

func newTestCaps() *proof.CapabilitySet {
	caps := proof.NewCapabilitySet()
	caps.Register("groth16", func(receipt, _ []byte, _ proof.Hash) bool {
		return len(receipt) > 0 && receipt[0] == 0x01
	})
	return caps
}

type testEnv struct {
	registry  *Registry
	store     *MemoryStore
	ledger    *ledger.MemoryLedger
	publisher *notify.MemoryPublisher
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	store := NewMemoryStore()
	book := ledger.NewMemoryLedger()
	publisher := &notify.MemoryPublisher{}

	reg, err := New(cfg, store, newTestCaps(), book,
		WithClock(func() int64 { return testNow }),
		WithPublisher(publisher),
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return &testEnv{registry: reg, store: store, ledger: book, publisher: publisher}
}

func defaultConfig() Config {
	return Config{
		MinSecurityLevel: 128,
		VerificationFee:  10,
		FeeRecipient:     "fees:main",
		SupportedSystems: []string{"groth16"},
		AdminIdentity:    "admin",
		VerifierIdentity: "test-verifier",
	}
}

func TestSubmitRecordsResultAndSettlesFee(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	p := newTestProof("p1", true)
	result, err := env.registry.Submit(ctx, p, 25, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid result, got %+v", result)
	}
	if result.Identity != proof.ComputeIdentity(p) {
		t.Fatalf("result identity mismatch")
	}
	if result.Verifier != "test-verifier" {
		t.Fatalf("unexpected verifier %q", result.Verifier)
	}

	stored, err := env.registry.Result(ctx, result.Identity)
	if err != nil {
		t.Fatalf("result lookup: %v", err)
	}
	if stored.Identity != result.Identity || !stored.IsValid {
		t.Fatalf("stored result mismatch: %+v", stored)
	}

	verified, err := env.registry.IsVerified(ctx, result.Identity)
	if err != nil || !verified {
		t.Fatalf("expected identity to be verified, got %v %v", verified, err)
	}

	// 扣除手续费, 余额退回付款方。
	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 90 {
		t.Fatalf("expected alice balance 90, got %d", balance)
	}
	feeBalance, _ := env.ledger.Balance(ctx, "fees:main")
	if feeBalance != 10 {
		t.Fatalf("expected fee recipient balance 10, got %d", feeBalance)
	}

	events := env.publisher.VerifiedEvents()
	if len(events) != 1 || events[0].Identity != result.Identity {
		t.Fatalf("unexpected verified events: %+v", events)
	}
}

func TestSubmitDeduplicatesByIdentity(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	p := newTestProof("p1", true)
	if _, err := env.registry.Submit(ctx, p, 10, "alice"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := env.registry.Submit(ctx, p.Clone(), 10, "alice")
	if !errors.Is(err, proof.ErrAlreadyVerified) {
		t.Fatalf("expected already verified, got %v", err)
	}

	// 重复提交不得扣费也不得改变统计。
	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 90 {
		t.Fatalf("expected alice balance 90 after duplicate, got %d", balance)
	}
	stats, err := env.registry.StatsOf(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.Successful != 1 {
		t.Fatalf("unexpected stats after duplicate: %+v", stats)
	}
}

func TestSubmitRejectsInsufficientFee(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	_, err := env.registry.Submit(ctx, newTestProof("p1", true), 9, "alice")
	if !errors.Is(err, ErrInsufficientFee) {
		t.Fatalf("expected insufficient fee, got %v", err)
	}

	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 100 {
		t.Fatalf("fee must not be charged on rejection, balance %d", balance)
	}
	if verified, _ := env.registry.IsVerified(ctx, proof.ComputeIdentity(newTestProof("p1", true))); verified {
		t.Fatalf("rejected proof must not be recorded")
	}
}

func TestSubmitValidationChain(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 1000)

	malformed := newTestProof("bad", true)
	malformed.Receipt = nil
	if _, err := env.registry.Submit(ctx, malformed, 10, "alice"); !errors.Is(err, proof.ErrInvalidStructure) {
		t.Fatalf("expected invalid structure, got %v", err)
	}

	stale := newTestProof("stale", true)
	stale.Timestamp = testNow - 31*86400
	if _, err := env.registry.Submit(ctx, stale, 10, "alice"); !errors.Is(err, proof.ErrProofTooOld) {
		t.Fatalf("expected proof too old, got %v", err)
	}

	weak := newTestProof("weak", true)
	weak.SecurityLevel = 96
	if _, err := env.registry.Submit(ctx, weak, 10, "alice"); !errors.Is(err, proof.ErrInsufficientLevel) {
		t.Fatalf("expected insufficient level, got %v", err)
	}

	alien := newTestProof("alien", true)
	alien.System = "bulletproofs"
	if _, err := env.registry.Submit(ctx, alien, 10, "alice"); !errors.Is(err, proof.ErrUnsupportedSystem) {
		t.Fatalf("expected unsupported system, got %v", err)
	}

	// 自带 MaxAge 比注册中心上限更严格时优先生效。
	shortLived := newTestProof("short", true)
	shortLived.Timestamp = testNow - 120
	shortLived.MaxAge = 60
	if _, err := env.registry.Submit(ctx, shortLived, 10, "alice"); !errors.Is(err, proof.ErrProofTooOld) {
		t.Fatalf("expected short-lived proof rejected, got %v", err)
	}

	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 1000 {
		t.Fatalf("rejected submissions must not charge fees, balance %d", balance)
	}
}

func TestSubmitInvalidProofStillCommitsNegativeResult(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	p := newTestProof("cryptobad", false)
	result, err := env.registry.Submit(ctx, p, 10, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.IsValid {
		t.Fatalf("expected negative conclusion")
	}

	// 负向结论同样落库、扣费、计入统计。
	if verified, _ := env.registry.IsVerified(ctx, result.Identity); !verified {
		t.Fatalf("negative result must be recorded")
	}
	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 90 {
		t.Fatalf("expected fee charged for negative result, balance %d", balance)
	}
	stats, _ := env.registry.StatsOf(ctx, "alice")
	if stats.Total != 1 || stats.Successful != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

type commitFailStore struct {
	*MemoryStore
}

func (s *commitFailStore) Commit(context.Context, CommitSet) error {
	return fmt.Errorf("storage offline")
}

func TestSubmitReversesFeeWhenCommitFails(t *testing.T) {
	store := &commitFailStore{MemoryStore: NewMemoryStore()}
	book := ledger.NewMemoryLedger()
	book.Credit("alice", 100)

	reg, err := New(defaultConfig(), store, newTestCaps(), book,
		WithClock(func() int64 { return testNow }),
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx := context.Background()
	_, err = reg.Submit(ctx, newTestProof("p1", true), 10, "alice")
	if err == nil {
		t.Fatalf("expected submit to fail on commit")
	}
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure code, got %v", xerrors.CodeOf(err))
	}

	// 落库失败后费用整体补偿。
	balance, _ := book.Balance(ctx, "alice")
	if balance != 100 {
		t.Fatalf("expected fee reversed, balance %d", balance)
	}
	feeBalance, _ := book.Balance(ctx, "fees:main")
	if feeBalance != 0 {
		t.Fatalf("expected fee recipient empty, balance %d", feeBalance)
	}
}

func TestSubmitBatchSizeAndFeeGates(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 10000)

	if _, err := env.registry.SubmitBatch(ctx, nil, 0, "alice"); !errors.Is(err, ErrInvalidBatchSize) {
		t.Fatalf("expected invalid batch size for empty batch, got %v", err)
	}

	oversized := make([]*proof.Proof, MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = newTestProof(fmt.Sprintf("p%d", i), true)
	}
	if _, err := env.registry.SubmitBatch(ctx, oversized, 10000, "alice"); !errors.Is(err, ErrInvalidBatchSize) {
		t.Fatalf("expected invalid batch size for oversized batch, got %v", err)
	}

	pair := []*proof.Proof{newTestProof("a", true), newTestProof("b", true)}
	if _, err := env.registry.SubmitBatch(ctx, pair, 19, "alice"); !errors.Is(err, ErrInsufficientFee) {
		t.Fatalf("expected insufficient batch fee, got %v", err)
	}
}

func TestSubmitBatchIsolatesFailingItems(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 1000)

	good1 := newTestProof("good1", true)
	malformed := newTestProof("malformed", true)
	malformed.Receipt = nil
	good2 := newTestProof("good2", true)

	results, err := env.registry.SubmitBatch(ctx, []*proof.Proof{good1, malformed, good2}, 30, "alice")
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].IsValid || results[1].IsValid || !results[2].IsValid {
		t.Fatalf("unexpected validity pattern: %v %v %v",
			results[0].IsValid, results[1].IsValid, results[2].IsValid)
	}

	// 失败条目只产生负向结论, 不阻塞其余条目的落库。
	for _, p := range []*proof.Proof{good1, good2} {
		if verified, _ := env.registry.IsVerified(ctx, proof.ComputeIdentity(p)); !verified {
			t.Fatalf("expected %s committed", p.ID)
		}
	}
	if verified, _ := env.registry.IsVerified(ctx, proof.ComputeIdentity(malformed)); verified {
		t.Fatalf("malformed item must not be committed")
	}

	stats, _ := env.registry.StatsOf(ctx, "alice")
	if stats.Total != 2 || stats.Successful != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	batches := env.publisher.BatchEvents()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch event, got %d", len(batches))
	}
	if batches[0].TotalProofs != 3 || batches[0].SuccessfulProofs != 2 {
		t.Fatalf("unexpected batch event: %+v", batches[0])
	}
}

func TestSubmitBatchDeduplicatesWithinBatch(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 1000)

	p := newTestProof("dup", true)
	results, err := env.registry.SubmitBatch(ctx, []*proof.Proof{p, p.Clone()}, 20, "alice")
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].IsValid || results[1].IsValid {
		t.Fatalf("expected first occurrence to win: %v %v", results[0].IsValid, results[1].IsValid)
	}

	stats, _ := env.registry.StatsOf(ctx, "alice")
	if stats.Total != 1 {
		t.Fatalf("duplicate within batch must commit once, stats %+v", stats)
	}
}

func TestRegistryStatsSuccessRate(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 1000)

	submissions := []*proof.Proof{
		newTestProof("s1", true),
		newTestProof("s2", true),
		newTestProof("s3", false),
	}
	for _, p := range submissions {
		if _, err := env.registry.Submit(ctx, p, 10, "alice"); err != nil {
			t.Fatalf("submit %s: %v", p.ID, err)
		}
	}

	stats, err := env.registry.Stats(ctx)
	if err != nil {
		t.Fatalf("registry stats: %v", err)
	}
	if stats.Total != 3 || stats.Successful != 2 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	// floor(2*10000/3) = 6666
	if stats.SuccessRatePerMyriad != 6666 {
		t.Fatalf("expected success rate 6666, got %d", stats.SuccessRatePerMyriad)
	}
}

func TestPauseGatesSubmissionsOnly(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	p := newTestProof("p1", true)
	result, err := env.registry.Submit(ctx, p, 10, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := env.registry.Pause("alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized pause, got %v", err)
	}
	if err := env.registry.Pause("admin"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !env.registry.Paused() {
		t.Fatalf("expected paused state")
	}

	if _, err := env.registry.Submit(ctx, newTestProof("p2", true), 10, "alice"); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected paused rejection, got %v", err)
	}
	if _, err := env.registry.SubmitBatch(ctx, []*proof.Proof{newTestProof("p3", true)}, 10, "alice"); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected paused batch rejection, got %v", err)
	}

	// 查询与管理操作不受暂停影响。
	if _, err := env.registry.Result(ctx, result.Identity); err != nil {
		t.Fatalf("result lookup during pause: %v", err)
	}
	if err := env.registry.Unpause("admin"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := env.registry.Submit(ctx, newTestProof("p2", true), 10, "alice"); err != nil {
		t.Fatalf("submit after unpause: %v", err)
	}
}

func TestAdminParameterBounds(t *testing.T) {
	env := newTestEnv(t, defaultConfig())

	if err := env.registry.SetMinSecurityLevel("mallory", 192); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized caller rejected, got %v", err)
	}
	if err := env.registry.SetMinSecurityLevel("admin", 50); !errors.Is(err, ErrInvalidParameterRange) {
		t.Fatalf("expected level 50 out of range, got %v", err)
	}
	if err := env.registry.SetMinSecurityLevel("admin", 300); !errors.Is(err, ErrInvalidParameterRange) {
		t.Fatalf("expected level 300 out of range, got %v", err)
	}
	if err := env.registry.SetMaxProofAge("admin", 60); !errors.Is(err, ErrInvalidParameterRange) {
		t.Fatalf("expected age below 1h rejected, got %v", err)
	}
	if err := env.registry.SetMaxProofAge("admin", 366*86400); !errors.Is(err, ErrInvalidParameterRange) {
		t.Fatalf("expected age above 365d rejected, got %v", err)
	}
	if err := env.registry.SetFeeRecipient("admin", "  "); !errors.Is(err, ErrInvalidParameterRange) {
		t.Fatalf("expected blank recipient rejected, got %v", err)
	}

	// 合法更新立即生效于后续提交。
	if err := env.registry.SetMinSecurityLevel("admin", 192); err != nil {
		t.Fatalf("set min security level: %v", err)
	}
	env.ledger.Credit("alice", 100)
	_, err := env.registry.Submit(context.Background(), newTestProof("weak", true), 10, "alice")
	if !errors.Is(err, proof.ErrInsufficientLevel) {
		t.Fatalf("expected 128-bit proof rejected after raise, got %v", err)
	}
}

func TestSetProofSystemSupport(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	if err := env.registry.SetProofSystemSupport("admin", "groth16", false); err != nil {
		t.Fatalf("disable system: %v", err)
	}
	if _, err := env.registry.Submit(ctx, newTestProof("p1", true), 10, "alice"); !errors.Is(err, proof.ErrUnsupportedSystem) {
		t.Fatalf("expected disabled system rejected, got %v", err)
	}
	if err := env.registry.SetProofSystemSupport("admin", "groth16", true); err != nil {
		t.Fatalf("enable system: %v", err)
	}
	if _, err := env.registry.Submit(ctx, newTestProof("p1", true), 10, "alice"); err != nil {
		t.Fatalf("submit after enable: %v", err)
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	cfg := defaultConfig()
	cfg.FeeRecipient = ledger.ReserveAccount
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	if _, err := env.registry.Submit(ctx, newTestProof("p1", true), 10, "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := env.registry.EmergencyWithdraw(ctx, "mallory", 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized withdraw rejected, got %v", err)
	}
	if err := env.registry.EmergencyWithdraw(ctx, "admin", 10); err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}

	balance, _ := env.ledger.Balance(ctx, "admin")
	if balance != 10 {
		t.Fatalf("expected admin balance 10, got %d", balance)
	}
	if err := env.registry.EmergencyWithdraw(ctx, "admin", 1); err == nil {
		t.Fatalf("expected empty reserve to reject withdraw")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	store := NewMemoryStore()
	book := ledger.NewMemoryLedger()
	caps := newTestCaps()

	cfg := defaultConfig()
	cfg.MinSecurityLevel = 42
	if _, err := New(cfg, store, caps, book); !errors.Is(err, ErrInvalidParameterRange) {
		t.Fatalf("expected level bound enforced at construction, got %v", err)
	}

	cfg = defaultConfig()
	cfg.FeeRecipient = ""
	if _, err := New(cfg, store, caps, book); err == nil {
		t.Fatalf("expected fee recipient required when fee > 0")
	}

	cfg = defaultConfig()
	cfg.AdminIdentity = ""
	if _, err := New(cfg, store, caps, book); err == nil {
		t.Fatalf("expected admin identity required")
	}

	if _, err := New(defaultConfig(), nil, caps, book); err == nil {
		t.Fatalf("expected nil store rejected")
	}
}

func TestSecurityPolicyGuardsParameters(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	// 构造期与管理操作共用同一套安全策略校验, 两条路径的结论必须一致。
	for _, tc := range []struct {
		level   uint32
		wantErr bool
	}{
		{79, true},
		{80, false},
		{100, false},
		{256, false},
		{257, true},
	} {
		err := env.registry.SetMinSecurityLevel("admin", tc.level)
		if tc.wantErr && !errors.Is(err, ErrInvalidParameterRange) {
			t.Fatalf("level %d: expected ErrInvalidParameterRange, got %v", tc.level, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("level %d: unexpected error %v", tc.level, err)
		}

		cfg := defaultConfig()
		cfg.MinSecurityLevel = tc.level
		_, newErr := New(cfg, NewMemoryStore(), newTestCaps(), ledger.NewMemoryLedger())
		if (newErr != nil) != tc.wantErr {
			t.Fatalf("level %d: constructor disagrees with admin update: %v", tc.level, newErr)
		}
	}

	// 弱安全档位放行后, 新下限立即对提交生效。
	env.ledger.Credit("alice", 100)
	if err := env.registry.SetMinSecurityLevel("admin", 100); err != nil {
		t.Fatalf("set weak level: %v", err)
	}
	weak := newTestProof("weak", true)
	weak.SecurityLevel = 100
	if _, err := env.registry.Submit(ctx, weak, 10, "alice"); err != nil {
		t.Fatalf("submit with weak level: %v", err)
	}
}

func TestSubmitBatchAllFailuresLeaveStatsUntouched(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 100)

	malformed := newTestProof("bad1", true)
	malformed.Receipt = nil
	weak := newTestProof("bad2", true)
	weak.SecurityLevel = 96

	results, err := env.registry.SubmitBatch(ctx, []*proof.Proof{malformed, weak}, 20, "alice")
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if len(results) != 2 || results[0].IsValid || results[1].IsValid {
		t.Fatalf("expected 2 negative results, got %+v", results)
	}

	// 没有条目落库时不得改写提交者统计。
	stats, _ := env.registry.StatsOf(ctx, "alice")
	if stats.Total != 0 || stats.LastVerificationAt != 0 {
		t.Fatalf("stats must stay untouched, got %+v", stats)
	}
	regStats, _ := env.registry.Stats(ctx)
	if regStats.Total != 0 {
		t.Fatalf("registry counters must stay untouched, got %+v", regStats)
	}

	// 聚合手续费照常收取。
	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 80 {
		t.Fatalf("expected alice balance 80, got %d", balance)
	}
	feeBalance, _ := env.ledger.Balance(ctx, "fees:main")
	if feeBalance != 20 {
		t.Fatalf("expected fee recipient balance 20, got %d", feeBalance)
	}

	batches := env.publisher.BatchEvents()
	if len(batches) != 1 || batches[0].TotalProofs != 2 || batches[0].SuccessfulProofs != 0 {
		t.Fatalf("unexpected batch event: %+v", batches)
	}
}

func TestSubmitConcurrentDuplicatesChargeOnce(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()
	env.ledger.Credit("alice", 1000)

	p := newTestProof("racer", true)
	const workers = 32

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.registry.Submit(ctx, p.Clone(), 10, "alice")
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, proof.ErrAlreadyVerified):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// 同一证明的并发提交恰好一笔成功, 其余按重复拒绝。
	if successes != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d/%d", workers-1, successes, duplicates)
	}

	balance, _ := env.ledger.Balance(ctx, "alice")
	if balance != 990 {
		t.Fatalf("expected exactly one fee charged, balance %d", balance)
	}
	stats, _ := env.registry.StatsOf(ctx, "alice")
	if stats.Total != 1 {
		t.Fatalf("expected single committed result, stats %+v", stats)
	}
}
