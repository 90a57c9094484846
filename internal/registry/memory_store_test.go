package registry

import (
	"context"
	"errors"
	"testing"

	"ZKIPFS-Registry/internal/proof"
)

func sampleResult(id byte, valid bool) proof.VerificationResult {
	return proof.VerificationResult{
		Identity:      testHash(id),
		IsValid:       valid,
		Timestamp:     testNow,
		Verifier:      "test-verifier",
		ContentHash:   testHash(0x11),
		RootHash:      testHash(0x22),
		SecurityLevel: 128,
		System:        "groth16",
		ResourceCost:  7,
	}
}

func TestMemoryStoreCommitAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	set := CommitSet{
		Results:   []proof.VerificationResult{sampleResult(0x01, true), sampleResult(0x02, false)},
		Submitter: "alice",
		Stats: proof.VerificationStats{
			Total:              2,
			Successful:         1,
			TotalResourceCost:  14,
			LastVerificationAt: testNow,
		},
		TotalDelta:      2,
		SuccessfulDelta: 1,
	}
	if err := store.Commit(ctx, set); err != nil {
		t.Fatalf("commit: %v", err)
	}

	result, err := store.Result(ctx, testHash(0x01))
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !result.IsValid || result.Verifier != "test-verifier" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if _, err := store.Result(ctx, testHash(0x7f)); !errors.Is(err, proof.ErrResultNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	exists, err := store.HasResult(ctx, testHash(0x02))
	if err != nil || !exists {
		t.Fatalf("expected identity present, got %v %v", exists, err)
	}

	stats, err := store.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Successful != 1 || stats.TotalResourceCost != 14 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if unknown, _ := store.Stats(ctx, "nobody"); unknown.Total != 0 {
		t.Fatalf("unknown submitter must yield zero stats: %+v", unknown)
	}

	total, successful, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if total != 2 || successful != 1 {
		t.Fatalf("unexpected totals: %d %d", total, successful)
	}
}

func TestMemoryStoreCommitRejectsDuplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := CommitSet{
		Results:    []proof.VerificationResult{sampleResult(0x01, true)},
		Submitter:  "alice",
		Stats:      proof.VerificationStats{Total: 1, Successful: 1},
		TotalDelta: 1, SuccessfulDelta: 1,
	}
	if err := store.Commit(ctx, first); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// 已存在的身份导致整体失败, 同组其余结论不得落库。
	second := CommitSet{
		Results:    []proof.VerificationResult{sampleResult(0x02, true), sampleResult(0x01, false)},
		Submitter:  "alice",
		Stats:      proof.VerificationStats{Total: 3, Successful: 2},
		TotalDelta: 2, SuccessfulDelta: 1,
	}
	if err := store.Commit(ctx, second); !errors.Is(err, proof.ErrDuplicateResult) {
		t.Fatalf("expected duplicate result, got %v", err)
	}
	if exists, _ := store.HasResult(ctx, testHash(0x02)); exists {
		t.Fatalf("failed commit must not leave partial state")
	}
	if total, _, _ := store.Totals(ctx); total != 1 {
		t.Fatalf("counters must be unchanged after failed commit, total %d", total)
	}

	// 同一组内重复身份同样整体拒绝。
	intra := CommitSet{
		Results:   []proof.VerificationResult{sampleResult(0x03, true), sampleResult(0x03, true)},
		Submitter: "alice",
	}
	if err := store.Commit(ctx, intra); !errors.Is(err, proof.ErrDuplicateResult) {
		t.Fatalf("expected intra-set duplicate rejected, got %v", err)
	}
	if exists, _ := store.HasResult(ctx, testHash(0x03)); exists {
		t.Fatalf("intra-set duplicate must not leave partial state")
	}
}
