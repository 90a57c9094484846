package zkregistry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitProofSendsBearerToken(t *testing.T) {
	identity := strings.Repeat("ab", 32)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/proofs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var submission Submission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		if submission.PaidAmount != 10 || submission.Proof.ID != "p1" {
			t.Fatalf("unexpected submission: %+v", submission)
		}
		_ = json.NewEncoder(w).Encode(VerificationResult{Identity: identity, IsValid: true})
	})
	client.SetAccessToken("secret")

	result, err := client.SubmitProof(context.Background(), Submission{
		PaidAmount: 10,
		Proof:      Proof{ID: "p1"},
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if !result.IsValid || result.Identity != identity {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := client.AccessToken(); got != "secret" {
		t.Fatalf("expected stored token, got %q", got)
	}
}

func TestSubmitProofAsync(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/proofs/async" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(AsyncReceipt{EnvelopeID: "env-1", Identity: strings.Repeat("cd", 32)})
	})

	receipt, err := client.SubmitProofAsync(context.Background(), Submission{Proof: Proof{ID: "p1"}})
	if err != nil {
		t.Fatalf("submit async: %v", err)
	}
	if receipt.EnvelopeID != "env-1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestSubmitBatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var submission BatchSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		if len(submission.Proofs) != 2 {
			t.Fatalf("expected 2 proofs, got %d", len(submission.Proofs))
		}
		_ = json.NewEncoder(w).Encode([]VerificationResult{{IsValid: true}, {IsValid: false}})
	})

	results, err := client.SubmitBatch(context.Background(), BatchSubmission{
		PaidAmount: 20,
		Proofs:     []Proof{{ID: "a"}, {ID: "b"}},
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if len(results) != 2 || !results[0].IsValid || results[1].IsValid {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestGetEndpoints(t *testing.T) {
	identity := strings.Repeat("ef", 32)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/proofs/" + identity:
			_ = json.NewEncoder(w).Encode(VerificationResult{Identity: identity, IsValid: true})
		case "/api/v1/submitters/alice/stats":
			_ = json.NewEncoder(w).Encode(SubmitterStats{Total: 3, Successful: 2})
		case "/api/v1/registry/stats":
			_ = json.NewEncoder(w).Encode(RegistryStats{Total: 3, Successful: 2, SuccessRatePerMyriad: 6666})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	result, err := client.GetResult(ctx, identity)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("unexpected result: %+v", result)
	}

	stats, err := client.GetSubmitterStats(ctx, "alice")
	if err != nil {
		t.Fatalf("get submitter stats: %v", err)
	}
	if stats.Total != 3 || stats.Successful != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	registryStats, err := client.GetRegistryStats(ctx)
	if err != nil {
		t.Fatalf("get registry stats: %v", err)
	}
	if registryStats.SuccessRatePerMyriad != 6666 {
		t.Fatalf("unexpected registry stats: %+v", registryStats)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "ALREADY_VERIFIED",
			"message": "proof identity already verified",
		})
	})

	_, err := client.SubmitProof(context.Background(), Submission{Proof: Proof{ID: "p1"}})
	if err == nil {
		t.Fatalf("expected error from conflict response")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "ALREADY_VERIFIED" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("://bad", nil); err == nil {
		t.Fatalf("expected malformed url rejected")
	}
	client, err := NewClient("http://localhost:8080", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.AccessToken() != "" {
		t.Fatalf("expected empty token by default")
	}
}
