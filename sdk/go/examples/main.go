package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"ZKIPFS-Registry/sdk/go/zkregistry"
)

const demoIdentity = "8a3c1f0d5b2e4a69c7d8e9f0a1b2c3d4e5f60718293a4b5c6d7e8f9012345678"

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/proofs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(zkregistry.VerificationResult{
			Identity:      demoIdentity,
			IsValid:       true,
			Timestamp:     time.Now().Unix(),
			Verifier:      "zkipfs-registry",
			SecurityLevel: 128,
			System:        "devmode",
			ResourceCost:  42,
		})
	})
	mux.HandleFunc("/api/v1/proofs/", func(w http.ResponseWriter, r *http.Request) {
		identity := strings.TrimPrefix(r.URL.Path, "/api/v1/proofs/")
		_ = json.NewEncoder(w).Encode(zkregistry.VerificationResult{
			Identity: identity,
			IsValid:  true,
			System:   "devmode",
		})
	})
	mux.HandleFunc("/api/v1/registry/stats", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(zkregistry.RegistryStats{
			Total:                3,
			Successful:           2,
			SuccessRatePerMyriad: 6666,
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := zkregistry.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	client.SetAccessToken("demo-token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.SubmitProof(ctx, zkregistry.Submission{
		Submitter:  "demo",
		PaidAmount: 100,
		Proof: zkregistry.Proof{
			ID:            "proof-demo",
			Timestamp:     time.Now().Unix(),
			SecurityLevel: 128,
			System:        "devmode",
			FileSize:      1024,
		},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("proof %s verified valid=%v cost=%d\n", result.Identity, result.IsValid, result.ResourceCost)

	lookup, err := client.GetResult(ctx, demoIdentity)
	if err != nil {
		panic(err)
	}
	fmt.Printf("stored verdict for %s: valid=%v\n", lookup.Identity, lookup.IsValid)

	stats, err := client.GetRegistryStats(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("registry totals: %d/%d (rate %d/10000)\n", stats.Successful, stats.Total, stats.SuccessRatePerMyriad)
}
