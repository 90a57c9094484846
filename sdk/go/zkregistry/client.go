package zkregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the verification registry REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Proof mirrors the registry's proof wire format. Hash fields carry
// hex-encoded 32 byte digests; byte slices are base64 encoded by
// encoding/json.
type Proof struct {
	ID                   string           `json:"id"`
	Timestamp            int64            `json:"timestamp"`
	SecurityLevel        uint32           `json:"security_level"`
	System               string           `json:"proof_system"`
	ContentHash          string           `json:"content_hash"`
	RootHash             string           `json:"root_hash"`
	FileHash             string           `json:"file_hash"`
	FileSize             uint64           `json:"file_size"`
	Receipt              []byte           `json:"receipt"`
	PublicInputs         []byte           `json:"public_inputs"`
	ImageID              string           `json:"image_id"`
	Selection            ContentSelection `json:"selection"`
	MaxAge               int64            `json:"max_age,omitempty"`
	RequiresExternalData bool             `json:"requires_external_data,omitempty"`
}

// ContentSelection mirrors the registry's content selection wire format.
type ContentSelection struct {
	Type          string `json:"type"`
	Selector      []byte `json:"selector,omitempty"`
	SelectionHash string `json:"selection_hash"`
}

// VerificationResult is the registry's verdict for a submitted proof.
type VerificationResult struct {
	Identity      string `json:"identity"`
	IsValid       bool   `json:"is_valid"`
	Timestamp     int64  `json:"timestamp"`
	Verifier      string `json:"verifier"`
	ContentHash   string `json:"content_hash"`
	RootHash      string `json:"root_hash"`
	SecurityLevel uint32 `json:"security_level"`
	System        string `json:"proof_system"`
	ResourceCost  uint64 `json:"resource_cost"`
}

// SubmitterStats aggregates a submitter's verification history.
type SubmitterStats struct {
	Total              uint64 `json:"total_verifications"`
	Successful         uint64 `json:"successful_verifications"`
	TotalResourceCost  uint64 `json:"total_resource_cost"`
	LastVerificationAt int64  `json:"last_verification_at"`
}

// RegistryStats aggregates registry-wide counters.
type RegistryStats struct {
	Total                uint64 `json:"total_verifications"`
	Successful           uint64 `json:"successful_verifications"`
	SuccessRatePerMyriad uint64 `json:"success_rate_per_myriad"`
}

// AsyncReceipt acknowledges an asynchronous submission.
type AsyncReceipt struct {
	EnvelopeID string `json:"envelope_id"`
	Identity   string `json:"identity"`
}

// Submission is the payload accepted by the submission endpoints.
type Submission struct {
	Submitter  string `json:"submitter,omitempty"`
	PaidAmount uint64 `json:"paid_amount"`
	Proof      Proof  `json:"proof"`
}

// BatchSubmission is the payload accepted by the batch endpoint.
type BatchSubmission struct {
	Submitter  string  `json:"submitter,omitempty"`
	PaidAmount uint64  `json:"paid_amount"`
	Proofs     []Proof `json:"proofs"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("zkregistry api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("zkregistry api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the registry API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken stores the bearer token attached to subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SubmitProof verifies a proof synchronously and returns the verdict.
func (c *Client) SubmitProof(ctx context.Context, submission Submission) (VerificationResult, error) {
	var result VerificationResult
	if err := c.post(ctx, "/api/v1/proofs", submission, &result); err != nil {
		return VerificationResult{}, err
	}
	return result, nil
}

// SubmitProofAsync enqueues a proof for background verification.
func (c *Client) SubmitProofAsync(ctx context.Context, submission Submission) (AsyncReceipt, error) {
	var receipt AsyncReceipt
	if err := c.post(ctx, "/api/v1/proofs/async", submission, &receipt); err != nil {
		return AsyncReceipt{}, err
	}
	return receipt, nil
}

// SubmitBatch verifies up to the registry's batch limit of proofs in one call.
func (c *Client) SubmitBatch(ctx context.Context, submission BatchSubmission) ([]VerificationResult, error) {
	var results []VerificationResult
	if err := c.post(ctx, "/api/v1/proofs/batch", submission, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetResult fetches the stored verdict for a proof identity.
func (c *Client) GetResult(ctx context.Context, identity string) (VerificationResult, error) {
	var result VerificationResult
	endpoint := "/api/v1/proofs/" + url.PathEscape(identity)
	if err := c.get(ctx, endpoint, &result); err != nil {
		return VerificationResult{}, err
	}
	return result, nil
}

// GetSubmitterStats fetches cumulative statistics for a submitter.
func (c *Client) GetSubmitterStats(ctx context.Context, submitter string) (SubmitterStats, error) {
	var stats SubmitterStats
	endpoint := "/api/v1/submitters/" + url.PathEscape(submitter) + "/stats"
	if err := c.get(ctx, endpoint, &stats); err != nil {
		return SubmitterStats{}, err
	}
	return stats, nil
}

// GetRegistryStats fetches registry-wide counters.
func (c *Client) GetRegistryStats(ctx context.Context) (RegistryStats, error) {
	var stats RegistryStats
	if err := c.get(ctx, "/api/v1/registry/stats", &stats); err != nil {
		return RegistryStats{}, err
	}
	return stats, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
