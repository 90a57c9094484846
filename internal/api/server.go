package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ZKIPFS-Registry/internal/auth"
	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/ledger"
	"ZKIPFS-Registry/internal/observability/metrics"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/internal/queue"
	"ZKIPFS-Registry/internal/registry"
)

// Server 负责暴露 REST 接口，供外部提交证明与管理注册中心。
type Server struct {
	addr     string
	registry *registry.Registry
	producer queue.Producer
	auth     *auth.Service
}

// ServerOption 定义可选配置。
type ServerOption func(*Server)

// WithProducer 启用异步提交端点。
func WithProducer(producer queue.Producer) ServerOption {
	return func(s *Server) {
		s.producer = producer
	}
}

// WithAuthService 启用请求认证。
func WithAuthService(service *auth.Service) ServerOption {
	return func(s *Server) {
		s.auth = service
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, reg *registry.Registry, opts ...ServerOption) *Server {
	s := &Server{addr: addr, registry: reg}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 组装全部路由，便于测试直接探测。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	public := s.auth.Middleware(auth.MiddlewareConfig{})
	admin := s.auth.Middleware(auth.MiddlewareConfig{AdminOnly: true, AuditEvent: "admin"})

	mux.Handle("POST /api/v1/proofs", public(instrument("submit", s.handleSubmit)))
	mux.Handle("POST /api/v1/proofs/async", public(instrument("submit_async", s.handleSubmitAsync)))
	mux.Handle("POST /api/v1/proofs/batch", public(instrument("submit_batch", s.handleSubmitBatch)))
	mux.Handle("GET /api/v1/proofs/{identity}", public(instrument("result", s.handleResult)))
	mux.Handle("GET /api/v1/submitters/{submitter}/stats", public(instrument("submitter_stats", s.handleSubmitterStats)))
	mux.Handle("GET /api/v1/registry/stats", public(instrument("registry_stats", s.handleRegistryStats)))

	mux.Handle("POST /api/v1/admin/min-security-level", admin(instrument("admin_min_level", s.handleSetMinSecurityLevel)))
	mux.Handle("POST /api/v1/admin/max-proof-age", admin(instrument("admin_max_age", s.handleSetMaxProofAge)))
	mux.Handle("POST /api/v1/admin/fee", admin(instrument("admin_fee", s.handleSetFee)))
	mux.Handle("POST /api/v1/admin/fee-recipient", admin(instrument("admin_fee_recipient", s.handleSetFeeRecipient)))
	mux.Handle("POST /api/v1/admin/systems", admin(instrument("admin_systems", s.handleSetSystemSupport)))
	mux.Handle("POST /api/v1/admin/pause", admin(instrument("admin_pause", s.handlePause)))
	mux.Handle("POST /api/v1/admin/unpause", admin(instrument("admin_unpause", s.handleUnpause)))
	mux.Handle("POST /api/v1/admin/withdraw", admin(instrument("admin_withdraw", s.handleWithdraw)))

	mux.Handle("GET /healthz", instrument("healthz", s.handleHealthz))
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

type submitRequest struct {
	Submitter  string      `json:"submitter,omitempty"`
	PaidAmount uint64      `json:"paid_amount"`
	Proof      proof.Proof `json:"proof"`
}

type batchRequest struct {
	Submitter  string        `json:"submitter,omitempty"`
	PaidAmount uint64        `json:"paid_amount"`
	Proofs     []proof.Proof `json:"proofs"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}

	result, err := s.registry.Submit(r.Context(), &req.Proof, req.PaidAmount, s.submitterFor(r, req.Submitter))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitAsync(w http.ResponseWriter, r *http.Request) {
	if s.producer == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "未配置提交队列"))
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if !proof.StructurallyValid(&req.Proof) {
		writeError(w, proof.ErrInvalidStructure)
		return
	}

	envelope, err := queue.NewEnvelope(s.submitterFor(r, req.Submitter), &req.Proof, req.PaidAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := envelope.Encode()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.producer.Publish(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"envelope_id": envelope.ID,
		"identity":    proof.ComputeIdentity(&req.Proof).Hex(),
	})
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}

	proofs := make([]*proof.Proof, len(req.Proofs))
	for i := range req.Proofs {
		proofs[i] = &req.Proofs[i]
	}
	results, err := s.registry.SubmitBatch(r.Context(), proofs, req.PaidAmount, s.submitterFor(r, req.Submitter))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	identity, err := proof.ParseHash(r.PathValue("identity"))
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "证明身份格式非法"))
		return
	}
	result, err := s.registry.Result(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitterStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.StatsOf(r.Context(), r.PathValue("submitter"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRegistryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSetMinSecurityLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level uint32 `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.registry.SetMinSecurityLevel(s.adminCaller(r), req.Level); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Config())
}

func (s *Server) handleSetMaxProofAge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int64 `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.registry.SetMaxProofAge(s.adminCaller(r), req.Seconds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Config())
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fee uint64 `json:"fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.registry.SetVerificationFee(s.adminCaller(r), req.Fee); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Config())
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.registry.SetFeeRecipient(s.adminCaller(r), req.Recipient); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Config())
}

func (s *Server) handleSetSystemSupport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		System  string `json:"system"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.registry.SetProofSystemSupport(s.adminCaller(r), req.System, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Config())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Pause(s.adminCaller(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Unpause(s.adminCaller(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.registry.EmergencyWithdraw(r.Context(), s.adminCaller(r), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if s.registry.Paused() {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// submitterFor 优先使用认证主体作为提交者身份。
func (s *Server) submitterFor(r *http.Request, fallback string) string {
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		return subject.Identity
	}
	return fallback
}

// adminCaller 在认证关闭时退回配置中的管理员身份，便于本地开发。
func (s *Server) adminCaller(r *http.Request) string {
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		return subject.Identity
	}
	return s.registry.Config().AdminIdentity
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, statusOf(code), errorResponse{Code: string(code), Message: err.Error()})
}

func statusOf(code xerrors.Code) int {
	switch code {
	case proof.CodeAlreadyVerified, proof.CodeDuplicateResult, xerrors.CodeConflict:
		return http.StatusConflict
	case proof.CodeResultNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case registry.CodePaused:
		return http.StatusServiceUnavailable
	case registry.CodeInsufficientFee, ledger.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case xerrors.CodeUnauthorized:
		return http.StatusForbidden
	case proof.CodeInvalidStructure, proof.CodeProofTooOld, proof.CodeInsufficientLevel,
		proof.CodeUnsupportedSystem, registry.CodeInvalidBatchSize,
		registry.CodeInvalidParameterRange, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// instrument 在请求完成后上报 HTTP 指标。
func instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
