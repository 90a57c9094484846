package auth

import (
	"net/http"
	"time"

	loggerpkg "ZKIPFS-Registry/pkg/logger"
)

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// AdminOnly 为 true 时只放行管理员主体。
	AdminOnly bool
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
}

// Middleware 返回一个 HTTP 中间件，用于处理身份认证和授权。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil || s.mode == ModeDisabled {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				s.auditLogger().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
			if cfg.AdminOnly && !subject.Admin {
				status := http.StatusForbidden
				http.Error(w, http.StatusText(status), status)
				s.auditLogger().Warn("permission_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"identity", subject.Identity,
				)
				return
			}
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			ctx := WithSubject(r.Context(), subject)
			next.ServeHTTP(aw, r.WithContext(ctx))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			s.auditLogger().Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"identity", subject.Identity,
			)
		})
	}
}

func (s *Service) auditLogger() interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
} {
	if s != nil && s.audit != nil {
		return s.audit
	}
	return loggerpkg.Audit()
}

// auditWriter 是一个包装了 http.ResponseWriter 的结构体，用于捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
