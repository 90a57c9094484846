package auth

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// 认证子系统的公共错误。
var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrPermissionDenied = errors.New("permission denied")
)

// Mode 枚举支持的认证模式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeStatic   Mode = "static"
)

// Subject 是认证通过后附加在请求上的调用方身份。Identity 是提交
// 计费使用的逻辑账户, Admin 标记注册中心管理员。
type Subject struct {
	Identity string
	Admin    bool
}

// TokenSeed 把一个 Bearer Token 绑定到一个主体。
type TokenSeed struct {
	Token    string
	Identity string
	Admin    bool
}

// Config 描述认证服务的配置。
type Config struct {
	Mode   Mode
	Tokens []TokenSeed
}

// Service 基于静态令牌目录解析 Bearer Token。
type Service struct {
	mode   Mode
	mu     sync.RWMutex
	tokens map[string]Subject
	audit  *slog.Logger
}

// NewService 按配置的令牌目录构建认证服务。
func NewService(cfg Config, audit *slog.Logger) (*Service, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDisabled
	}
	switch mode {
	case ModeDisabled, ModeStatic:
	default:
		return nil, errors.New("unsupported auth mode: " + string(mode))
	}

	tokens := make(map[string]Subject, len(cfg.Tokens))
	for _, seed := range cfg.Tokens {
		token := strings.TrimSpace(seed.Token)
		identity := strings.TrimSpace(seed.Identity)
		if token == "" || identity == "" {
			continue
		}
		tokens[token] = Subject{Identity: identity, Admin: seed.Admin}
	}
	if mode == ModeStatic && len(tokens) == 0 {
		return nil, errors.New("static auth mode requires at least one token")
	}
	return &Service{mode: mode, tokens: tokens, audit: audit}, nil
}

// Mode 返回当前的认证模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Authenticate 把 Authorization 头解析为调用方主体。
func (s *Service) Authenticate(authorization string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return nil, ErrDisabled
	}
	token := strings.TrimSpace(authorization)
	if token == "" {
		return nil, ErrMissingToken
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	s.mu.RLock()
	subject, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	return &subject, nil
}

// Grant 在运行期新增或替换一个令牌绑定。
func (s *Service) Grant(seed TokenSeed) {
	token := strings.TrimSpace(seed.Token)
	identity := strings.TrimSpace(seed.Identity)
	if token == "" || identity == "" {
		return
	}
	s.mu.Lock()
	s.tokens[token] = Subject{Identity: identity, Admin: seed.Admin}
	s.mu.Unlock()
}

// Revoke 移除一个令牌绑定。
func (s *Service) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, strings.TrimSpace(token))
	s.mu.Unlock()
}
