// Package verifier bridges the generic plugin host and the proof capability
// set: verifier plugins contribute per-system verification callbacks which
// the registry dispatches during submission.
package verifier

import (
	"context"
	"crypto/sha256"
	"log/slog"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/pkg/logger"
	"ZKIPFS-Registry/pkg/plugin"
)

// Provider 是验证器插件需要额外实现的接口：声明自己支持的证明系统
// 及对应的验证回调。
type Provider interface {
	plugin.Plugin
	Capabilities() map[string]proof.VerifyFunc
}

// Host 管理验证器插件的生命周期，并把能力汇入 CapabilitySet。
type Host struct {
	manager *plugin.Manager
	caps    *proof.CapabilitySet
	logger  *slog.Logger
}

// NewHost 构造插件宿主。manager 可以为空，此时只支持进程内注册。
func NewHost(manager *plugin.Manager, caps *proof.CapabilitySet) *Host {
	return &Host{manager: manager, caps: caps, logger: logger.Named("verifier")}
}

// RegisterProvider 注册一个进程内的验证器插件并合并其能力。
func (h *Host) RegisterProvider(id string, provider Provider) error {
	if provider == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "verifier provider 不能为空")
	}
	if h.manager != nil {
		if err := h.manager.Register(id, provider, nil, plugin.IsolationPolicy{}); err != nil {
			return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "注册验证器插件失败")
		}
	}
	return h.merge(id, provider)
}

// Start 启动所有托管插件。
func (h *Host) Start(ctx context.Context) error {
	if h.manager == nil {
		return nil
	}
	if err := h.manager.StartAll(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "启动验证器插件失败")
	}
	return nil
}

// Stop 停止所有托管插件。
func (h *Host) Stop(ctx context.Context) error {
	if h.manager == nil {
		return nil
	}
	return h.manager.StopAll(ctx)
}

func (h *Host) merge(id string, provider Provider) error {
	for system, verify := range provider.Capabilities() {
		h.caps.Register(system, verify)
		h.logger.Info("注册证明系统", slog.String("plugin", id), slog.String("system", system))
	}
	return nil
}

// DevmodeProvider 提供一个无需真实零知识后端的摘要校验实现：
// 回执的前 32 字节必须等于 sha256(publicInputs || imageID)。
// 仅用于开发与集成测试环境。
type DevmodeProvider struct{}

// Info 实现 plugin.Plugin 接口。
func (DevmodeProvider) Info() plugin.Info {
	return plugin.Info{
		ID:       "devmode",
		Name:     "Devmode Digest Verifier",
		Version:  "1.0.0",
		Category: plugin.TypeVerifier,
	}
}

// Configure 实现 plugin.Plugin 接口。
func (DevmodeProvider) Configure(map[string]any) error { return nil }

// Init 实现 plugin.Plugin 接口。
func (DevmodeProvider) Init(*plugin.ExecutionContext) error { return nil }

// Start 实现 plugin.Plugin 接口。
func (DevmodeProvider) Start(*plugin.ExecutionContext) error { return nil }

// Stop 实现 plugin.Plugin 接口。
func (DevmodeProvider) Stop(*plugin.ExecutionContext) error { return nil }

// Capabilities 实现 Provider 接口。
func (DevmodeProvider) Capabilities() map[string]proof.VerifyFunc {
	return map[string]proof.VerifyFunc{
		"devmode": VerifyDigest,
	}
}

// VerifyDigest 是 devmode 系统的验证回调。
func VerifyDigest(receipt, publicInputs []byte, imageID proof.Hash) bool {
	if len(receipt) < sha256.Size {
		return false
	}
	digest := sha256.New()
	digest.Write(publicInputs)
	digest.Write(imageID[:])
	expected := digest.Sum(nil)
	for i := 0; i < sha256.Size; i++ {
		if receipt[i] != expected[i] {
			return false
		}
	}
	return true
}

// SealDigest 为 devmode 系统生成有效回执，供测试与本地联调使用。
func SealDigest(publicInputs []byte, imageID proof.Hash) []byte {
	digest := sha256.New()
	digest.Write(publicInputs)
	digest.Write(imageID[:])
	return digest.Sum(nil)
}

var _ Provider = DevmodeProvider{}
