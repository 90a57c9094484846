// Package plugin 实现注册中心的插件宿主：验证器插件为各证明系统
// 贡献验证回调，通知插件把注册事件转发到外部系统。插件既可以进程
// 内直接注册，也可以通过 Go plugin 机制从共享库加载。
package plugin

import "context"

// Plugin 是所有插件必须实现的生命周期接口。
type Plugin interface {
	// Info 返回插件的静态元数据。
	Info() Info
	// Configure 在初始化前接收插件自己的配置块，实现可以就地补充默认值。
	Configure(cfg map[string]any) error
	// Init 完成初始化，此时尚不应产生副作用。
	Init(ctx *ExecutionContext) error
	// Start 激活插件，需要后台协程的在这里启动。
	Start(ctx *ExecutionContext) error
	// Stop 停止插件并释放资源。
	Stop(ctx *ExecutionContext) error
}

// ExecutionContext 在每个生命周期阶段传递给插件。
type ExecutionContext struct {
	// C 用于取消与超时控制。
	C context.Context
	// Config 是合并了宿主覆盖项之后的插件配置。
	Config map[string]any
	// Resources 暴露宿主提供的共享服务。
	Resources map[string]any
}

// Clone 返回浅拷贝，插件可以安全地修改其中的 map 而不影响宿主。
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	dup := &ExecutionContext{C: c.C}
	if c.Config != nil {
		dup.Config = make(map[string]any, len(c.Config))
		for k, v := range c.Config {
			dup.Config[k] = v
		}
	}
	if c.Resources != nil {
		dup.Resources = make(map[string]any, len(c.Resources))
		for k, v := range c.Resources {
			dup.Resources[k] = v
		}
	}
	return dup
}

// Option 调整插件管理器的行为。
type Option func(*Manager)

// WithLoader 替换默认的共享库加载器，测试中常用来注入假实现。
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy 设置自定义的隔离策略执行器。
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithResource 注册一个所有插件可见的共享资源。
func WithResource(key string, value any) Option {
	return func(m *Manager) {
		if key == "" || value == nil {
			return
		}
		if m.resources == nil {
			m.resources = make(map[string]any)
		}
		m.resources[key] = value
	}
}
