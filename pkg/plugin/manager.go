package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// Manager 维护已注册插件的目录并驱动其生命周期。
// 注册、启动、停止都以插件 id 为键，宿主（见 internal/verifier）在
// 启动期把配置文件声明的插件与进程内插件一并交给管理器。
type Manager struct {
	mu        sync.RWMutex
	catalog   map[string]*entry
	loader    Loader
	isolation IsolationStrategy
	resources map[string]any
	defaults  IsolationPolicy
}

// entry 是单个插件的运行时记录，State 由 entry 自己的锁保护，
// 这样启动一个慢插件不会阻塞其它插件的状态查询。
type entry struct {
	mu     sync.Mutex
	plugin Plugin
	info   Info
	state  State
	config map[string]any
	policy IsolationPolicy
}

// NewManager 按配置构建管理器，配置文件中启用的插件会被立即加载。
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		catalog:   make(map[string]*entry),
		loader:    GoPluginLoader{},
		isolation: NewIsolationStrategy(nil),
		resources: make(map[string]any),
		defaults:  cfg.Defaults,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.isolation = NewIsolationStrategy(m.isolation)

	for id, pluginCfg := range cfg.Plugins {
		if !pluginCfg.Enabled {
			continue
		}
		path := pluginCfg.Path
		if !filepath.IsAbs(path) && cfg.PluginDir != "" {
			path = filepath.Join(cfg.PluginDir, path)
		}
		policy := MergePolicies(cfg.Defaults, pluginCfg.Policy)
		if err := m.Load(id, path, cloneConfig(pluginCfg.Config), policy); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register 直接注册一个进程内插件实例。
func (m *Manager) Register(id string, p Plugin, cfg map[string]any, policy IsolationPolicy) error {
	if id == "" {
		return errors.New("插件 id 不能为空")
	}
	if p == nil {
		return errors.New("插件实现不能为空")
	}
	info := p.Info()
	if info.ID != "" && info.ID != id {
		return fmt.Errorf("插件 id 不一致: %s != %s", info.ID, id)
	}
	if info.ID == "" {
		info.ID = id
	}
	policy = MergePolicies(m.defaults, &policy)
	if err := EnsurePolicy(info, policy); err != nil {
		return err
	}
	if err := m.isolation.Validate(info, policy); err != nil {
		return err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	if err := p.Configure(cfg); err != nil {
		return fmt.Errorf("配置插件 %s 失败: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.catalog[id]; exists {
		return fmt.Errorf("插件 %s 已注册", id)
	}
	m.catalog[id] = &entry{plugin: p, info: info, state: StateRegistered, config: cfg, policy: policy}
	return nil
}

// Load 从磁盘加载共享库并注册其中的插件。
func (m *Manager) Load(id string, path string, cfg map[string]any, policy IsolationPolicy) error {
	if path == "" {
		return errors.New("插件路径不能为空")
	}
	p, err := m.loader.Load(path)
	if err != nil {
		return fmt.Errorf("加载插件 %s 失败: %w", path, err)
	}
	return m.Register(id, p, cfg, policy)
}

// Start 初始化并启动指定插件，已启动的插件是无操作。
func (m *Manager) Start(ctx context.Context, id string) error {
	ent, err := m.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.state == StateStarted {
		return nil
	}
	execCtx := &ExecutionContext{C: ctx, Config: ent.config, Resources: m.resources}
	if ent.state == StateRegistered {
		if err := ent.plugin.Init(execCtx.Clone()); err != nil {
			return fmt.Errorf("初始化插件 %s 失败: %w", id, err)
		}
		ent.state = StateInitialised
	}
	if err := m.isolation.Prepare(ent.info); err != nil {
		return fmt.Errorf("准备插件 %s 的隔离环境失败: %w", id, err)
	}
	if err := ent.plugin.Start(execCtx.Clone()); err != nil {
		_ = m.isolation.Cleanup(ent.info)
		return fmt.Errorf("启动插件 %s 失败: %w", id, err)
	}
	ent.state = StateStarted
	return nil
}

// Stop 停止指定插件，未启动的插件是无操作。
func (m *Manager) Stop(ctx context.Context, id string) error {
	ent, err := m.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.state != StateStarted {
		return nil
	}
	execCtx := &ExecutionContext{C: ctx, Config: ent.config, Resources: m.resources}
	if err := ent.plugin.Stop(execCtx.Clone()); err != nil {
		return fmt.Errorf("停止插件 %s 失败: %w", id, err)
	}
	if err := m.isolation.Cleanup(ent.info); err != nil {
		return fmt.Errorf("清理插件 %s 的隔离环境失败: %w", id, err)
	}
	ent.state = StateStopped
	return nil
}

// StartAll 启动所有已注册插件，遇到第一个失败即返回。
func (m *Manager) StartAll(ctx context.Context) error {
	for _, id := range m.ids() {
		if err := m.Start(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StopAll 停止所有运行中的插件。
func (m *Manager) StopAll(ctx context.Context) error {
	for _, id := range m.ids() {
		if err := m.Stop(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// State 返回插件的生命周期状态。
func (m *Manager) State(id string) (State, error) {
	ent, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.state, nil
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.catalog))
	for id := range m.catalog {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, ok := m.catalog[id]
	if !ok {
		return nil, fmt.Errorf("插件 %s 未注册", id)
	}
	return ent, nil
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp
}
