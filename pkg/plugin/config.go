package plugin

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManagerConfig 是插件声明文件的结构，宿主在启动期从 YAML 读取。
type ManagerConfig struct {
	// PluginDir 是相对插件路径的基准目录。
	PluginDir string `yaml:"pluginDir"`
	// Defaults 是未显式声明策略的插件使用的隔离策略。
	Defaults IsolationPolicy `yaml:"defaults"`
	// Plugins 以插件 id 为键列出所有插件。
	Plugins map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig 是单个插件的声明块。
type PluginConfig struct {
	Enabled bool             `yaml:"enabled"`
	Path    string           `yaml:"path"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// IsolationPolicy 约束插件可以申请的能力。
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
}

// Merge 用 other 补齐本策略缺失的字段并返回合并结果。
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// LoadManagerConfig 读取并解析插件声明文件。
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("插件声明文件路径不能为空")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取插件声明文件失败: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("解析插件声明文件失败: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate 检查声明的内部一致性。
func (c ManagerConfig) Validate() error {
	for id, plugin := range c.Plugins {
		if id == "" {
			return errors.New("插件 id 不能为空")
		}
		if plugin.Enabled && plugin.Path == "" {
			return fmt.Errorf("启用的插件 %s 必须声明路径", id)
		}
	}
	return nil
}
