package plugin

import (
	"errors"
	goplugin "plugin"
)

// Loader 把插件制品解析为 Plugin 实现。
type Loader interface {
	Load(path string) (Plugin, error)
}

// GoPluginLoader 通过标准库 plugin 机制从共享库加载插件。
// 共享库必须导出名为 Plugin 的符号，可以是实现、指针或工厂函数。
type GoPluginLoader struct{}

var _ Loader = GoPluginLoader{}

// Load 打开共享库并解析 Plugin 符号。
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("插件路径不能为空")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, err
	}
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil || *p == nil {
			return nil, errors.New("Plugin 符号为空")
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	default:
		return nil, errors.New("Plugin 符号必须实现 plugin.Plugin 接口")
	}
}
