package plugin

import (
	"errors"
	"fmt"
	"slices"
)

// IsolationStrategy 在运行时对插件实施安全约束。
type IsolationStrategy interface {
	// Validate 在注册期检查插件申请的能力是否被策略允许。
	Validate(info Info, policy IsolationPolicy) error
	// Prepare 在插件启动前搭建隔离环境。
	Prepare(info Info) error
	// Cleanup 在插件停止后回收隔离环境。
	Cleanup(info Info) error
}

// NoopIsolationStrategy 只做能力校验，不提供运行时隔离。
type NoopIsolationStrategy struct{}

var _ IsolationStrategy = NoopIsolationStrategy{}

// Validate 实现 IsolationStrategy 接口。拒绝名单优先于允许名单，
// 允许名单为空表示不设白名单限制。
func (NoopIsolationStrategy) Validate(info Info, policy IsolationPolicy) error {
	for _, cap := range info.Capabilities {
		if slices.Contains(policy.DeniedCapabilities, cap) {
			return fmt.Errorf("能力 %s 被策略显式拒绝", cap)
		}
	}
	if len(policy.AllowedCapabilities) == 0 {
		return nil
	}
	for _, cap := range info.Capabilities {
		if !slices.Contains(policy.AllowedCapabilities, cap) {
			return fmt.Errorf("能力 %s 不在允许名单中", cap)
		}
	}
	return nil
}

// Prepare 实现 IsolationStrategy 接口。
func (NoopIsolationStrategy) Prepare(Info) error { return nil }

// Cleanup 实现 IsolationStrategy 接口。
func (NoopIsolationStrategy) Cleanup(Info) error { return nil }

// NewIsolationStrategy 在未提供策略执行器时返回默认实现。
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return NoopIsolationStrategy{}
	}
	return strategy
}

// MergePolicies 合并默认策略与插件自己声明的策略。
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil {
		return defaults
	}
	merged := plugin.Merge(defaults)
	if len(merged.AllowedCapabilities) == 0 && len(merged.DeniedCapabilities) == 0 {
		return defaults
	}
	return merged
}

// EnsurePolicy 要求声明了能力的插件必须配有隔离策略。
func EnsurePolicy(info Info, policy IsolationPolicy) error {
	if len(info.Capabilities) == 0 {
		return nil
	}
	if len(policy.AllowedCapabilities) == 0 && len(policy.DeniedCapabilities) == 0 {
		return errors.New("声明能力的插件必须配置隔离策略")
	}
	return nil
}
