// Package errors 提供带错误码的统一错误类型。错误码决定默认的
// 严重程度、可重试性与告警开关，调用方通过 errors.Is 按错误码比较，
// 通过 CodeOf/RetryableError/ShouldAlert 驱动 HTTP 状态映射、队列
// 重投与告警。
package errors

import (
	stdErrors "errors"
	"fmt"
)

// Error 是统一错误类型。零散的覆盖项用指针表示，nil 表示沿用
// 错误码的默认属性。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string

	// 对默认属性的逐项覆盖。
	retryable *bool
	alert     *bool
	severity  *Severity
}

// Option 在构造时定制单个错误实例。
type Option func(*Error)

// WithMetadata 附加键值对上下文，重复的键以后写的为准。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖错误码默认的可重试性。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithAlert 覆盖错误码默认的告警开关。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.alert = &alert }
}

// WithSeverity 覆盖错误码默认的严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = &sev }
}

// New 构造错误。message 为空时使用错误码的缺省提示语。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在底层错误外包裹统一错误类型，底层错误可经 errors.Unwrap 取回。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 使 errors.Is 按错误码而不是实例指针比较。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	return ok && e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含错误码前缀的提示语。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加上下文的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 返回本实例的可重试性，未覆盖时取错误码默认值。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// ShouldAlert 返回本实例是否触发告警，未覆盖时取错误码默认值。
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	return AttributesOf(e.code).Alert
}

// Severity 返回本实例的严重程度，未覆盖时取错误码默认值。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 从任意 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回任意 error 的错误码，非统一错误返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert 判断任意 error 是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
