package errors

import "sync"

// Code 是全系统统一的错误码。基础错误码在本包定义，业务包在
// init 阶段通过 Register 补充自己的错误码。
type Code string

// 基础错误码。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeLedgerFailure         Code = "LEDGER_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// Severity 描述错误的严重程度，用于告警与审计分级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 是错误码的默认行为：缺省提示语、严重程度、是否可
// 重试以及是否触发告警。单个错误实例可以用 Option 覆盖这些默认值。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	catalogMu sync.RWMutex
	catalog   = map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo},
		CodeConflict:              {Message: "resource conflict", Severity: SeverityWarning},
		CodeUnauthorized:          {Message: "caller not authorized", Severity: SeverityWarning},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true},
		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeLedgerFailure:         {Message: "ledger failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Retryable: true, Alert: true},
	}
)

// Register 登记错误码的默认属性，后注册的覆盖先注册的。
func Register(code Code, attr Attributes) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	catalog[code] = attr
}

// AttributesOf 返回错误码的默认属性，未注册的错误码回落到 UNKNOWN。
func AttributesOf(code Code) Attributes {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	if attr, ok := catalog[code]; ok {
		return attr
	}
	return catalog[CodeUnknown]
}
