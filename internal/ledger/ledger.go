package ledger

import (
	"context"
	"strings"
	"sync"

	xerrors "ZKIPFS-Registry/internal/errors"
)

// 账务相关的错误码。
const (
	CodeInsufficientFunds xerrors.Code = "LEDGER_INSUFFICIENT_FUNDS"
	CodeUnknownAccount    xerrors.Code = "LEDGER_UNKNOWN_ACCOUNT"
)

var (
	// ErrInsufficientFunds 表示付款账户余额不足。
	ErrInsufficientFunds = xerrors.New(CodeInsufficientFunds, "账户余额不足")
	// ErrUnknownAccount 表示账户标识为空或非法。
	ErrUnknownAccount = xerrors.New(CodeUnknownAccount, "账户标识非法")
)

func init() {
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:   "insufficient account balance",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnknownAccount, xerrors.Attributes{
		Message:   "unknown or empty account",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Ledger 抽象注册中心使用的价值转移媒介。实现可以是进程内账本，
// 也可以是链上的原生转账；注册中心只依赖下述合约语义：
//
//   - Settle: 付款方支付 paid 进入注册中心账户, 其中 fee 转给收费地址,
//     剩余 paid-fee 原路退回付款方, 三步作为一个整体成功或失败。
//   - Reverse: 在落库失败后的补偿动作, 将 fee 从收费地址退回付款方。
//   - Withdraw: 管理员提取注册中心账户的累计余额。
type Ledger interface {
	Settle(ctx context.Context, payer, recipient string, paid, fee uint64) error
	Reverse(ctx context.Context, payer, recipient string, fee uint64) error
	Withdraw(ctx context.Context, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}

// ReserveAccount 是注册中心在进程内账本中的保留账户名。
const ReserveAccount = "registry:reserve"

// MemoryLedger 是进程内的简单账本，主要用于测试与单机部署。
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemoryLedger 创建账本实例。
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

// Credit 为账户注入余额，通常只在测试与初始化阶段使用。
func (l *MemoryLedger) Credit(account string, amount uint64) {
	if strings.TrimSpace(account) == "" {
		return
	}
	l.mu.Lock()
	l.balances[account] += amount
	l.mu.Unlock()
}

// Settle 实现 Ledger 接口。
func (l *MemoryLedger) Settle(_ context.Context, payer, recipient string, paid, fee uint64) error {
	if strings.TrimSpace(payer) == "" || strings.TrimSpace(recipient) == "" {
		return ErrUnknownAccount
	}
	if fee > paid {
		return xerrors.New(xerrors.CodeInvalidArgument, "手续费不能超过支付金额")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[payer] < paid {
		return ErrInsufficientFunds
	}

	// 三步转移在同一把锁内完成, 对外表现为原子结算。
	l.balances[payer] -= paid
	l.balances[ReserveAccount] += paid

	l.balances[ReserveAccount] -= fee
	l.balances[recipient] += fee

	refund := paid - fee
	l.balances[ReserveAccount] -= refund
	l.balances[payer] += refund
	return nil
}

// Reverse 实现 Ledger 接口，将手续费从收费地址退回付款方。
func (l *MemoryLedger) Reverse(_ context.Context, payer, recipient string, fee uint64) error {
	if strings.TrimSpace(payer) == "" || strings.TrimSpace(recipient) == "" {
		return ErrUnknownAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[recipient] < fee {
		return ErrInsufficientFunds
	}
	l.balances[recipient] -= fee
	l.balances[payer] += fee
	return nil
}

// Withdraw 从注册中心保留账户提取余额。
func (l *MemoryLedger) Withdraw(_ context.Context, to string, amount uint64) error {
	if strings.TrimSpace(to) == "" {
		return ErrUnknownAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[ReserveAccount] < amount {
		return ErrInsufficientFunds
	}
	l.balances[ReserveAccount] -= amount
	l.balances[to] += amount
	return nil
}

// Balance 返回账户余额。
func (l *MemoryLedger) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// ensure interface compliance at compile time
var _ Ledger = (*MemoryLedger)(nil)
