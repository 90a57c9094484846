package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	xerrors "ZKIPFS-Registry/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ChainBackend 描述链上账本依赖的以太坊节点能力子集，
// *ethclient.Client 天然满足该接口，测试可以注入进程内实现。
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error)
}

// EthereumConfig 描述链上账本的构造参数。
type EthereumConfig struct {
	RPCURL      string
	ChainID     int64
	OperatorKey string
	// Accounts 将逻辑账户名映射到链上地址，提现与充值校验都依赖该映射。
	Accounts map[string]string
	GasLimit uint64
}

// EthereumLedger 把注册中心的账务锚定到一条 EVM 兼容链上：
// 付款方先向运营地址充值并通过 Deposit 核对链上交易，日常的
// Settle/Reverse 在进程内记账，Withdraw 把保留账户余额通过原生
// 转账发回链上地址。
type EthereumLedger struct {
	mu       sync.Mutex
	balances map[string]uint64

	backend      ChainBackend
	rpcClient    *gethrpc.Client
	chainID      *big.Int
	operatorKey  *ecdsa.PrivateKey
	operatorAddr common.Address
	addresses    map[string]common.Address
	gasLimit     uint64
}

// NewEthereumLedger 连接节点并校验运营私钥。
func NewEthereumLedger(ctx context.Context, cfg EthereumConfig) (*EthereumLedger, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置以太坊 RPC 地址")
	}
	if cfg.ChainID <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置链 ID")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.OperatorKey), "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析运营私钥失败")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "连接以太坊节点失败")
	}

	ledger := newChainLedger(ethclient.NewClient(rpcClient), big.NewInt(cfg.ChainID), key, cfg.Accounts, cfg.GasLimit)
	ledger.rpcClient = rpcClient
	return ledger, nil
}

// NewChainLedger 使用注入的后端构造账本，主要面向测试。
func NewChainLedger(backend ChainBackend, chainID *big.Int, key *ecdsa.PrivateKey, accounts map[string]string, gasLimit uint64) *EthereumLedger {
	return newChainLedger(backend, chainID, key, accounts, gasLimit)
}

func newChainLedger(backend ChainBackend, chainID *big.Int, key *ecdsa.PrivateKey, accounts map[string]string, gasLimit uint64) *EthereumLedger {
	addresses := make(map[string]common.Address, len(accounts))
	for name, addr := range accounts {
		name = strings.TrimSpace(name)
		addr = strings.TrimSpace(addr)
		if name == "" || !common.IsHexAddress(addr) {
			continue
		}
		addresses[name] = common.HexToAddress(addr)
	}
	if gasLimit == 0 {
		gasLimit = 21000
	}
	return &EthereumLedger{
		balances:     make(map[string]uint64),
		backend:      backend,
		chainID:      new(big.Int).Set(chainID),
		operatorKey:  key,
		operatorAddr: crypto.PubkeyToAddress(key.PublicKey),
		addresses:    addresses,
		gasLimit:     gasLimit,
	}
}

// OperatorAddress 返回运营地址，付款方充值时向该地址转账。
func (l *EthereumLedger) OperatorAddress() common.Address {
	return l.operatorAddr
}

// Deposit 校验一笔指向运营地址且已上链成功的原生转账，并把其金额
// 记入付款方的进程内余额。同一笔交易重复提交会重复入账，由调用方
// 负责交易哈希去重。
func (l *EthereumLedger) Deposit(ctx context.Context, account string, txHash common.Hash) (uint64, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return 0, ErrUnknownAccount
	}

	tx, pending, err := l.backend.TransactionByHash(ctx, txHash)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "查询充值交易失败")
	}
	if pending {
		return 0, xerrors.New(xerrors.CodeLedgerFailure, "充值交易尚未上链")
	}
	if tx.To() == nil || *tx.To() != l.operatorAddr {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "充值交易的收款方不是运营地址")
	}

	receipt, err := l.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "查询充值回执失败")
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return 0, xerrors.New(xerrors.CodeLedgerFailure, "充值交易执行失败")
	}

	value := tx.Value()
	if !value.IsUint64() {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "充值金额超出可记账范围")
	}
	amount := value.Uint64()

	l.mu.Lock()
	l.balances[account] += amount
	l.mu.Unlock()
	return amount, nil
}

// Settle 实现 Ledger 接口，记账语义与进程内账本一致。
func (l *EthereumLedger) Settle(_ context.Context, payer, recipient string, paid, fee uint64) error {
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

	l.balances[payer] -= paid
	l.balances[ReserveAccount] += paid

	l.balances[ReserveAccount] -= fee
	l.balances[recipient] += fee

	refund := paid - fee
	l.balances[ReserveAccount] -= refund
	l.balances[payer] += refund
	return nil
}

// Reverse 实现 Ledger 接口。
func (l *EthereumLedger) Reverse(_ context.Context, payer, recipient string, fee uint64) error {
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

// Withdraw 先扣减保留账户，再把等额的原生代币从运营地址转到目标
// 账户映射的链上地址；广播失败时回滚进程内扣减。
func (l *EthereumLedger) Withdraw(ctx context.Context, to string, amount uint64) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrUnknownAccount
	}
	target, ok := l.addresses[to]
	if !ok {
		return xerrors.New(CodeUnknownAccount, "账户未绑定链上地址: "+to)
	}

	l.mu.Lock()
	if l.balances[ReserveAccount] < amount {
		l.mu.Unlock()
		return ErrInsufficientFunds
	}
	l.balances[ReserveAccount] -= amount
	l.balances[to] += amount
	l.mu.Unlock()

	if err := l.transfer(ctx, target, amount); err != nil {
		l.mu.Lock()
		l.balances[ReserveAccount] += amount
		l.balances[to] -= amount
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *EthereumLedger) transfer(ctx context.Context, target common.Address, amount uint64) error {
	nonce, err := l.backend.PendingNonceAt(ctx, l.operatorAddr)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "查询运营账户 nonce 失败")
	}
	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "查询 gas 价格失败")
	}

	tx := coretypes.NewTransaction(nonce, target, new(big.Int).SetUint64(amount), l.gasLimit, gasPrice, nil)
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(l.chainID), l.operatorKey)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "签名提现交易失败")
	}
	if err := l.backend.SendTransaction(ctx, signed); err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "广播提现交易失败")
	}
	return nil
}

// Balance 返回进程内记账余额。
func (l *EthereumLedger) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// OnChainBalance 查询账户映射地址的链上余额，单位为 wei。
func (l *EthereumLedger) OnChainBalance(ctx context.Context, account string) (*big.Int, error) {
	addr, ok := l.addresses[strings.TrimSpace(account)]
	if !ok {
		return nil, xerrors.New(CodeUnknownAccount, "账户未绑定链上地址: "+account)
	}
	balance, err := l.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "查询链上余额失败")
	}
	return balance, nil
}

// Close 释放底层 RPC 连接。
func (l *EthereumLedger) Close() {
	if l.rpcClient != nil {
		l.rpcClient.Close()
		l.rpcClient = nil
	}
}

var _ Ledger = (*EthereumLedger)(nil)
