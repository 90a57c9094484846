package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "ZKIPFS-Registry/internal/errors"
)

type fakeBackend struct {
	nonce    uint64
	gasPrice *big.Int
	sendErr  error
	sent     []*coretypes.Transaction
	txs      map[common.Hash]*coretypes.Transaction
	pending  map[common.Hash]bool
	receipts map[common.Hash]*coretypes.Receipt
	balances map[common.Address]*big.Int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gasPrice: big.NewInt(1_000_000_000),
		txs:      make(map[common.Hash]*coretypes.Transaction),
		pending:  make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*coretypes.Receipt),
		balances: make(map[common.Address]*big.Int),
	}
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	balance, ok := f.balances[account]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (f *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*coretypes.Transaction, bool, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, errors.New("transaction not found")
	}
	return tx, f.pending[hash], nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	return receipt, nil
}

func (f *fakeBackend) addDeposit(to common.Address, amount uint64, status uint64, pending bool) common.Hash {
	tx := coretypes.NewTransaction(f.nonce, to, new(big.Int).SetUint64(amount), 21000, f.gasPrice, nil)
	hash := tx.Hash()
	f.txs[hash] = tx
	f.pending[hash] = pending
	f.receipts[hash] = &coretypes.Receipt{Status: status}
	return hash
}

func newTestChainLedger(t *testing.T, backend ChainBackend, accounts map[string]string) *EthereumLedger {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewChainLedger(backend, big.NewInt(1337), key, accounts, 0)
}

func TestEthereumLedgerDeposit(t *testing.T) {
	backend := newFakeBackend()
	book := newTestChainLedger(t, backend, nil)
	ctx := context.Background()

	hash := backend.addDeposit(book.OperatorAddress(), 500, coretypes.ReceiptStatusSuccessful, false)
	amount, err := book.Deposit(ctx, "alice", hash)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if amount != 500 {
		t.Fatalf("expected amount 500, got %d", amount)
	}
	if balance, _ := book.Balance(ctx, "alice"); balance != 500 {
		t.Fatalf("expected alice 500, got %d", balance)
	}

	// 收款方不是运营地址的交易不计入余额。
	other := backend.addDeposit(common.HexToAddress("0x1111111111111111111111111111111111111111"), 100, coretypes.ReceiptStatusSuccessful, false)
	if _, err := book.Deposit(ctx, "alice", other); err == nil {
		t.Fatalf("expected foreign recipient rejected")
	}

	stillPending := backend.addDeposit(book.OperatorAddress(), 100, coretypes.ReceiptStatusSuccessful, true)
	if _, err := book.Deposit(ctx, "alice", stillPending); err == nil {
		t.Fatalf("expected pending transaction rejected")
	}

	reverted := backend.addDeposit(book.OperatorAddress(), 101, coretypes.ReceiptStatusFailed, false)
	if _, err := book.Deposit(ctx, "alice", reverted); err == nil {
		t.Fatalf("expected reverted transaction rejected")
	}

	if balance, _ := book.Balance(ctx, "alice"); balance != 500 {
		t.Fatalf("rejected deposits must not change balance, got %d", balance)
	}
}

func TestEthereumLedgerSettleMatchesMemorySemantics(t *testing.T) {
	backend := newFakeBackend()
	book := newTestChainLedger(t, backend, nil)
	ctx := context.Background()

	hash := backend.addDeposit(book.OperatorAddress(), 100, coretypes.ReceiptStatusSuccessful, false)
	if _, err := book.Deposit(ctx, "alice", hash); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := book.Settle(ctx, "alice", "fees:main", 30, 10); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance, _ := book.Balance(ctx, "alice"); balance != 90 {
		t.Fatalf("expected alice 90, got %d", balance)
	}
	if balance, _ := book.Balance(ctx, "fees:main"); balance != 10 {
		t.Fatalf("expected fee recipient 10, got %d", balance)
	}

	if err := book.Settle(ctx, "alice", "fees:main", 1000, 10); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := book.Reverse(ctx, "alice", "fees:main", 10); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if balance, _ := book.Balance(ctx, "alice"); balance != 100 {
		t.Fatalf("expected alice restored to 100, got %d", balance)
	}
}

func TestEthereumLedgerWithdraw(t *testing.T) {
	backend := newFakeBackend()
	adminAddr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	book := newTestChainLedger(t, backend, map[string]string{"admin": adminAddr.Hex()})
	ctx := context.Background()

	hash := backend.addDeposit(book.OperatorAddress(), 100, coretypes.ReceiptStatusSuccessful, false)
	if _, err := book.Deposit(ctx, "alice", hash); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := book.Settle(ctx, "alice", ReserveAccount, 40, 40); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if err := book.Withdraw(ctx, "admin", 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected 1 broadcast transaction, got %d", len(backend.sent))
	}
	sent := backend.sent[0]
	if sent.To() == nil || *sent.To() != adminAddr {
		t.Fatalf("unexpected withdraw target: %v", sent.To())
	}
	if sent.Value().Uint64() != 40 {
		t.Fatalf("unexpected withdraw value: %s", sent.Value())
	}
	if balance, _ := book.Balance(ctx, ReserveAccount); balance != 0 {
		t.Fatalf("expected reserve emptied, got %d", balance)
	}

	// 未绑定链上地址的账户不可提现。
	if err := book.Withdraw(ctx, "ghost", 1); xerrors.CodeOf(err) != CodeUnknownAccount {
		t.Fatalf("expected unknown account code, got %v", err)
	}
}

func TestEthereumLedgerWithdrawRollsBackOnBroadcastFailure(t *testing.T) {
	backend := newFakeBackend()
	adminAddr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	book := newTestChainLedger(t, backend, map[string]string{"admin": adminAddr.Hex()})
	ctx := context.Background()

	hash := backend.addDeposit(book.OperatorAddress(), 100, coretypes.ReceiptStatusSuccessful, false)
	if _, err := book.Deposit(ctx, "alice", hash); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := book.Settle(ctx, "alice", ReserveAccount, 40, 40); err != nil {
		t.Fatalf("settle: %v", err)
	}

	backend.sendErr = errors.New("node unavailable")
	if err := book.Withdraw(ctx, "admin", 40); err == nil {
		t.Fatalf("expected broadcast failure surfaced")
	}

	// 广播失败后进程内扣减必须回滚。
	if balance, _ := book.Balance(ctx, ReserveAccount); balance != 40 {
		t.Fatalf("expected reserve restored to 40, got %d", balance)
	}
	if balance, _ := book.Balance(ctx, "admin"); balance != 0 {
		t.Fatalf("expected admin balance rolled back, got %d", balance)
	}
}
