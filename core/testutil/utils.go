package testutil

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-bundler/storage"
)

const (
	// well known anvil key #0, never holds value outside a dev chain
	ownerPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var (
	ChainID = big.NewInt(10)

	SafeSingleton      = common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762")
	ProxyFactory       = common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
	FallbackHandler    = common.HexToAddress("0xfd0732Dc9E303f09fCEf3a7388Ad10A83459Ec99")
	MultiSend          = common.HexToAddress("0x9641d764fc13c8B624c04430C7356C1C7C8102e2")
	SimulateTxAccessor = common.HexToAddress("0x3d4BA2E0884aa488718476ca2FB8Efc291A46199")
	FeeToken           = common.HexToAddress("0x4ac8bD1bDaE47beeF2D1c6Aa62229509b962Aa0d")
	FlowForwarder      = common.HexToAddress("0xcfA132E353cB4E398080B9700609bb008eceB125")
	SponsorCollector   = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	RelayFeeCollector  = common.HexToAddress("0x3AC05161b76a35c1c28dC99Aa01BEd7B24cEA3bf")

	Spender      = common.HexToAddress("0x00000000000000000000000000000000000b0b01")
	FlowOperator = common.HexToAddress("0x00000000000000000000000000000000000f1001")
	Account      = common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")
)

func OwnerKey() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(ownerPrivateKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

func OwnerPrivateKeyHex() string {
	return "0x" + ownerPrivateKeyHex
}

func Owner() common.Address {
	return crypto.PubkeyToAddress(OwnerKey().PublicKey)
}

// TestMustDB opens a badger store under the test's temp dir and closes it
// when the test ends.
func TestMustDB(t testing.TB) storage.Storage {
	t.Helper()
	db, err := storage.NewWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger(sdklogging.Development)
	if err != nil {
		panic(err)
	}
	return logger
}

// RevertError mimics the JSON-RPC error a node returns for a reverted
// eth_call, carrying the revert payload as hex data.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// FakeChain is an in-memory ChainReader.
type FakeChain struct {
	mu sync.Mutex

	chainID  *big.Int
	balances map[common.Address]*big.Int
	code     map[common.Address][]byte
	receipts map[common.Hash]*types.Receipt
	misses   map[common.Hash]int

	BaseFee *big.Int
	TipCap  *big.Int

	// CallHandler answers eth_call. Nil means every call returns empty data.
	CallHandler func(msg ethereum.CallMsg) ([]byte, error)

	calls         int
	receiptChecks int
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		chainID:  new(big.Int).Set(ChainID),
		balances: map[common.Address]*big.Int{},
		code:     map[common.Address][]byte{},
		receipts: map[common.Hash]*types.Receipt{},
		misses:   map[common.Hash]int{},
		BaseFee:  big.NewInt(1_000_000_000),
		TipCap:   big.NewInt(100_000_000),
	}
}

func (f *FakeChain) SetBalance(account common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = new(big.Int).Set(v)
}

func (f *FakeChain) SetCode(account common.Address, code []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code[account] = common.CopyBytes(code)
}

// SetReceipt registers a receipt that shows up after misses NotFound answers.
func (f *FakeChain) SetReceipt(receipt *types.Receipt, misses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[receipt.TxHash] = receipt
	f.misses[receipt.TxHash] = misses
}

func (f *FakeChain) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeChain) ReceiptChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiptChecks
}

func (f *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *FakeChain) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.balances[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *FakeChain) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return common.CopyBytes(f.code[account]), nil
}

func (f *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	handler := f.CallHandler
	f.mu.Unlock()

	if handler == nil {
		return nil, nil
	}
	return handler(msg)
}

func (f *FakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Add(f.BaseFee, f.TipCap), nil
}

func (f *FakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.TipCap), nil
}

func (f *FakeChain) HeaderByNumber(ctx context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: new(big.Int).Set(f.BaseFee)}, nil
}

func (f *FakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptChecks++

	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if f.misses[txHash] > 0 {
		f.misses[txHash]--
		return nil, ethereum.NotFound
	}
	return receipt, nil
}
