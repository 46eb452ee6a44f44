package predictoor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testOwner = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type sentTx struct {
	to     common.Address
	method string
	args   []interface{}
}

// fakeBackend answers calls from canned outputs keyed by method name
// and records every transaction sent.
type fakeBackend struct {
	bind.ContractBackend

	mu      sync.Mutex
	abis    []abi.ABI
	results map[string][]interface{}
	calls   []string
	sent    []sentTx
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{results: make(map[string][]interface{})}
	for _, raw := range builtinABIs {
		parsed, err := abi.JSON(strings.NewReader(raw))
		require.NoError(t, err)
		f.abis = append(f.abis, parsed)
	}
	return f
}

func (f *fakeBackend) set(method string, outputs ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = outputs
}

func (f *fakeBackend) method(data []byte) (*abi.Method, error) {
	for _, parsed := range f.abis {
		if m, err := parsed.MethodById(data[:4]); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	m, err := f.method(msg.Data)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m.Name)
	outputs, ok := f.results[m.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return m.Outputs.Pack(outputs...)
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m, err := f.method(tx.Data())
	if err != nil {
		return err
	}
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentTx{to: *tx.To(), method: m.Name, args: args})
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeBackend) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return types.NewBlockWithHeader(&types.Header{Number: number}), nil
}

func (f *fakeBackend) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	methods := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		methods = append(methods, s.method)
	}
	return methods
}

func newTestChain(t *testing.T, backend *fakeBackend) *Chain {
	t.Helper()
	wallet, err := NewKeyWallet(testKey, big.NewInt(1337))
	require.NoError(t, err)
	return NewChain(backend, wallet, nil).WithReceiptPoll(1)
}
