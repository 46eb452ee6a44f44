package predictoor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/connection"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// Backend is what the contract wrappers need from a JSON-RPC node.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	connection.ReceiptReader
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// Chain bundles the node, the signing wallet and the ABI source shared by all wrappers
type Chain struct {
	backend        Backend
	wallet         Wallet
	abis           *ABIStore
	receiptPoll    time.Duration
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewChain creates a chain handle
func NewChain(backend Backend, wallet Wallet, abis *ABIStore) *Chain {
	if abis == nil {
		abis = NewABIStore("")
	}
	return &Chain{
		backend:     backend,
		wallet:      wallet,
		abis:        abis,
		receiptPoll: time.Second,
		logger:      utils.NewSublogger("predictoor"),
	}
}

// WithReceiptPoll sets how often receipts are polled after sending a transaction
func (c *Chain) WithReceiptPoll(poll time.Duration) *Chain {
	if poll > 0 {
		c.receiptPoll = poll
	}
	return c
}

// WithMetrics enables per-call metrics
func (c *Chain) WithMetrics(m *metrics.Manager) *Chain {
	c.metricsManager = m
	return c
}

// Owner returns the wallet address
func (c *Chain) Owner() common.Address {
	return c.wallet.Address()
}

// GetBlock returns a block by number; nil means the latest block
func (c *Chain) GetBlock(ctx context.Context, number *big.Int) (*types.Block, error) {
	block, err := c.backend.BlockByNumber(ctx, number)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get block", err.Error())
	}
	return block, nil
}

// boundContract is a contract instance bound to the chain
type boundContract struct {
	chain    *Chain
	name     string
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	logger   *logrus.Entry
}

func (c *Chain) bindContract(name string, address common.Address) (*boundContract, error) {
	parsed, err := c.abis.Get(name)
	if err != nil {
		return nil, err
	}
	return &boundContract{
		chain:    c,
		name:     name,
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, c.backend, c.backend, c.backend),
		logger: c.logger.WithFields(logrus.Fields{
			"contract": name,
			"address":  address.Hex(),
		}),
	}, nil
}

// Address returns the contract address
func (b *boundContract) Address() common.Address {
	return b.address
}

// call runs a read-only method from the wallet address
func (b *boundContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	start := time.Now()
	opts := &bind.CallOpts{Context: ctx, From: b.chain.Owner()}

	var out []interface{}
	err := b.contract.Call(opts, &out, method, args...)
	b.record(method, err, time.Since(start))
	if err != nil {
		return nil, b.wrap(method, err)
	}
	return out, nil
}

// send signs and broadcasts a transaction without waiting for it to be mined.
// A zero gasLimit lets the node estimate it.
func (b *boundContract) send(ctx context.Context, gasLimit uint64, method string, args ...interface{}) (*types.Transaction, error) {
	start := time.Now()

	gasPrice, err := b.chain.backend.SuggestGasPrice(ctx)
	if err != nil {
		b.record(method, err, time.Since(start))
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get gas price", err.Error())
	}

	opts := TransactOpts(ctx, b.chain.wallet)
	opts.GasPrice = gasPrice
	opts.GasLimit = gasLimit

	tx, err := b.contract.Transact(opts, method, args...)
	b.record(method, err, time.Since(start))
	if err != nil {
		return nil, b.wrap(method, err)
	}

	b.logger.WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": tx.Hash().Hex(),
	}).Info("Transaction submitted")
	return tx, nil
}

// transact sends a transaction and waits for its receipt
func (b *boundContract) transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	tx, err := b.send(ctx, 0, method, args...)
	if err != nil {
		return nil, err
	}
	return b.chain.waitMined(ctx, tx)
}

func (c *Chain) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return connection.WaitForReceipt(ctx, c.backend, tx.Hash(), c.receiptPoll)
}

func (b *boundContract) record(method string, err error, duration time.Duration) {
	if b.chain.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	b.chain.metricsManager.GetPrometheusMetrics().RecordRPCRequest(b.name, method, status, duration)
}

func (b *boundContract) wrap(method string, err error) error {
	return utils.NewAppError(utils.ErrCodeContract,
		fmt.Sprintf("%s.%s failed", b.name, method),
		fmt.Sprintf("%s: %v", b.address.Hex(), err))
}

// unpackBig returns the i-th output as a *big.Int
func unpackBig(out []interface{}, i int) *big.Int {
	return *abi.ConvertType(out[i], new(*big.Int)).(**big.Int)
}
