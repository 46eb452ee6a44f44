package predictoor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// ErrNoExchange is returned when a predictor has no fixed rate exchange to buy from
var ErrNoExchange = utils.NewAppError(utils.ErrCodeNotFound, "Predictor has no fixed rate exchange")

// FixedRateRef points to an exchange selling the predictor's datatoken
type FixedRateRef struct {
	Address    common.Address `json:"address"`
	ExchangeID [32]byte       `json:"exchange_id"`
}

// Prediction is a predictoor's submission for a slot
type Prediction struct {
	PredictedValue bool           `json:"predicted_value"`
	Stake          *big.Int       `json:"stake"`
	Predictoor     common.Address `json:"predictoor"`
	Paid           bool           `json:"paid"`
}

// fixedRateTuple mirrors the getFixedRates tuple layout
type fixedRateTuple struct {
	ContractAddress common.Address
	Id              [32]byte
}

type providerFee struct {
	ProviderFeeAddress common.Address
	ProviderFeeToken   common.Address
	ProviderFeeAmount  *big.Int
	V                  uint8
	R                  [32]byte
	S                  [32]byte
	ValidUntil         *big.Int
	ProviderData       []byte
}

type consumeMarketFee struct {
	ConsumeMarketFeeAddress common.Address
	ConsumeMarketFeeToken   common.Address
	ConsumeMarketFeeAmount  *big.Int
}

type orderParams struct {
	Consumer         common.Address
	ServiceIndex     *big.Int
	ProviderFee      providerFee
	ConsumeMarketFee consumeMarketFee
}

type freParams struct {
	ExchangeContract   common.Address
	ExchangeID         [32]byte `abi:"exchangeId"`
	MaxBaseTokenAmount *big.Int
	SwapMarketFee      *big.Int
	MarketFeeAddress   common.Address
}

// PredictorContract wraps an ERC20Template3 predictor datatoken
type PredictorContract struct {
	*boundContract
	stakeToken *Token
}

// NewPredictorContract binds the predictor and its stake token
func NewPredictorContract(ctx context.Context, chain *Chain, address common.Address) (*PredictorContract, error) {
	bc, err := chain.bindContract(ERC20Template3, address)
	if err != nil {
		return nil, err
	}
	p := &PredictorContract{boundContract: bc}

	stake, err := p.GetStakeToken(ctx)
	if err != nil {
		return nil, err
	}
	if p.stakeToken, err = NewToken(chain, stake); err != nil {
		return nil, err
	}
	return p, nil
}

// StakeToken returns the token predictions are staked in
func (p *PredictorContract) StakeToken() *Token {
	return p.stakeToken
}

// IsValidSubscription reports whether the wallet holds an active subscription
func (p *PredictorContract) IsValidSubscription(ctx context.Context) (bool, error) {
	out, err := p.call(ctx, "isValidSubscription", p.chain.Owner())
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// GetExchanges lists the fixed rate exchanges selling this datatoken
func (p *PredictorContract) GetExchanges(ctx context.Context) ([]FixedRateRef, error) {
	out, err := p.call(ctx, "getFixedRates")
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]fixedRateTuple)).(*[]fixedRateTuple)

	refs := make([]FixedRateRef, 0, len(tuples))
	for _, t := range tuples {
		refs = append(refs, FixedRateRef{Address: t.ContractAddress, ExchangeID: t.Id})
	}
	return refs, nil
}

// GetStakeToken returns the stake token address
func (p *PredictorContract) GetStakeToken(ctx context.Context) (common.Address, error) {
	out, err := p.call(ctx, "stakeToken")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// quote prices one datatoken on the first exchange
func (p *PredictorContract) quote(ctx context.Context) (FixedRateRef, *DTPrice, error) {
	exchanges, err := p.GetExchanges(ctx)
	if err != nil {
		return FixedRateRef{}, nil, err
	}
	if len(exchanges) == 0 {
		return FixedRateRef{}, nil, ErrNoExchange
	}

	ref := exchanges[0]
	exchange, err := NewFixedRate(p.chain, ref.Address)
	if err != nil {
		return FixedRateRef{}, nil, err
	}
	price, err := exchange.GetDTPrice(ctx, ref.ExchangeID)
	if err != nil {
		return FixedRateRef{}, nil, err
	}
	return ref, price, nil
}

// GetPrice returns the base token cost of one datatoken
func (p *PredictorContract) GetPrice(ctx context.Context) (*big.Int, error) {
	_, price, err := p.quote(ctx)
	if err != nil {
		return nil, err
	}
	return price.BaseTokenAmount, nil
}

// GetCurrentEpoch returns the current epoch
func (p *PredictorContract) GetCurrentEpoch(ctx context.Context) (*big.Int, error) {
	return p.callBig(ctx, "curEpoch")
}

// GetBlocksPerEpoch returns the epoch length in blocks
func (p *PredictorContract) GetBlocksPerEpoch(ctx context.Context) (*big.Int, error) {
	return p.callBig(ctx, "blocksPerEpoch")
}

// GetTrueValSubmitTimeoutBlock returns the number of blocks the trueval may be late
func (p *PredictorContract) GetTrueValSubmitTimeoutBlock(ctx context.Context) (*big.Int, error) {
	return p.callBig(ctx, "trueValSubmitTimeoutBlock")
}

// SoonestBlockToPredict returns the first slot still open for predictions after block
func (p *PredictorContract) SoonestBlockToPredict(ctx context.Context, block *big.Int) (*big.Int, error) {
	return p.callBig(ctx, "soonestBlockToPredict", block)
}

func (p *PredictorContract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return unpackBig(out, 0), nil
}

// GetAggPredval returns the aggregated prediction for block as nom/denom.
// A subscription is bought first when the wallet has none. ok is false when
// nobody staked on the slot.
func (p *PredictorContract) GetAggPredval(ctx context.Context, block *big.Int) (value float64, ok bool, err error) {
	valid, err := p.IsValidSubscription(ctx)
	if err != nil {
		return 0, false, err
	}
	if !valid {
		p.logger.Info("Buying a new subscription")
		tx, err := p.BuyAndStartSubscription(ctx, 0)
		if err != nil {
			return 0, false, err
		}
		if _, err := p.chain.waitMined(ctx, tx); err != nil {
			return 0, false, err
		}
	}

	auth, err := SignUserAuth(p.chain.wallet, time.Now().Add(AuthValidity))
	if err != nil {
		return 0, false, err
	}

	out, err := p.call(ctx, "getAggPredval", block, auth)
	if err != nil {
		return 0, false, err
	}
	nom, denom := unpackBig(out, 0), unpackBig(out, 1)
	p.logger.WithFields(logrus.Fields{
		"block": block,
		"nom":   nom,
		"denom": denom,
	}).Debug("Read aggregated prediction")

	if denom.Sign() == 0 {
		return 0, false, nil
	}
	value, _ = new(big.Rat).SetFrac(nom, denom).Float64()
	return value, true, nil
}

// BuyAndStartSubscription buys one datatoken on the first exchange and orders it.
// The transaction is returned as soon as it is broadcast.
func (p *PredictorContract) BuyAndStartSubscription(ctx context.Context, gasLimit uint64) (*types.Transaction, error) {
	ref, price, err := p.quote(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := p.stakeToken.Approve(ctx, p.address, price.BaseTokenAmount); err != nil {
		return nil, err
	}

	empty := StringToBytes32("")
	order := orderParams{
		Consumer:     p.chain.Owner(),
		ServiceIndex: big.NewInt(0),
		ProviderFee: providerFee{
			ProviderFeeAmount: big.NewInt(0),
			R:                 empty,
			S:                 empty,
			ValidUntil:        big.NewInt(0),
			ProviderData:      []byte{},
		},
		ConsumeMarketFee: consumeMarketFee{
			ConsumeMarketFeeAmount: big.NewInt(0),
		},
	}
	fre := freParams{
		ExchangeContract:   ref.Address,
		ExchangeID:         ref.ExchangeID,
		MaxBaseTokenAmount: price.BaseTokenAmount,
		SwapMarketFee:      big.NewInt(0),
	}

	return p.send(ctx, gasLimit, "buyFromFreAndOrder", order, fre)
}

// BuyMany buys n subscriptions, stopping at the first failure
func (p *PredictorContract) BuyMany(ctx context.Context, n int, gasLimit uint64) ([]*types.Transaction, error) {
	if n < 1 {
		return nil, nil
	}
	p.logger.WithField("count", n).Info("Buying accesses")

	txs := make([]*types.Transaction, 0, n)
	for i := 0; i < n; i++ {
		tx, err := p.BuyAndStartSubscription(ctx, gasLimit)
		if err != nil {
			return txs, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Payout claims the wallet's reward for slot
func (p *PredictorContract) Payout(ctx context.Context, slot *big.Int) (*types.Receipt, error) {
	return p.transact(ctx, "payout", slot, p.chain.Owner())
}

// SubmitPrediction approves stakeAmount (in whole tokens) and submits the prediction for block
func (p *PredictorContract) SubmitPrediction(ctx context.Context, predictedValue bool, stakeAmount float64, block *big.Int) (*types.Receipt, error) {
	amount, err := EtherToWei(stakeAmount)
	if err != nil {
		return nil, err
	}
	if _, err := p.stakeToken.Approve(ctx, p.address, amount); err != nil {
		return nil, err
	}
	return p.transact(ctx, "submitPredval", predictedValue, amount, block)
}

// GetPrediction returns the wallet's prediction for slot
func (p *PredictorContract) GetPrediction(ctx context.Context, slot *big.Int) (*Prediction, error) {
	out, err := p.call(ctx, "getPrediction", slot)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(Prediction)).(*Prediction), nil
}

// SubmitTrueVal publishes the observed outcome for block
func (p *PredictorContract) SubmitTrueVal(ctx context.Context, block *big.Int, trueVal bool, floatValue float64, cancelRound bool) (*types.Receipt, error) {
	value, err := EtherToWei(floatValue)
	if err != nil {
		return nil, err
	}
	return p.transact(ctx, "submitTrueVal", block, trueVal, value, cancelRound)
}

// RedeemUnusedSlotRevenue moves revenue of a slot without predictions back to the owner
func (p *PredictorContract) RedeemUnusedSlotRevenue(ctx context.Context, block *big.Int) (*types.Receipt, error) {
	return p.transact(ctx, "redeemUnusedSlotRevenue", block)
}

// GetBlock returns the block with the given number
func (p *PredictorContract) GetBlock(ctx context.Context, block *big.Int) (*types.Block, error) {
	return p.chain.GetBlock(ctx, block)
}
