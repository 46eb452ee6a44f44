package predictoor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// OneToken is one whole token in wei
var OneToken = big.NewInt(params.Ether)

// DTPrice is the cost of buying one datatoken
type DTPrice struct {
	BaseTokenAmount        *big.Int `json:"base_token_amount"`
	OceanFeeAmount         *big.Int `json:"ocean_fee_amount"`
	PublishMarketFeeAmount *big.Int `json:"publish_market_fee_amount"`
	ConsumeMarketFeeAmount *big.Int `json:"consume_market_fee_amount"`
}

// FixedRate wraps a FixedRateExchange
type FixedRate struct {
	*boundContract
}

// NewFixedRate binds a fixed rate exchange at address
func NewFixedRate(chain *Chain, address common.Address) (*FixedRate, error) {
	bc, err := chain.bindContract(FixedRateExchange, address)
	if err != nil {
		return nil, err
	}
	return &FixedRate{bc}, nil
}

// GetDTPrice quotes the base token cost of one datatoken
func (f *FixedRate) GetDTPrice(ctx context.Context, exchangeID [32]byte) (*DTPrice, error) {
	out, err := f.call(ctx, "calcBaseInGivenOutDT", exchangeID, OneToken, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	return &DTPrice{
		BaseTokenAmount:        unpackBig(out, 0),
		OceanFeeAmount:         unpackBig(out, 1),
		PublishMarketFeeAmount: unpackBig(out, 2),
		ConsumeMarketFeeAmount: unpackBig(out, 3),
	}, nil
}

// BuyDT buys one datatoken paying at most baseTokenAmount
func (f *FixedRate) BuyDT(ctx context.Context, exchangeID [32]byte, baseTokenAmount *big.Int) (*types.Receipt, error) {
	return f.transact(ctx, "buyDT", exchangeID, OneToken, baseTokenAmount, common.Address{}, big.NewInt(0))
}
