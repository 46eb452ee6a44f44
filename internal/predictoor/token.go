package predictoor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token wraps an ERC20 datatoken or stake token
type Token struct {
	*boundContract
}

// NewToken binds an ERC20 at address
func NewToken(chain *Chain, address common.Address) (*Token, error) {
	bc, err := chain.bindContract(ERC20Template3, address)
	if err != nil {
		return nil, err
	}
	return &Token{bc}, nil
}

// Allowance returns how much spender may move on behalf of owner
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return unpackBig(out, 0), nil
}

// BalanceOf returns the token balance of account
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return unpackBig(out, 0), nil
}

// Approve lets spender move amount from the wallet and waits for the receipt
func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return t.transact(ctx, "approve", spender, amount)
}
