package predictoor

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// Wallet is the account capability used to sign transactions and messages
type Wallet interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
	SignHash(hash []byte) ([]byte, error)
}

// KeyWallet signs with an in-memory private key
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewKeyWallet parses a 0x-prefixed hex private key
func NewKeyWallet(privateKey string, chainID *big.Int) (*KeyWallet, error) {
	if !strings.HasPrefix(privateKey, "0x") {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Private key must start with 0x hex prefix")
	}
	if chainID == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Chain ID is required")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid private key", err.Error())
	}

	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the account address
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// SignTx signs a transaction for the wallet's chain
func (w *KeyWallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, w.signer, w.key)
}

// SignHash returns a 65 byte [R || S || V] signature with V in {0, 1}
func (w *KeyWallet) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, w.key)
}

// TransactOpts builds bind options that sign with the wallet
func TransactOpts(ctx context.Context, w Wallet) *bind.TransactOpts {
	from := w.Address()
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != from {
				return nil, bind.ErrNotAuthorized
			}
			return w.SignTx(tx)
		},
	}
}
