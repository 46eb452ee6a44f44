package predictoor

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// AuthValidity is how long a signed user auth is accepted by the predictor
const AuthValidity = time.Hour

// UserAuth proves the caller owns a subscription when reading aggregated predictions
type UserAuth struct {
	UserAddress common.Address
	V           uint8
	R           [32]byte
	S           [32]byte
	ValidUntil  *big.Int
}

// SignUserAuth signs keccak256(address ‖ uint256 validUntil) as an Ethereum signed message
func SignUserAuth(w Wallet, validUntil time.Time) (UserAuth, error) {
	until := big.NewInt(validUntil.Unix())
	message := crypto.Keccak256(w.Address().Bytes(), common.LeftPadBytes(until.Bytes(), 32))

	sig, err := w.SignHash(accounts.TextHash(message))
	if err != nil {
		return UserAuth{}, utils.NewAppError(utils.ErrCodeContract, "Failed to sign user auth", err.Error())
	}

	auth := UserAuth{
		UserAddress: w.Address(),
		V:           sig[64],
		ValidUntil:  until,
	}
	if auth.V <= 1 {
		auth.V += 27
	}
	copy(auth.R[:], sig[:32])
	copy(auth.S[:], sig[32:64])
	return auth, nil
}

// StringToBytes32 truncates s to 32 bytes or right-pads it with '0' characters
func StringToBytes32(s string) [32]byte {
	var out [32]byte
	n := copy(out[:], s)
	for i := n; i < len(out); i++ {
		out[i] = '0'
	}
	return out
}

// EtherToWei converts a decimal ether amount to wei, dropping digits below 1 wei
func EtherToWei(amount float64) (*big.Int, error) {
	if amount < 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Amount must not be negative",
			strconv.FormatFloat(amount, 'f', -1, 64))
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', -1, 64))
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid amount")
	}
	r.Mul(r, new(big.Rat).SetInt(OneToken))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}
