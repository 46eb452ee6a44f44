package predictoor

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// Contract artifact names
const (
	ERC20Template3    = "ERC20Template3"
	FixedRateExchange = "FixedRateExchange"
)

// ErrABINotFound is returned when no artifact matches the requested contract name
var ErrABINotFound = utils.NewAppError(utils.ErrCodeNotFound, "Contract name does not exist in artifacts")

// artifact is the subset of a hardhat/truffle artifact we read
type artifact struct {
	ABI json.RawMessage `json:"abi"`
}

// ArtifactsDir returns the directory searched for artifacts given the address file
// location: the parent of the directory holding the file.
func ArtifactsDir(addressFile string) string {
	if addressFile == "" {
		return ""
	}
	return filepath.Dir(filepath.Dir(addressFile))
}

// LoadABI finds exactly one <name>.json below dir and parses its "abi" field
func LoadABI(dir, name string) (abi.ABI, error) {
	basename := name + ".json"

	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == basename {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to search artifacts in %s: %w", dir, err)
	}

	switch len(matches) {
	case 0:
		return abi.ABI{}, ErrABINotFound
	case 1:
	default:
		return abi.ABI{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"Duplicate contract artifacts", fmt.Sprintf("%s: %s", basename, strings.Join(matches, ", ")))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read artifact %s: %w", matches[0], err)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return abi.ABI{}, fmt.Errorf("failed to decode artifact %s: %w", matches[0], err)
	}
	if len(art.ABI) == 0 {
		return abi.ABI{}, utils.NewAppError(utils.ErrCodeConfiguration, "Artifact has no abi field", matches[0])
	}

	return abi.JSON(strings.NewReader(string(art.ABI)))
}

// ABIStore resolves contract ABIs, preferring artifacts on disk over the built-in fragments
type ABIStore struct {
	dir   string
	mu    sync.Mutex
	cache map[string]abi.ABI
}

// NewABIStore creates a store searching dir; an empty dir uses only built-in ABIs
func NewABIStore(dir string) *ABIStore {
	return &ABIStore{
		dir:   dir,
		cache: make(map[string]abi.ABI),
	}
}

// Get returns the parsed ABI for a contract name
func (s *ABIStore) Get(name string) (abi.ABI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parsed, ok := s.cache[name]; ok {
		return parsed, nil
	}

	var (
		parsed abi.ABI
		err    error
	)
	if s.dir != "" {
		parsed, err = LoadABI(s.dir, name)
	}
	if s.dir == "" || err == ErrABINotFound {
		raw, ok := builtinABIs[name]
		if !ok {
			return abi.ABI{}, ErrABINotFound
		}
		parsed, err = abi.JSON(strings.NewReader(raw))
	}
	if err != nil {
		return abi.ABI{}, err
	}

	s.cache[name] = parsed
	return parsed, nil
}

var builtinABIs = map[string]string{
	ERC20Template3:    erc20Template3ABI,
	FixedRateExchange: fixedRateExchangeABI,
}

// Only the methods used by the wrappers in this package.
const erc20Template3ABI = `[
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"isValidSubscription","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getFixedRates","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"contractAddress","type":"address"},{"name":"id","type":"bytes32"}]}]},
{"type":"function","name":"stakeToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"curEpoch","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"blocksPerEpoch","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"trueValSubmitTimeoutBlock","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"soonestBlockToPredict","stateMutability":"view","inputs":[{"name":"prediction_block","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getAggPredval","stateMutability":"view","inputs":[{"name":"blocknum","type":"uint256"},{"name":"userAuth","type":"tuple","components":[{"name":"userAddress","type":"address"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"},{"name":"validUntil","type":"uint256"}]}],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
{"type":"function","name":"getPrediction","stateMutability":"view","inputs":[{"name":"blocknum","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"predictedValue","type":"bool"},{"name":"stake","type":"uint256"},{"name":"predictoor","type":"address"},{"name":"paid","type":"bool"}]}]},
{"type":"function","name":"buyFromFreAndOrder","stateMutability":"nonpayable","inputs":[{"name":"orderParams","type":"tuple","components":[{"name":"consumer","type":"address"},{"name":"serviceIndex","type":"uint256"},{"name":"providerFee","type":"tuple","components":[{"name":"providerFeeAddress","type":"address"},{"name":"providerFeeToken","type":"address"},{"name":"providerFeeAmount","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"},{"name":"validUntil","type":"uint256"},{"name":"providerData","type":"bytes"}]},{"name":"consumeMarketFee","type":"tuple","components":[{"name":"consumeMarketFeeAddress","type":"address"},{"name":"consumeMarketFeeToken","type":"address"},{"name":"consumeMarketFeeAmount","type":"uint256"}]}]},{"name":"freParams","type":"tuple","components":[{"name":"exchangeContract","type":"address"},{"name":"exchangeId","type":"bytes32"},{"name":"maxBaseTokenAmount","type":"uint256"},{"name":"swapMarketFee","type":"uint256"},{"name":"marketFeeAddress","type":"address"}]}],"outputs":[]},
{"type":"function","name":"payout","stateMutability":"nonpayable","inputs":[{"name":"blocknum","type":"uint256"},{"name":"predictoor_addr","type":"address"}],"outputs":[]},
{"type":"function","name":"submitPredval","stateMutability":"nonpayable","inputs":[{"name":"predictedValue","type":"bool"},{"name":"stake","type":"uint256"},{"name":"blocknum","type":"uint256"}],"outputs":[]},
{"type":"function","name":"submitTrueVal","stateMutability":"nonpayable","inputs":[{"name":"blocknum","type":"uint256"},{"name":"trueValue","type":"bool"},{"name":"floatValue","type":"uint256"},{"name":"cancelRound","type":"bool"}],"outputs":[]},
{"type":"function","name":"redeemUnusedSlotRevenue","stateMutability":"nonpayable","inputs":[{"name":"blocknum","type":"uint256"}],"outputs":[]}
]`

const fixedRateExchangeABI = `[
{"type":"function","name":"calcBaseInGivenOutDT","stateMutability":"view","inputs":[{"name":"exchangeId","type":"bytes32"},{"name":"datatokenAmount","type":"uint256"},{"name":"consumeMarketSwapFeeAmount","type":"uint256"}],"outputs":[{"name":"baseTokenAmount","type":"uint256"},{"name":"oceanFeeAmount","type":"uint256"},{"name":"publishMarketFeeAmount","type":"uint256"},{"name":"consumeMarketFeeAmount","type":"uint256"}]},
{"type":"function","name":"buyDT","stateMutability":"nonpayable","inputs":[{"name":"exchangeId","type":"bytes32"},{"name":"datatokenAmount","type":"uint256"},{"name":"maxBaseTokenAmount","type":"uint256"},{"name":"consumeMarketAddress","type":"address"},{"name":"consumeMarketSwapFeeAmount","type":"uint256"}],"outputs":[]}
]`
