package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/connection"
	"github.com/oceanprotocol/pdr-utils/internal/predictoor"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

var (
	subscribeCount    int
	subscribeGasLimit uint64
	predictUp         bool
	predictStake      float64
)

// contractCmd groups the on-chain predictor commands
var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Interact with a prediction contract",
}

var contractInfoCmd = &cobra.Command{
	Use:   "info <address>",
	Short: "Show epoch, price and subscription state of a contract",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractInfo,
}

var contractSubscribeCmd = &cobra.Command{
	Use:   "subscribe <address>",
	Short: "Buy datatokens and start subscriptions",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractSubscribe,
}

var contractPayoutCmd = &cobra.Command{
	Use:   "payout <address> <slot>",
	Short: "Claim the payout of a slot",
	Args:  cobra.ExactArgs(2),
	RunE:  runContractPayout,
}

var contractPredictCmd = &cobra.Command{
	Use:   "predict <address> <block>",
	Short: "Submit a prediction for the epoch containing block",
	Args:  cobra.ExactArgs(2),
	RunE:  runContractPredict,
}

func init() {
	contractSubscribeCmd.Flags().IntVar(&subscribeCount, "count", 1, "number of subscriptions to buy")
	contractSubscribeCmd.Flags().Uint64Var(&subscribeGasLimit, "gas-limit", 0, "gas limit per transaction, 0 estimates")
	contractPredictCmd.Flags().BoolVar(&predictUp, "up", true, "predicted direction")
	contractPredictCmd.Flags().Float64Var(&predictStake, "stake", 1, "stake in OCEAN")

	contractCmd.AddCommand(contractInfoCmd)
	contractCmd.AddCommand(contractSubscribeCmd)
	contractCmd.AddCommand(contractPayoutCmd)
	contractCmd.AddCommand(contractPredictCmd)
}

// openPredictor loads configuration, dials the node and binds the contract at address
func openPredictor(ctx context.Context, address string) (*predictoor.PredictorContract, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateChain(); err != nil {
		return nil, nil, err
	}
	if !utils.IsValidAddress(address) {
		return nil, nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid contract address", address)
	}

	chain, cm, err := buildChain(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	contract, err := predictoor.NewPredictorContract(ctx, chain, common.HexToAddress(address))
	if err != nil {
		cm.Close()
		return nil, nil, err
	}
	return contract, func() { cm.Close() }, nil
}

func buildChain(ctx context.Context, cfg *config.Config) (*predictoor.Chain, *connection.ConnectionManager, error) {
	cm := connection.NewConnectionManager(&cfg.RPC)

	client, err := cm.GetClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	chainID, err := cm.ChainID(ctx)
	if err != nil {
		cm.Close()
		return nil, nil, err
	}

	wallet, err := predictoor.NewKeyWallet(cfg.Wallet.PrivateKey, chainID)
	if err != nil {
		cm.Close()
		return nil, nil, err
	}

	var artifacts string
	if cfg.Wallet.AddressFile != "" {
		artifacts = predictoor.ArtifactsDir(cfg.Wallet.AddressFile)
	}

	chain := predictoor.NewChain(client, wallet, predictoor.NewABIStore(artifacts)).
		WithReceiptPoll(cfg.RPC.ReceiptPoll)
	return chain, cm, nil
}

func parseBig(name, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeValidation, fmt.Sprintf("Invalid %s", name), value)
	}
	return n, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runContractInfo(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext()
	defer stop()

	contract, closeFn, err := openPredictor(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	epoch, err := contract.GetCurrentEpoch(ctx)
	if err != nil {
		return err
	}
	blocksPerEpoch, err := contract.GetBlocksPerEpoch(ctx)
	if err != nil {
		return err
	}
	valid, err := contract.IsValidSubscription(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Contract:            %s\n", contract.Address().Hex())
	fmt.Printf("Stake token:         %s\n", contract.StakeToken().Address().Hex())
	fmt.Printf("Current epoch:       %s\n", epoch)
	fmt.Printf("Blocks per epoch:    %s\n", blocksPerEpoch)
	fmt.Printf("Valid subscription:  %t\n", valid)

	price, err := contract.GetPrice(ctx)
	switch {
	case err == nil:
		fmt.Printf("Subscription price:  %s wei\n", price)
	case errors.Is(err, predictoor.ErrNoExchange):
		fmt.Println("Subscription price:  no exchange")
	default:
		return err
	}
	return nil
}

func runContractSubscribe(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext()
	defer stop()

	contract, closeFn, err := openPredictor(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	txs, err := contract.BuyMany(ctx, subscribeCount, subscribeGasLimit)
	for _, tx := range txs {
		fmt.Printf("sent %s\n", tx.Hash().Hex())
	}
	return err
}

func runContractPayout(cmd *cobra.Command, args []string) error {
	slot, err := parseBig("slot", args[1])
	if err != nil {
		return err
	}

	ctx, stop := commandContext()
	defer stop()

	contract, closeFn, err := openPredictor(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	receipt, err := contract.Payout(ctx, slot)
	if err != nil {
		return err
	}
	fmt.Printf("payout mined in block %s: %s\n", receipt.BlockNumber, receipt.TxHash.Hex())
	return nil
}

func runContractPredict(cmd *cobra.Command, args []string) error {
	block, err := parseBig("block", args[1])
	if err != nil {
		return err
	}

	ctx, stop := commandContext()
	defer stop()

	contract, closeFn, err := openPredictor(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	receipt, err := contract.SubmitPrediction(ctx, predictUp, predictStake, block)
	if err != nil {
		return err
	}
	fmt.Printf("prediction mined in block %s: %s\n", receipt.BlockNumber, receipt.TxHash.Hex())
	return nil
}
