package connection

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// ReceiptReader fetches transaction receipts; *ethclient.Client satisfies it
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt polls for the receipt of txHash until it is mined or ctx ends.
// A mined but reverted transaction is reported as an error together with its receipt.
func WaitForReceipt(ctx context.Context, reader ReceiptReader, txHash common.Hash, poll time.Duration) (*types.Receipt, error) {
	if poll <= 0 {
		poll = time.Second
	}
	logger := utils.NewSublogger("receipts").WithField("tx_hash", txHash.Hex())

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, utils.NewAppError(utils.ErrCodeBlockchain, "Transaction failed", txHash.Hex())
			}
			logger.WithFields(logrus.Fields{
				"block":    receipt.BlockNumber,
				"gas_used": receipt.GasUsed,
			}).Debug("Transaction mined")
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			logger.Trace("Transaction not yet mined")
		default:
			logger.WithError(err).Warn("Failed to get transaction receipt")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
