package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crosschain-core/internal/metrics"
	"crosschain-core/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// ReceiptFetcher is the eth_getTransactionReceipt capability; *ethclient.Client satisfies it
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// ReceiptProcessor waits for the receipt of a submitted transaction
type ReceiptProcessor interface {
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// PollingReceiptProcessor queries the node on a fixed interval until a receipt appears
type PollingReceiptProcessor struct {
	fetcher  ReceiptFetcher
	attempts int
	interval time.Duration
	logger   *logrus.Logger
}

// NewPollingReceiptProcessor creates a processor that gives up after attempts queries
func NewPollingReceiptProcessor(fetcher ReceiptFetcher, attempts int, interval time.Duration, logger *logrus.Logger) *PollingReceiptProcessor {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PollingReceiptProcessor{
		fetcher:  fetcher,
		attempts: attempts,
		interval: interval,
		logger:   logger,
	}
}

func (p *PollingReceiptProcessor) WaitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	startTime := time.Now()
	log := p.logger.WithFields(logrus.Fields{
		"tx_hash":  txHash.Hex(),
		"attempts": p.attempts,
		"interval": p.interval,
	})
	log.Debug("[ReceiptProcessor] Waiting for transaction receipt")

	var ticker *time.Ticker
	if p.interval > 0 {
		ticker = time.NewTicker(p.interval)
		defer ticker.Stop()
	}

	for attempt := 1; attempt <= p.attempts; attempt++ {
		receipt, err := p.fetcher.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			metrics.ReceiptWaitDuration.Observe(time.Since(startTime).Seconds())
			log.WithFields(logrus.Fields{
				"poll":         attempt,
				"block_number": receipt.BlockNumber,
				"status":       receipt.Status,
				"elapsed":      time.Since(startTime),
			}).Info("[ReceiptProcessor] Transaction receipt received")
			return receipt, nil
		}

		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil && !errors.Is(err, ethereum.NotFound):
			log.WithField("poll", attempt).WithError(err).Warn("[ReceiptProcessor] Error querying receipt")
		default:
			log.WithField("poll", attempt).Debug("[ReceiptProcessor] Receipt not found yet")
		}

		if attempt == p.attempts || ticker == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	metrics.ReceiptTimeouts.Inc()
	log.WithField("elapsed", time.Since(startTime)).Warn("[ReceiptProcessor] Gave up waiting for receipt")
	return nil, fmt.Errorf("%w: %s after %d attempts", types.ErrReceiptTimeout, txHash.Hex(), p.attempts)
}

// NoOpReceiptProcessor returns immediately with a receipt that carries only the transaction hash
type NoOpReceiptProcessor struct{}

func NewNoOpReceiptProcessor() *NoOpReceiptProcessor {
	return &NoOpReceiptProcessor{}
}

func (NoOpReceiptProcessor) WaitForReceipt(_ context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{TxHash: txHash}, nil
}
