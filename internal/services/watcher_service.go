package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/fruteroclub/pulpa-distributor/internal/models"
)

// WatcherService tracks on-chain confirmation of broadcast transfers on a
// bounded worker pool. It is fully detached from the payout path: every
// failure here is logged and swallowed, never surfaced to the caller that
// already received a broadcast success.
type WatcherService struct {
	pool    *ants.Pool
	token   TokenService
	ledger  LedgerService
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewWatcherService(token TokenService, ledger LedgerService, poolSize int, timeout time.Duration, logger *zap.Logger) (*WatcherService, error) {
	// Nonblocking: a saturated pool must never stall the payout path, so
	// Submit fails fast and Watch falls back to a plain goroutine.
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	return &WatcherService{
		pool:    pool,
		token:   token,
		ledger:  ledger,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Watch schedules a confirmation check for a completed distribution. It
// returns immediately; the annotation lands on the ledger row whenever the
// chain finalizes the transaction.
func (w *WatcherService) Watch(distributionID uint, txHash string) {
	w.wg.Add(1)
	err := w.pool.Submit(func() {
		defer w.wg.Done()
		w.confirm(distributionID, txHash)
	})
	if err == nil {
		return
	}

	if errors.Is(err, ants.ErrPoolOverload) {
		// All workers busy. Overflow onto a plain goroutine instead of
		// making the payout caller wait for a slot.
		go func() {
			defer w.wg.Done()
			w.confirm(distributionID, txHash)
		}()
		return
	}

	w.wg.Done()
	w.logger.Error("failed to schedule confirmation watch",
		zap.Uint("distribution_id", distributionID),
		zap.String("tx_hash", txHash),
		zap.Error(err),
	)
}

func (w *WatcherService) confirm(distributionID uint, txHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	result, err := w.token.WaitForConfirmation(ctx, txHash)
	if err != nil {
		w.logger.Error("confirmation watch failed",
			zap.Uint("distribution_id", distributionID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"metadata": models.JSON{
			"block_number":        result.BlockNumber,
			"gas_used":            result.GasUsed,
			"confirmation_status": string(result.Status),
		},
		"confirmed_at": &now,
	}
	if err := w.ledger.Update(distributionID, updates); err != nil {
		w.logger.Error("failed to annotate distribution with confirmation",
			zap.Uint("distribution_id", distributionID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("distribution confirmed on chain",
		zap.Uint("distribution_id", distributionID),
		zap.String("tx_hash", txHash),
		zap.Uint64("block_number", result.BlockNumber),
		zap.Uint64("gas_used", result.GasUsed),
		zap.String("status", string(result.Status)),
	)
}

// WaitIdle blocks until every scheduled watch has finished. Used by tests
// and graceful shutdown.
func (w *WatcherService) WaitIdle() {
	w.wg.Wait()
}

// Shutdown waits for in-flight watches and releases the pool.
func (w *WatcherService) Shutdown() {
	w.wg.Wait()
	w.pool.Release()
	w.logger.Info("confirmation watcher shut down")
}
