package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/errs"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/queue"
	"github.com/wnt/copytrail/internal/syncer"
)

// defaultUserID is the catalog owner the background refresher syncs for.
const defaultUserID = 1

const (
	emptyQueuePause = 10 * time.Second
	errorPause      = 5 * time.Second
)

// Worker drains the refresh queue one wallet at a time and hands each to the
// sync coordinator.
type Worker struct {
	id          string
	queue       *queue.Client
	coordinator *syncer.Coordinator
	logger      zerolog.Logger

	// Written by the manager during scale-down while Start polls it.
	stopped atomic.Bool
}

// NewWorker creates a worker bound to the shared queue and coordinator.
func NewWorker(id string, queueClient *queue.Client, coordinator *syncer.Coordinator, baseLogger zerolog.Logger) *Worker {
	return &Worker{
		id:          id,
		queue:       queueClient,
		coordinator: coordinator,
		logger:      logger.WithWorker(baseLogger, id),
	}
}

// Start runs the processing loop until the context is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker received shutdown signal")
			return ctx.Err()
		default:
			if w.stopped.Load() {
				w.logger.Info().Msg("Worker stopped")
				return nil
			}

			if err := w.processNext(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Failed to process wallet")

				// Brief pause to avoid tight error loops.
				select {
				case <-time.After(errorPause):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Stop signals the worker to exit after its current wallet.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// processNext pops one wallet, syncs it, and requeues it on failure.
func (w *Worker) processNext(ctx context.Context) error {
	addr, force, err := w.queue.PopWallet(ctx)
	if err != nil {
		return fmt.Errorf("failed to pop wallet from queue: %w", err)
	}
	if addr == "" {
		select {
		case <-time.After(emptyQueuePause):
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	if err := w.queue.SetInFlight(ctx, addr, w.id); err != nil {
		w.logger.Error().Err(err).Str("wallet", addr).Msg("Failed to mark wallet as in-flight")
		if requeueErr := w.queue.PushWallet(ctx, addr, 0, force); requeueErr != nil {
			w.logger.Error().Err(requeueErr).Str("wallet", addr).Msg("Failed to requeue wallet after in-flight error")
		}
		return err
	}

	walletLogger := logger.WithWallet(w.logger, addr)
	start := time.Now()

	result, err := w.coordinator.Sync(ctx, addr, defaultUserID, force)
	duration := time.Since(start)

	if removeErr := w.queue.RemoveInFlight(ctx, addr); removeErr != nil {
		walletLogger.Error().Err(removeErr).Msg("Failed to remove wallet from in-flight tracking")
	}

	if err != nil {
		walletLogger.Error().Err(err).Dur("duration", duration).Msg("Wallet sync failed")

		// Transient provider failures go back in line behind everything
		// newer. Permanent ones (bad address, malformed history) would only
		// fail again, so they leave the queue.
		if errs.IsRetryable(err) {
			if requeueErr := w.queue.PushWallet(ctx, addr, float64(time.Now().Unix()), force); requeueErr != nil {
				walletLogger.Error().Err(requeueErr).Msg("Failed to requeue failed wallet")
			}
		}
		return fmt.Errorf("wallet sync failed: %w", err)
	}

	walletLogger.Info().
		Int("new_transactions", result.NewTransactions).
		Int("new_trades", result.NewTrades).
		Dur("duration", duration).
		Msg("Wallet refresh completed")
	return nil
}
