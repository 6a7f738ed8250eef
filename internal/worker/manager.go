package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/metrics"
	"github.com/wnt/copytrail/internal/queue"
	"github.com/wnt/copytrail/internal/syncer"
	"golang.org/x/sync/errgroup"
)

const (
	scalingInterval    = 30 * time.Second
	monitoringInterval = time.Minute
	recoveryInterval   = 5 * time.Minute
	stuckTimeout       = 15 * time.Minute
	shutdownTimeout    = 30 * time.Second
)

// Manager runs a dynamic pool of refresh workers, scaled to the queue depth.
type Manager struct {
	config      config.Config
	queue       *queue.Client
	coordinator *syncer.Coordinator
	workers     []*Worker
	logger      zerolog.Logger
	mutex       sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	eg          *errgroup.Group
	stopped     bool
}

// NewManager creates a worker manager over the shared queue and coordinator.
func NewManager(cfg config.Config, queueClient *queue.Client, coordinator *syncer.Coordinator, baseLogger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	return &Manager{
		config:      cfg,
		queue:       queueClient,
		coordinator: coordinator,
		logger:      logger.WithComponent(baseLogger, "worker_manager"),
		ctx:         egCtx,
		cancel:      cancel,
		eg:          eg,
	}
}

// Start spins up the initial workers and the background loops.
func (m *Manager) Start() error {
	m.logger.Info().
		Int("min_workers", m.config.MinWorkers).
		Int("max_workers", m.config.MaxWorkers).
		Msg("Starting worker manager")

	if err := m.adjustWorkerCount(); err != nil {
		return fmt.Errorf("failed to start initial workers: %w", err)
	}

	m.eg.Go(m.runScalingLoop)
	m.eg.Go(m.runStuckWalletRecovery)
	m.eg.Go(m.runQueueMonitoring)

	m.logger.Info().Msg("Worker manager started successfully")
	return nil
}

// Stop shuts the pool down, waiting for in-flight syncs up to a timeout.
func (m *Manager) Stop() error {
	m.mutex.Lock()
	if m.stopped {
		m.mutex.Unlock()
		return nil
	}
	m.stopped = true
	m.mutex.Unlock()

	m.logger.Info().Msg("Stopping worker manager...")
	m.cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.eg.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			m.logger.Error().Err(err).Msg("Error during worker shutdown")
		}
	case <-time.After(shutdownTimeout):
		m.logger.Warn().Msg("Worker shutdown timed out")
	}

	m.mutex.Lock()
	m.workers = nil
	m.mutex.Unlock()

	metrics.WorkersActive.Set(0)
	m.logger.Info().Msg("Worker manager stopped")
	return nil
}

// runScalingLoop re-evaluates the worker count periodically.
func (m *Manager) runScalingLoop() error {
	ticker := time.NewTicker(scalingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-ticker.C:
			if err := m.adjustWorkerCount(); err != nil {
				m.logger.Error().Err(err).Msg("Failed to adjust worker count")
			}
		}
	}
}

// adjustWorkerCount scales the pool toward one worker per ten queued wallets,
// clamped to the configured bounds.
func (m *Manager) adjustWorkerCount() error {
	queueLength, err := m.queue.QueueLength(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to get queue length: %w", err)
	}

	desired := int(queueLength) / 10
	if desired < m.config.MinWorkers {
		desired = m.config.MinWorkers
	}
	if desired > m.config.MaxWorkers {
		desired = m.config.MaxWorkers
	}

	m.mutex.Lock()
	current := len(m.workers)
	m.mutex.Unlock()

	if desired == current {
		return nil
	}

	m.logger.Info().
		Int("current_workers", current).
		Int("desired_workers", desired).
		Int64("queue_length", queueLength).
		Msg("Adjusting worker count")

	if desired > current {
		m.addWorkers(desired - current)
	} else {
		m.removeWorkers(current - desired)
	}
	return nil
}

// addWorkers starts count new workers.
func (m *Manager) addWorkers(count int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("worker-%d", len(m.workers)+1)
		w := NewWorker(id, m.queue, m.coordinator, m.logger)

		m.eg.Go(func() error {
			return w.Start(m.ctx)
		})
		m.workers = append(m.workers, w)
	}

	metrics.WorkersActive.Set(float64(len(m.workers)))
	m.logger.Info().
		Int("added", count).
		Int("total_workers", len(m.workers)).
		Msg("Workers added")
}

// removeWorkers signals count workers to finish their current wallet and exit.
func (m *Manager) removeWorkers(count int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if count > len(m.workers) {
		count = len(m.workers)
	}

	for _, w := range m.workers[len(m.workers)-count:] {
		w.Stop()
	}
	m.workers = m.workers[:len(m.workers)-count]

	metrics.WorkersActive.Set(float64(len(m.workers)))
	m.logger.Info().
		Int("removed", count).
		Int("remaining_workers", len(m.workers)).
		Msg("Workers removed")
}

// runStuckWalletRecovery requeues wallets whose worker died mid-refresh.
func (m *Manager) runStuckWalletRecovery() error {
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-ticker.C:
			if err := m.queue.RequeueStuckWallets(m.ctx, stuckTimeout); err != nil {
				m.logger.Error().Err(err).Msg("Failed to requeue stuck wallets")
			}
		}
	}
}

// runQueueMonitoring logs queue statistics once a minute.
func (m *Manager) runQueueMonitoring() error {
	ticker := time.NewTicker(monitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-ticker.C:
			queueLength, err := m.queue.QueueLength(m.ctx)
			if err != nil {
				m.logger.Error().Err(err).Msg("Failed to get queue length for monitoring")
				continue
			}
			inflight, err := m.queue.InFlightWallets(m.ctx)
			if err != nil {
				m.logger.Error().Err(err).Msg("Failed to get in-flight wallets for monitoring")
				continue
			}

			m.mutex.RLock()
			active := len(m.workers)
			m.mutex.RUnlock()

			m.logger.Info().
				Int64("queue_length", queueLength).
				Int("in_flight_wallets", len(inflight)).
				Int("active_workers", active).
				Msg("Queue monitoring stats")
		}
	}
}

// Stats reports the manager's current state.
func (m *Manager) Stats(ctx context.Context) map[string]interface{} {
	m.mutex.RLock()
	active := len(m.workers)
	m.mutex.RUnlock()

	queueLength, _ := m.queue.QueueLength(ctx)
	inflight, _ := m.queue.InFlightWallets(ctx)

	return map[string]interface{}{
		"active_workers":    active,
		"queue_length":      queueLength,
		"in_flight_wallets": len(inflight),
		"min_workers":       m.config.MinWorkers,
		"max_workers":       m.config.MaxWorkers,
	}
}
