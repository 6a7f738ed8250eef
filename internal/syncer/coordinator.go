package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/errs"
	"github.com/wnt/copytrail/internal/follow"
	"github.com/wnt/copytrail/internal/helius"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/metrics"
	"github.com/wnt/copytrail/internal/models"
	"github.com/wnt/copytrail/internal/parser"
	"github.com/wnt/copytrail/internal/pnl"
	"github.com/wnt/copytrail/internal/profile"
	"github.com/wnt/copytrail/internal/store"
	"github.com/wnt/copytrail/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Provider is the slice of the upstream client the coordinator consumes.
// Satisfied by *helius.Client; tests substitute a fake.
type Provider interface {
	Signatures(ctx context.Context, address string, opts helius.SignatureOptions) ([]helius.SignatureInfo, error)
	Enhance(ctx context.Context, signatures []string) ([]helius.EnhancedTransaction, error)
}

// MintEnricher backfills token metadata for mints seen in new trades.
// Satisfied by *services.TokenEnricher; optional.
type MintEnricher interface {
	EnrichMints(ctx context.Context, mints []string)
}

// Result summarizes one completed sync run.
type Result struct {
	WalletID        uint          `json:"wallet_id"`
	Address         string        `json:"address"`
	NewTransactions int           `json:"new_transactions"`
	NewTrades       int           `json:"new_trades"`
	TotalTrades     int           `json:"total_trades"`
	Duration        time.Duration `json:"duration"`
}

// run is the shared handle for one in-flight sync; attachers wait on done.
type run struct {
	done   chan struct{}
	result *Result
	err    error
}

// NewCoordinator wires the ingestion pipeline: provider, parser, store,
// FIFO engine, profiler, and follow simulator.
func NewCoordinator(cfg config.Config, st *store.Store, provider Provider, broadcaster *Broadcaster, baseLogger zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		store:       st,
		provider:    provider,
		parser:      parser.NewSwapParser(cfg.StableToSOLRate),
		engine:      pnl.NewEngine(st, baseLogger),
		simulator:   follow.NewSimulator(st, cfg.FollowDelaySeconds, cfg.SlippageModel, baseLogger),
		broadcaster: broadcaster,
		logger:      logger.WithComponent(baseLogger, "sync_coordinator"),
		inflight:    make(map[string]*run),
	}
}

// Coordinator drives incremental ingestion for tracked wallets. Each wallet
// has at most one in-flight run; concurrent requests for the same wallet
// attach to it.
type Coordinator struct {
	cfg         config.Config
	store       *store.Store
	provider    Provider
	parser      *parser.SwapParser
	engine      *pnl.Engine
	simulator   *follow.Simulator
	broadcaster *Broadcaster
	enricher    MintEnricher
	logger      zerolog.Logger

	mutex    sync.Mutex
	inflight map[string]*run
}

// SetEnricher attaches a token metadata enricher. New mints are enriched on
// a best-effort basis after each committed batch.
func (c *Coordinator) SetEnricher(enricher MintEnricher) {
	c.enricher = enricher
}

// Sync ingests new transactions for a wallet and refreshes its derived
// state. With forceRefresh the stored cursor is ignored and the full history
// is re-fetched; a forced request arriving during an active run is sequenced
// after it.
func (c *Coordinator) Sync(ctx context.Context, address string, userID uint, forceRefresh bool) (*Result, error) {
	if err := helius.ValidateAddress(address); err != nil {
		return nil, err
	}

	for {
		c.mutex.Lock()
		if existing, ok := c.inflight[address]; ok {
			c.mutex.Unlock()
			if !forceRefresh {
				select {
				case <-existing.done:
					return existing.result, existing.err
				case <-ctx.Done():
					return nil, errs.Wrap(errs.Cancelled, address, "sync wait cancelled", ctx.Err())
				}
			}
			// A forced refresh waits out the active run, then claims the slot.
			select {
			case <-existing.done:
			case <-ctx.Done():
				return nil, errs.Wrap(errs.Cancelled, address, "sync wait cancelled", ctx.Err())
			}
			continue
		}

		handle := &run{done: make(chan struct{})}
		c.inflight[address] = handle
		c.mutex.Unlock()

		handle.result, handle.err = c.runSync(ctx, address, userID, forceRefresh)

		c.mutex.Lock()
		delete(c.inflight, address)
		c.mutex.Unlock()
		close(handle.done)

		return handle.result, handle.err
	}
}

// BulkResult pairs one address of a bulk sync with its outcome.
type BulkResult struct {
	Address string  `json:"address"`
	Result  *Result `json:"result,omitempty"`
	Err     error   `json:"-"`
}

// SyncAll runs syncs for many wallets concurrently, bounded by maxParallel.
// Per-wallet failures are collected, never propagated; every address gets an
// entry in the returned slice, in input order.
func (c *Coordinator) SyncAll(ctx context.Context, addresses []string, userID uint, forceRefresh bool, maxParallel int) []BulkResult {
	if maxParallel <= 0 {
		maxParallel = 4
	}

	results := make([]BulkResult, len(addresses))
	var group errgroup.Group
	group.SetLimit(maxParallel)

	for i, address := range addresses {
		i, address := i, address
		group.Go(func() error {
			result, err := c.Sync(ctx, address, userID, forceRefresh)
			results[i] = BulkResult{Address: address, Result: result, Err: err}
			if err != nil {
				c.logger.Warn().Err(err).Str("wallet", address).Msg("Bulk sync entry failed")
			}
			return nil
		})
	}
	group.Wait()
	return results
}

// runSync executes one full ingestion pass: fetch, parse, persist, roll up.
func (c *Coordinator) runSync(ctx context.Context, address string, userID uint, forceRefresh bool) (*Result, error) {
	start := time.Now()
	logger := c.logger.With().Str("wallet", address).Logger()

	wallet, err := c.store.GetOrCreateWallet(ctx, address, userID)
	if err != nil {
		return nil, err
	}

	until := wallet.LastSignature
	if forceRefresh {
		until = ""
	}

	c.publish(Event{Level: LevelInfo, Wallet: address, Message: "sync started"})

	signatures, err := c.fetchSignatures(ctx, address, until)
	if err != nil {
		c.publish(Event{Level: LevelError, Wallet: address, Message: err.Error()})
		return nil, err
	}

	result := &Result{WalletID: wallet.ID, Address: address}

	if len(signatures) == 0 {
		c.publish(Event{Level: LevelSuccess, Wallet: address, Message: "already up to date"})
		result.Duration = time.Since(start)
		return result, nil
	}

	batch, err := c.parseSignatures(ctx, address, wallet.ID, signatures)
	if err != nil {
		c.publish(Event{Level: LevelError, Wallet: address, Message: err.Error()})
		return nil, err
	}

	// Nothing fetched so far has touched the store; bail out cleanly if the
	// caller is gone before the commit.
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Cancelled, address, "sync cancelled before commit", err)
	}

	if err := c.store.CommitSyncBatch(ctx, *batch); err != nil {
		c.publish(Event{Level: LevelError, Wallet: address, Message: err.Error()})
		return nil, err
	}
	result.NewTransactions = len(batch.NewTransactions)
	result.NewTrades = len(batch.Trades)

	// The raw transaction set changed, so the launch table is stale.
	if err := c.store.RefreshTokenLaunches(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to refresh token launches")
	}

	if c.enricher != nil && len(batch.Trades) > 0 {
		mints := make([]string, 0, len(batch.Trades))
		for _, trade := range batch.Trades {
			mints = append(mints, trade.TokenMint)
		}
		c.enricher.EnrichMints(ctx, mints)
	}

	if err := c.rollup(ctx, wallet.ID, address, result); err != nil {
		c.publish(Event{Level: LevelError, Wallet: address, Message: err.Error()})
		return nil, err
	}

	result.Duration = time.Since(start)
	metrics.RecordWalletSync(result.Duration.Seconds())
	c.publish(Event{Level: LevelSuccess, Wallet: address,
		Message: fmt.Sprintf("sync complete: %d new transactions, %d new trades", result.NewTransactions, result.NewTrades)})
	logger.Info().
		Int("new_transactions", result.NewTransactions).
		Int("new_trades", result.NewTrades).
		Dur("duration", result.Duration).
		Msg("Wallet synced")
	return result, nil
}

// fetchSignatures pages the wallet's signature history newest-first until an
// empty page, a short page, the stored cursor, or the safety cap.
func (c *Coordinator) fetchSignatures(ctx context.Context, address, until string) ([]helius.SignatureInfo, error) {
	var all []helius.SignatureInfo
	before := ""

	for {
		page, err := c.provider.Signatures(ctx, address, helius.SignatureOptions{
			Before: before,
			Until:  until,
			Limit:  c.cfg.SignatureBatchSize,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		c.publish(Event{Level: LevelProgress, Wallet: address,
			Message: "fetching signatures", Current: len(all)})

		if len(all) >= c.cfg.SyncMaxSignatures {
			all = all[:c.cfg.SyncMaxSignatures]
			c.publish(Event{Level: LevelWarning, Wallet: address,
				Message: fmt.Sprintf("signature cap of %d reached, older history skipped", c.cfg.SyncMaxSignatures)})
			break
		}
		if len(page) < c.cfg.SignatureBatchSize {
			break
		}
		before = page[len(page)-1].Signature
	}
	return all, nil
}

// parseSignatures resolves signatures into enhanced records in batches and
// converts them to trades, assembling one commit unit.
func (c *Coordinator) parseSignatures(ctx context.Context, address string, walletID uint, signatures []helius.SignatureInfo) (*store.SyncBatch, error) {
	batch := &store.SyncBatch{
		WalletID: walletID,
		// Provider order is newest-first.
		LastSignature: signatures[0].Signature,
	}
	for _, info := range signatures {
		blockTime := time.Unix(info.BlockTime, 0).UTC()
		if batch.EarliestTime.IsZero() || blockTime.Before(batch.EarliestTime) {
			batch.EarliestTime = blockTime
		}
	}

	sigStrings := make([]string, len(signatures))
	for i, info := range signatures {
		sigStrings[i] = info.Signature
	}

	processed := 0
	for _, chunk := range utils.Chunk(sigStrings, c.cfg.EnhanceBatchSize) {
		transactions, err := c.provider.Enhance(ctx, chunk)
		if err != nil {
			if errs.KindOf(err) == errs.ProviderMalformed {
				// A bad batch is skipped, not fatal.
				metrics.RecordTransactionSkipped("malformed")
				c.publish(Event{Level: LevelWarning, Wallet: address, Message: "skipped unparseable batch"})
				processed += len(chunk)
				continue
			}
			return nil, err
		}

		for i := range transactions {
			tx := &transactions[i]
			payload, err := json.Marshal(tx)
			if err != nil {
				metrics.RecordTransactionSkipped("marshal")
				continue
			}

			trades := c.parser.Parse(tx, address)
			for _, trade := range trades {
				metrics.RecordTradeParsed(trade.Side)
			}
			if len(trades) == 0 {
				// ParseEmpty: a record that yields no trades is normal.
				metrics.RecordTransactionSkipped("no_trades")
			}
			batch.Trades = append(batch.Trades, trades...)

			batch.NewTransactions = append(batch.NewTransactions, models.RawTransaction{
				Signature: tx.Signature,
				BlockTime: time.Unix(tx.Timestamp, 0).UTC(),
				Slot:      tx.Slot,
				Type:      tx.Type,
				Source:    tx.Source,
				Payload:   string(payload),
				Parsed:    true,
			})
		}

		processed += len(chunk)
		c.publish(Event{Level: LevelProgress, Wallet: address, Message: "parsing transactions",
			Current: processed, Total: len(sigStrings),
			Percentage: float64(processed) / float64(len(sigStrings)) * 100})
	}

	return batch, nil
}

// rollup rebuilds the wallet's derived state after a commit: FIFO positions,
// behavioral profile, follow score, and the cached rollup fields.
func (c *Coordinator) rollup(ctx context.Context, walletID uint, address string, result *Result) error {
	trades, err := c.store.TradesByWallet(ctx, walletID, 0)
	if err != nil {
		return err
	}
	result.TotalTrades = len(trades)

	positions, err := c.engine.Recompute(ctx, walletID, trades)
	if err != nil {
		return err
	}

	launches, err := c.store.TokenLaunches(ctx)
	if err != nil {
		return err
	}
	behavior := profile.Build(trades, launches)

	if _, err := c.simulator.Score(ctx, walletID); err != nil {
		return err
	}

	rollups := store.WalletRollups{
		TotalSolVolume:  behavior.TotalSolVolume,
		TotalTrades:     behavior.TotalTrades,
		QuickFlipRate:   behavior.EarlyExitRate,
		ExitedTokenRate: behavior.RoundTripRate,
	}
	wins := 0
	for _, position := range positions {
		rollups.TotalRealizedPnl += position.RealizedPnl
		wins += position.WinCount
	}
	sells := len(utils.Filter(trades, func(t models.Trade) bool { return t.IsSell() }))
	if sells > 0 {
		rollups.WinRate = float64(wins) / float64(sells)
	}

	return c.store.UpsertWalletRollups(ctx, walletID, rollups)
}

func (c *Coordinator) publish(event Event) {
	if c.broadcaster != nil {
		c.broadcaster.Publish(event)
	}
}
