package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/constants"
	"github.com/wnt/copytrail/internal/errs"
	"github.com/wnt/copytrail/internal/helius"
	"github.com/wnt/copytrail/internal/models"
	"github.com/wnt/copytrail/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Valid base58 public keys reused as test wallet addresses.
const (
	walletAddr = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testMint   = "TokenMintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	otherParty = "CounterParty11111111111111111111111111111111"
)

// fakeProvider serves canned signature pages and enhanced transactions.
type fakeProvider struct {
	mutex        sync.Mutex
	signatures   []helius.SignatureInfo
	transactions map[string]helius.EnhancedTransaction
	sigCalls     []helius.SignatureOptions
	enhanceCalls int
	gate         chan struct{}
}

func (f *fakeProvider) Signatures(ctx context.Context, address string, opts helius.SignatureOptions) ([]helius.SignatureInfo, error) {
	f.mutex.Lock()
	f.sigCalls = append(f.sigCalls, opts)
	gate := f.gate
	f.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Cancelled, address, "request cancelled", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Cancelled, address, "request cancelled", err)
	}

	started := opts.Before == ""
	var page []helius.SignatureInfo
	for _, info := range f.signatures {
		if !started {
			if info.Signature == opts.Before {
				started = true
			}
			continue
		}
		if opts.Until != "" && info.Signature == opts.Until {
			break
		}
		page = append(page, info)
		if len(page) >= opts.Limit {
			break
		}
	}
	return page, nil
}

func (f *fakeProvider) Enhance(ctx context.Context, signatures []string) ([]helius.EnhancedTransaction, error) {
	f.mutex.Lock()
	f.enhanceCalls++
	f.mutex.Unlock()

	var out []helius.EnhancedTransaction
	for _, sig := range signatures {
		if tx, ok := f.transactions[sig]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func buyTx(sig string, ts int64, solAmount, tokenAmount float64) helius.EnhancedTransaction {
	return helius.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		Slot:      ts,
		Type:      "SWAP",
		Source:    "RAYDIUM",
		NativeTransfers: []helius.NativeTransfer{
			{FromUserAccount: walletAddr, ToUserAccount: otherParty, Amount: int64(solAmount * constants.LamportsPerSOL)},
		},
		TokenTransfers: []helius.TokenTransfer{
			{FromUserAccount: otherParty, ToUserAccount: walletAddr, Mint: testMint, TokenAmount: tokenAmount},
		},
	}
}

func sellTx(sig string, ts int64, solAmount, tokenAmount float64) helius.EnhancedTransaction {
	return helius.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		Slot:      ts,
		Type:      "SWAP",
		Source:    "RAYDIUM",
		NativeTransfers: []helius.NativeTransfer{
			{FromUserAccount: otherParty, ToUserAccount: walletAddr, Amount: int64(solAmount * constants.LamportsPerSOL)},
		},
		TokenTransfers: []helius.TokenTransfer{
			{FromUserAccount: walletAddr, ToUserAccount: otherParty, Mint: testMint, TokenAmount: tokenAmount},
		},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every statement on the same in-memory db.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.RawTransaction{},
		&models.Trade{},
		&models.Position{},
		&models.CostBasisLot{},
		&models.FollowScore{},
		&models.TokenLaunch{},
		&models.TokenMetadata{},
	))
	return store.New(db)
}

func testConfig() config.Config {
	return config.Config{
		SignatureBatchSize: 1000,
		EnhanceBatchSize:   100,
		SyncMaxSignatures:  5000,
		FollowDelaySeconds: 5,
		SlippageModel:      "moderate",
		StableToSOLRate:    0.01,
	}
}

func newTestCoordinator(t *testing.T, provider Provider) (*Coordinator, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	coordinator := NewCoordinator(testConfig(), st, provider, NewBroadcaster(), zerolog.Nop())
	return coordinator, st
}

// TestSyncIngestsAndRollsUp tests a full first sync: raw transactions,
// trades, positions, and rollups all land
func TestSyncIngestsAndRollsUp(t *testing.T) {
	provider := &fakeProvider{
		signatures: []helius.SignatureInfo{
			{Signature: "sig2", Slot: 2000, BlockTime: 2000},
			{Signature: "sig1", Slot: 1000, BlockTime: 1000},
		},
		transactions: map[string]helius.EnhancedTransaction{
			"sig1": buyTx("sig1", 1000, 1.0, 1000),
			"sig2": sellTx("sig2", 2000, 1.5, 1000),
		},
	}
	coordinator, st := newTestCoordinator(t, provider)
	ctx := context.Background()

	result, err := coordinator.Sync(ctx, walletAddr, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewTransactions)
	assert.Equal(t, 2, result.NewTrades)
	assert.Equal(t, 2, result.TotalTrades)

	wallet, err := st.GetWallet(ctx, walletAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, "sig2", wallet.LastSignature)
	assert.InDelta(t, 0.5, wallet.TotalRealizedPnl, 1e-9)
	assert.InDelta(t, 1.0, wallet.WinRate, 1e-9)
	assert.Equal(t, 2, wallet.TotalTrades)
	require.NotNil(t, wallet.FirstSyncedAt)

	positions, err := st.PositionsByWallet(ctx, wallet.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Zero(t, positions[0].RemainingTokens)

	score, err := st.GetFollowScore(ctx, wallet.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score.ActualPnl, 1e-9)
}

// TestSyncIncrementalStopsAtCursor tests that a second run passes the stored
// cursor as the until marker and ingests nothing new
func TestSyncIncrementalStopsAtCursor(t *testing.T) {
	provider := &fakeProvider{
		signatures: []helius.SignatureInfo{
			{Signature: "sig1", Slot: 1000, BlockTime: 1000},
		},
		transactions: map[string]helius.EnhancedTransaction{
			"sig1": buyTx("sig1", 1000, 1.0, 1000),
		},
	}
	coordinator, st := newTestCoordinator(t, provider)
	ctx := context.Background()

	_, err := coordinator.Sync(ctx, walletAddr, 1, false)
	require.NoError(t, err)

	result, err := coordinator.Sync(ctx, walletAddr, 1, false)
	require.NoError(t, err)
	assert.Zero(t, result.NewTransactions)

	last := provider.sigCalls[len(provider.sigCalls)-1]
	assert.Equal(t, "sig1", last.Until)

	wallet, err := st.GetWallet(ctx, walletAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, "sig1", wallet.LastSignature)
}

// TestSyncForcedReplayIsIdempotent tests that a forced re-sync over the same
// provider responses leaves identical trade, position, and lot state
func TestSyncForcedReplayIsIdempotent(t *testing.T) {
	provider := &fakeProvider{
		signatures: []helius.SignatureInfo{
			{Signature: "sig2", Slot: 2000, BlockTime: 2000},
			{Signature: "sig1", Slot: 1000, BlockTime: 1000},
		},
		transactions: map[string]helius.EnhancedTransaction{
			"sig1": buyTx("sig1", 1000, 2.0, 500),
			"sig2": sellTx("sig2", 2000, 1.0, 200),
		},
	}
	coordinator, st := newTestCoordinator(t, provider)
	ctx := context.Background()

	_, err := coordinator.Sync(ctx, walletAddr, 1, false)
	require.NoError(t, err)

	wallet, err := st.GetWallet(ctx, walletAddr, 1)
	require.NoError(t, err)
	tradesBefore, err := st.TradesByWallet(ctx, wallet.ID, 0)
	require.NoError(t, err)
	positionsBefore, err := st.PositionsByWallet(ctx, wallet.ID)
	require.NoError(t, err)
	lotsBefore, err := st.LotsByWallet(ctx, wallet.ID)
	require.NoError(t, err)

	_, err = coordinator.Sync(ctx, walletAddr, 1, true)
	require.NoError(t, err)

	tradesAfter, err := st.TradesByWallet(ctx, wallet.ID, 0)
	require.NoError(t, err)
	require.Len(t, tradesAfter, len(tradesBefore))
	for i := range tradesAfter {
		assert.Equal(t, tradesBefore[i].TradeID, tradesAfter[i].TradeID)
		assert.InDelta(t, tradesBefore[i].SolAmount, tradesAfter[i].SolAmount, 1e-9)
	}

	positionsAfter, err := st.PositionsByWallet(ctx, wallet.ID)
	require.NoError(t, err)
	require.Len(t, positionsAfter, len(positionsBefore))
	assert.InDelta(t, positionsBefore[0].RealizedPnl, positionsAfter[0].RealizedPnl, 1e-9)

	lotsAfter, err := st.LotsByWallet(ctx, wallet.ID)
	require.NoError(t, err)
	require.Len(t, lotsAfter, len(lotsBefore))

	count, err := st.RawTransactionCount(ctx, wallet.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// The ingested count must match the stored raw set, not the fetch volume.
	walletAfter, err := st.GetWallet(ctx, walletAddr, 1)
	require.NoError(t, err)
	assert.EqualValues(t, count, walletAfter.TotalTransactions)
}

// TestSyncAttachesToInflightRun tests that a concurrent request for the same
// wallet shares the in-flight run instead of starting a second one
func TestSyncAttachesToInflightRun(t *testing.T) {
	gate := make(chan struct{})
	provider := &fakeProvider{
		signatures: []helius.SignatureInfo{
			{Signature: "sig1", Slot: 1000, BlockTime: 1000},
		},
		transactions: map[string]helius.EnhancedTransaction{
			"sig1": buyTx("sig1", 1000, 1.0, 1000),
		},
		gate: gate,
	}
	coordinator, _ := newTestCoordinator(t, provider)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errors := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errors[i] = coordinator.Sync(ctx, walletAddr, 1, false)
		}(i)
	}

	// Let both goroutines reach the coordinator before releasing the provider.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, errors[0])
	require.NoError(t, errors[1])
	assert.Equal(t, results[0], results[1])

	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	assert.Equal(t, 1, provider.enhanceCalls, "attached request must not refetch")
}

// TestSyncInvalidAddress tests address validation up front
func TestSyncInvalidAddress(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, &fakeProvider{})

	_, err := coordinator.Sync(context.Background(), "not-a-solana-address", 1, false)
	require.Error(t, err)
	assert.Equal(t, errs.InvalidAddress, errs.KindOf(err))
}

// TestSyncCancelledKeepsStoreUntouched tests that cancellation before commit
// leaves no trades behind
func TestSyncCancelledKeepsStoreUntouched(t *testing.T) {
	provider := &fakeProvider{
		signatures: []helius.SignatureInfo{
			{Signature: "sig1", Slot: 1000, BlockTime: 1000},
		},
		transactions: map[string]helius.EnhancedTransaction{
			"sig1": buyTx("sig1", 1000, 1.0, 1000),
		},
	}
	coordinator, st := newTestCoordinator(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coordinator.Sync(ctx, walletAddr, 1, false)
	require.Error(t, err)

	wallet, err := st.GetWallet(context.Background(), walletAddr, 1)
	if err == nil {
		trades, err := st.TradesByWallet(context.Background(), wallet.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, trades)
		assert.Empty(t, wallet.LastSignature)
	}
}

// TestSyncAllCollectsPerWalletResults tests that one bad address does not
// abort the batch
func TestSyncAllCollectsPerWalletResults(t *testing.T) {
	provider := &fakeProvider{
		signatures: []helius.SignatureInfo{
			{Signature: "sig1", Slot: 1000, BlockTime: 1000},
		},
		transactions: map[string]helius.EnhancedTransaction{
			"sig1": buyTx("sig1", 1000, 1.0, 1000),
		},
	}
	coordinator, _ := newTestCoordinator(t, provider)

	results := coordinator.SyncAll(context.Background(),
		[]string{walletAddr, "bogus"}, 1, false, 2)

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Result)
	assert.Error(t, results[1].Err)
	assert.Equal(t, errs.InvalidAddress, errs.KindOf(results[1].Err))
}
