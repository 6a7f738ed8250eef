package pnl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/copytrail/internal/models"
)

const testMint = "TokenMintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func makeTrade(sig, side, mint string, ts int64, tokenAmount, solAmount float64) models.Trade {
	price := 0.0
	if tokenAmount > 0 && solAmount > 0 {
		price = solAmount / tokenAmount
	}
	return models.Trade{
		TradeID:       models.MakeTradeID(sig, side, mint),
		Signature:     sig,
		Timestamp:     ts,
		Side:          side,
		TokenMint:     mint,
		TokenAmount:   tokenAmount,
		SolAmount:     solAmount,
		PricePerToken: price,
	}
}

// TestComputeRoundTrip tests a full buy-then-sell cycle closing the position
func TestComputeRoundTrip(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, testMint, 100, 1000, 1.0),
		makeTrade("s2", models.TradeSideSell, testMint, 200, 1000, 1.5),
	}

	positions, lots := Compute(1, trades)
	require.Len(t, positions, 1)

	position := positions[0]
	assert.InDelta(t, 0.5, position.RealizedPnl, 1e-9)
	assert.Equal(t, 1, position.WinCount)
	assert.Zero(t, position.RemainingTokens)
	assert.Empty(t, lots)
	assert.InDelta(t, 0.001, position.AverageBuyPrice, 1e-12)
	assert.Equal(t, int64(100), position.FirstTradeAt)
	assert.Equal(t, int64(200), position.LastTradeAt)
}

// TestComputePartialFIFOMatch tests that a sell consumes the oldest lot first
// and leaves the newer lot's remainder open
func TestComputePartialFIFOMatch(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, testMint, 100, 500, 1.0),
		makeTrade("s2", models.TradeSideBuy, testMint, 200, 500, 2.0),
		makeTrade("s3", models.TradeSideSell, testMint, 300, 600, 3.0),
	}

	positions, lots := Compute(1, trades)
	require.Len(t, positions, 1)

	// Matched cost = 500 * 0.002 + 100 * 0.004 = 1.4
	assert.InDelta(t, 1.6, positions[0].RealizedPnl, 1e-9)
	assert.InDelta(t, 400, positions[0].RemainingTokens, 1e-9)

	require.Len(t, lots, 1)
	assert.InDelta(t, 400, lots[0].RemainingAmount, 1e-9)
	assert.InDelta(t, 0.004, lots[0].PricePerToken, 1e-12)
	assert.Equal(t, "s2:buy:"+testMint, lots[0].TradeID)
}

// TestComputeUnmatchedSell tests that selling more than was ever bought
// treats the excess as zero-cost instead of failing
func TestComputeUnmatchedSell(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, testMint, 100, 100, 1.0),
		makeTrade("s2", models.TradeSideSell, testMint, 200, 300, 6.0),
	}

	positions, lots := Compute(1, trades)
	require.Len(t, positions, 1)

	// Matched cost covers only the 100 bought tokens.
	assert.InDelta(t, 5.0, positions[0].RealizedPnl, 1e-9)
	assert.Empty(t, lots)
	assert.Zero(t, positions[0].RemainingTokens)
}

// TestComputeZeroCostBuy tests airdrop lots carrying price zero
func TestComputeZeroCostBuy(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, testMint, 100, 5000, 0),
		makeTrade("s2", models.TradeSideSell, testMint, 200, 5000, 2.0),
	}

	positions, lots := Compute(1, trades)
	require.Len(t, positions, 1)
	assert.InDelta(t, 2.0, positions[0].RealizedPnl, 1e-9)
	assert.Zero(t, positions[0].AverageBuyPrice)
	assert.Empty(t, lots)
}

// TestComputeConservation tests the lot conservation identity over a mixed
// stream of several mints
func TestComputeConservation(t *testing.T) {
	otherMint := "TokenMintBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, testMint, 100, 1000, 2.0),
		makeTrade("s2", models.TradeSideBuy, testMint, 150, 400, 1.2),
		makeTrade("s3", models.TradeSideSell, testMint, 250, 700, 2.5),
		makeTrade("s4", models.TradeSideBuy, otherMint, 120, 50, 0.5),
		makeTrade("s5", models.TradeSideSell, otherMint, 130, 20, 0.3),
	}

	positions, lots := Compute(7, trades)
	require.Len(t, positions, 2)

	remainingByMint := make(map[string]float64)
	for _, openLot := range lots {
		assert.Equal(t, uint(7), openLot.WalletID)
		remainingByMint[openLot.TokenMint] += openLot.RemainingAmount
	}

	for _, position := range positions {
		expected := position.TotalBought - position.TotalSold
		if expected < 0 {
			expected = 0
		}
		assert.InDelta(t, expected, remainingByMint[position.TokenMint], 1e-9,
			"conservation broken for %s", position.TokenMint)
	}
}

// TestComputePnlIdentity tests realized PnL equals proceeds minus matched cost
func TestComputePnlIdentity(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, testMint, 100, 300, 0.9),
		makeTrade("s2", models.TradeSideSell, testMint, 200, 100, 0.5),
		makeTrade("s3", models.TradeSideSell, testMint, 300, 200, 0.7),
	}

	positions, _ := Compute(1, trades)
	require.Len(t, positions, 1)

	position := positions[0]
	// All 300 tokens sold at average cost 0.003 each.
	matchedCost := 0.9
	assert.InDelta(t, position.TotalProceeds-matchedCost, position.RealizedPnl, 1e-9)
}

// TestComputeOrdering tests that same-timestamp buys are processed before
// sells so an atomic buy+sell transaction matches against itself
func TestComputeOrdering(t *testing.T) {
	trades := []models.Trade{
		makeTrade("sig", models.TradeSideSell, testMint, 100, 100, 1.0),
		makeTrade("sig", models.TradeSideBuy, testMint, 100, 100, 0.8),
	}

	positions, lots := Compute(1, trades)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.2, positions[0].RealizedPnl, 1e-9)
	assert.Empty(t, lots)
}

// TestComputeEmpty tests that no trades produce no state
func TestComputeEmpty(t *testing.T) {
	positions, lots := Compute(1, nil)
	assert.Empty(t, positions)
	assert.Empty(t, lots)
}
