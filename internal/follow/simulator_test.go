package follow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wnt/copytrail/internal/models"
)

const (
	mintA = "TokenMintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	mintB = "TokenMintBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func makeTrade(sig, side, mint string, ts int64, sol float64) models.Trade {
	return models.Trade{
		TradeID:   models.MakeTradeID(sig, side, mint),
		Signature: sig,
		Timestamp: ts,
		Side:      side,
		TokenMint: mint,
		SolAmount: sol,
	}
}

// TestSimulateQuickDump tests that a sub-30-second exit is unfollowable:
// zero simulated contribution and a quick-dump flag
func TestSimulateQuickDump(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, mintA, 1000, 1.0),
		makeTrade("s2", models.TradeSideSell, mintA, 1020, 3.0),
	}

	score := Simulate(trades, 5, ModelModerate)

	assert.InDelta(t, 2.0, score.ActualPnl, 1e-9)
	assert.Zero(t, score.SimulatedPnl)
	assert.InDelta(t, 1.0, score.QuickDumpRate, 1e-9)
	assert.Equal(t, 0, score.FollowableTokens)
	assert.Equal(t, 1, score.UnfollowableTokens)
	assert.Zero(t, score.FollowabilityRatio)
}

// TestSimulateSlowExit tests a fully followable round trip with slippage and
// drift applied on both legs
func TestSimulateSlowExit(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, mintA, 1000, 1.0),
		makeTrade("s2", models.TradeSideSell, mintA, 2000, 2.0),
	}

	score := Simulate(trades, 5, ModelModerate)

	// Medium bucket both ways: cost = 1*(1+0.05+0.005), proceeds = 2*(1-0.05-0.005).
	expectedSim := 2.0*(1-0.055) - 1.0*(1+0.055)
	assert.InDelta(t, 1.0, score.ActualPnl, 1e-9)
	assert.InDelta(t, expectedSim, score.SimulatedPnl, 1e-9)
	assert.InDelta(t, expectedSim/1.0, score.FollowabilityRatio, 1e-9)
	assert.Equal(t, 1, score.FollowableTokens)
	assert.Zero(t, score.QuickDumpRate)
	assert.InDelta(t, 1000, score.MedianTimeToFirstSell, 1e-9)
}

// TestSimulatePartialFollowability tests the 0.2 tier between 30 and 60
// seconds, which is both discounted and quick-dump flagged
func TestSimulatePartialFollowability(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, mintA, 1000, 1.0),
		makeTrade("s2", models.TradeSideSell, mintA, 1045, 2.0),
	}

	score := Simulate(trades, 5, ModelConservative)

	expectedRaw := 2.0*(1-0.02-0.005) - 1.0*(1+0.02+0.005)
	assert.InDelta(t, expectedRaw*0.2, score.SimulatedPnl, 1e-9)
	assert.Equal(t, 1, score.UnfollowableTokens)
	assert.InDelta(t, 1.0, score.QuickDumpRate, 1e-9)
}

// TestSimulateSizeBuckets tests that slippage scales with trade size
func TestSimulateSizeBuckets(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, mintA, 1000, 5.0),
		makeTrade("s2", models.TradeSideSell, mintA, 2000, 5.0),
	}

	score := Simulate(trades, 0, ModelAggressive)

	// Large bucket, no drift with zero delay: 5*(1-0.15) - 5*(1+0.15).
	assert.InDelta(t, -1.5, score.SimulatedPnl, 1e-9)
	assert.InDelta(t, 5.0, score.AvgEntrySolSize, 1e-9)
}

// TestSimulateNegativeRatio tests a profitable wallet whose follower loses
// money: the ratio goes negative rather than clamping
func TestSimulateNegativeRatio(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, mintA, 1000, 10.0),
		makeTrade("s2", models.TradeSideSell, mintA, 1200, 10.5),
	}

	score := Simulate(trades, 30, ModelAggressive)

	assert.InDelta(t, 0.5, score.ActualPnl, 1e-9)
	assert.Negative(t, score.SimulatedPnl)
	assert.Negative(t, score.FollowabilityRatio)
}

// TestSimulateIgnoresOpenPositions tests that mints without both a buy and a
// sell contribute nothing
func TestSimulateIgnoresOpenPositions(t *testing.T) {
	trades := []models.Trade{
		makeTrade("s1", models.TradeSideBuy, mintA, 1000, 1.0),
		makeTrade("s2", models.TradeSideSell, mintB, 1000, 1.0),
	}

	score := Simulate(trades, 5, ModelModerate)

	assert.Zero(t, score.ActualPnl)
	assert.Zero(t, score.SimulatedPnl)
	assert.Zero(t, score.FollowableTokens)
	assert.Zero(t, score.UnfollowableTokens)
}

// TestSimulateUnknownModelFallsBack tests the moderate fallback
func TestSimulateUnknownModelFallsBack(t *testing.T) {
	score := Simulate(nil, 5, "bogus")
	assert.Equal(t, ModelModerate, score.SlippageModel)
}
