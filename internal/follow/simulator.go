package follow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/models"
	"github.com/wnt/copytrail/internal/profile"
	"github.com/wnt/copytrail/internal/store"
)

// Slippage models.
const (
	ModelConservative = "conservative"
	ModelModerate     = "moderate"
	ModelAggressive   = "aggressive"
)

// Trade-size bucket boundaries in SOL.
const (
	smallTradeLimit  = 0.5
	mediumTradeLimit = 2.0
)

// QuickDumpThreshold is the first-sell latency under which a round trip is
// flagged as copy-trade farming.
const QuickDumpThreshold = 60

// slippageTables maps model -> [small, medium, large] slippage fractions.
var slippageTables = map[string][3]float64{
	ModelConservative: {0.01, 0.02, 0.05},
	ModelModerate:     {0.02, 0.05, 0.10},
	ModelAggressive:   {0.03, 0.08, 0.15},
}

// driftPerSecond is the assumed price movement against the follower per
// second of delay, applied to both entry and exit.
const driftPerSecond = 0.001

// NewSimulator creates a follow simulator with the given delay and slippage
// model. Unknown models fall back to moderate.
func NewSimulator(st *store.Store, delaySeconds int, slippageModel string, baseLogger zerolog.Logger) *Simulator {
	if _, ok := slippageTables[slippageModel]; !ok {
		slippageModel = ModelModerate
	}
	return &Simulator{
		store:         st,
		delaySeconds:  delaySeconds,
		slippageModel: slippageModel,
		logger:        logger.WithComponent(baseLogger, "follow_simulator"),
	}
}

// Simulator replays a wallet's round trips as a delayed copy-trader and
// scores how followable the wallet is.
type Simulator struct {
	store         *store.Store
	delaySeconds  int
	slippageModel string
	logger        zerolog.Logger
}

// Score loads the wallet's trades, runs the simulation, and persists the
// resulting score row.
func (s *Simulator) Score(ctx context.Context, walletID uint) (*models.FollowScore, error) {
	trades, err := s.store.TradesByWallet(ctx, walletID, 0)
	if err != nil {
		return nil, err
	}

	score := Simulate(trades, s.delaySeconds, s.slippageModel)
	score.WalletID = walletID
	score.ComputedAt = time.Now()

	if err := s.store.UpsertFollowScore(ctx, &score); err != nil {
		return nil, fmt.Errorf("failed to persist follow score: %w", err)
	}

	s.logger.Debug().
		Uint("wallet_id", walletID).
		Float64("actual_pnl", score.ActualPnl).
		Float64("simulated_pnl", score.SimulatedPnl).
		Float64("ratio", score.FollowabilityRatio).
		Msg("Follow score computed")
	return &score, nil
}

// roundTrip accumulates one mint's buy/sell legs during simulation.
type roundTrip struct {
	buys      []models.Trade
	sells     []models.Trade
	firstBuy  int64
	firstSell int64
}

// Simulate replays the trade stream with the given delay and slippage model.
// Pure function of its inputs; ComputedAt and WalletID are left unset.
func Simulate(trades []models.Trade, delaySeconds int, slippageModel string) models.FollowScore {
	table, ok := slippageTables[slippageModel]
	if !ok {
		table = slippageTables[ModelModerate]
		slippageModel = ModelModerate
	}
	drift := float64(delaySeconds) * driftPerSecond

	byMint := make(map[string]*roundTrip)
	for _, trade := range trades {
		entry, exists := byMint[trade.TokenMint]
		if !exists {
			entry = &roundTrip{}
			byMint[trade.TokenMint] = entry
		}
		if trade.IsBuy() {
			if len(entry.buys) == 0 || trade.Timestamp < entry.firstBuy {
				entry.firstBuy = trade.Timestamp
			}
			entry.buys = append(entry.buys, trade)
		} else {
			if len(entry.sells) == 0 || trade.Timestamp < entry.firstSell {
				entry.firstSell = trade.Timestamp
			}
			entry.sells = append(entry.sells, trade)
		}
	}

	score := models.FollowScore{
		DelaySeconds:  delaySeconds,
		SlippageModel: slippageModel,
	}

	var firstSellLatencies []float64
	var entrySizes []float64
	quickDumps := 0
	roundTrips := 0

	for _, entry := range byMint {
		if len(entry.buys) == 0 || len(entry.sells) == 0 {
			continue
		}
		roundTrips++

		actualCost := 0.0
		simulatedCost := 0.0
		for _, buy := range entry.buys {
			actualCost += buy.SolAmount
			simulatedCost += buy.SolAmount * (1 + bucketSlippage(table, buy.SolAmount) + drift)
			entrySizes = append(entrySizes, buy.SolAmount)
		}

		actualProceeds := 0.0
		simulatedProceeds := 0.0
		for _, sell := range entry.sells {
			actualProceeds += sell.SolAmount
			simulatedProceeds += sell.SolAmount * (1 - bucketSlippage(table, sell.SolAmount) - drift)
		}

		latency := float64(entry.firstSell - entry.firstBuy)
		firstSellLatencies = append(firstSellLatencies, latency)
		followability := followabilityScore(latency)

		score.ActualPnl += actualProceeds - actualCost
		score.SimulatedPnl += (simulatedProceeds - simulatedCost) * followability

		if followability >= 0.5 {
			score.FollowableTokens++
		} else {
			score.UnfollowableTokens++
		}
		if latency < QuickDumpThreshold {
			quickDumps++
		}
	}

	if roundTrips > 0 {
		score.QuickDumpRate = float64(quickDumps) / float64(roundTrips)
	}
	if score.ActualPnl > 0 {
		score.FollowabilityRatio = score.SimulatedPnl / score.ActualPnl
	}
	if len(entrySizes) > 0 {
		total := 0.0
		for _, size := range entrySizes {
			total += size
		}
		score.AvgEntrySolSize = total / float64(len(entrySizes))
	}
	if len(firstSellLatencies) > 0 {
		sort.Float64s(firstSellLatencies)
		score.MedianTimeToFirstSell = profile.Percentile(firstSellLatencies, 50)
		score.P90TimeToFirstSell = profile.Percentile(firstSellLatencies, 90)
	}
	return score
}

// bucketSlippage maps a trade size to its slippage fraction.
func bucketSlippage(table [3]float64, solAmount float64) float64 {
	switch {
	case solAmount < smallTradeLimit:
		return table[0]
	case solAmount < mediumTradeLimit:
		return table[1]
	default:
		return table[2]
	}
}

// followabilityScore weights a round trip by how quickly the wallet exited.
// Sub-30-second exits cannot be followed at all.
func followabilityScore(timeToFirstSell float64) float64 {
	switch {
	case timeToFirstSell < 30:
		return 0.0
	case timeToFirstSell < 60:
		return 0.2
	case timeToFirstSell < 120:
		return 0.5
	case timeToFirstSell < 300:
		return 0.8
	default:
		return 1.0
	}
}
