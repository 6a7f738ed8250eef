package profile

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/models"
	"github.com/wnt/copytrail/internal/store"
)

// EarlyExitThreshold is the first-sell latency under which a round-trip
// counts as an early exit.
const EarlyExitThreshold = 600

// PercentileStats carries two percentile points over a sample.
type PercentileStats struct {
	P50        float64 `json:"p50"`
	P90        float64 `json:"p90"`
	SampleSize int     `json:"sample_size"`
}

// Profile is the behavioral summary of one wallet.
type Profile struct {
	TokensTracked       int             `json:"tokens_tracked"`
	TotalTrades         int             `json:"total_trades"`
	TotalSolVolume      float64         `json:"total_sol_volume"`
	DexBreakdown        map[string]int  `json:"dex_breakdown"`
	EntryLatencySeconds PercentileStats `json:"entry_latency_seconds"`
	HoldDurationSeconds PercentileStats `json:"hold_duration_seconds"`
	EarlyExitRate       float64         `json:"early_exit_rate"`
	RoundTripRate       float64         `json:"round_trip_rate"`
}

// NewProfiler creates a profiler reading cached trades and token launches
// from the store.
func NewProfiler(st *store.Store, baseLogger zerolog.Logger) *Profiler {
	return &Profiler{
		store:  st,
		logger: logger.WithComponent(baseLogger, "profiler"),
	}
}

// Profiler derives behavioral aggregates from a wallet's stored trades.
type Profiler struct {
	store  *store.Store
	logger zerolog.Logger
}

// Profile computes the behavioral profile for a wallet from its cached
// trades and the materialized launch table.
func (p *Profiler) Profile(ctx context.Context, walletID uint) (*Profile, error) {
	trades, err := p.store.TradesByWallet(ctx, walletID, 0)
	if err != nil {
		return nil, err
	}
	launches, err := p.store.TokenLaunches(ctx)
	if err != nil {
		return nil, err
	}

	profile := Build(trades, launches)
	return &profile, nil
}

// mintActivity tracks the per-mint timestamps needed by the aggregates.
type mintActivity struct {
	firstTrade int64
	lastTrade  int64
	firstBuy   int64
	firstSell  int64
	hasBuy     bool
	hasSell    bool
}

// Build computes a profile from trades and the mint launch table. Pure
// function of its inputs.
func Build(trades []models.Trade, launches map[string]models.TokenLaunch) Profile {
	profile := Profile{DexBreakdown: make(map[string]int)}

	activity := make(map[string]*mintActivity)
	for _, trade := range trades {
		profile.TotalTrades++
		profile.TotalSolVolume += trade.SolAmount
		profile.DexBreakdown[trade.Dex]++

		entry, ok := activity[trade.TokenMint]
		if !ok {
			entry = &mintActivity{firstTrade: trade.Timestamp, lastTrade: trade.Timestamp}
			activity[trade.TokenMint] = entry
		}
		if trade.Timestamp < entry.firstTrade {
			entry.firstTrade = trade.Timestamp
		}
		if trade.Timestamp > entry.lastTrade {
			entry.lastTrade = trade.Timestamp
		}
		if trade.IsBuy() {
			if !entry.hasBuy || trade.Timestamp < entry.firstBuy {
				entry.firstBuy = trade.Timestamp
			}
			entry.hasBuy = true
		} else {
			if !entry.hasSell || trade.Timestamp < entry.firstSell {
				entry.firstSell = trade.Timestamp
			}
			entry.hasSell = true
		}
	}

	profile.TokensTracked = len(activity)

	var entryLatencies []float64
	var holdDurations []float64
	roundTrips := 0
	sellers := 0
	earlyExits := 0

	for mint, entry := range activity {
		if launch, ok := launches[mint]; ok {
			launchedAt := launch.FirstSeenAt.Unix()
			if launchedAt <= entry.firstTrade {
				entryLatencies = append(entryLatencies, float64(entry.firstTrade-launchedAt))
			}
		}

		if entry.hasBuy && entry.hasSell {
			roundTrips++
			holdDurations = append(holdDurations, float64(entry.lastTrade-entry.firstTrade))
		}
		if entry.hasSell {
			sellers++
			if entry.hasBuy && entry.firstSell-entry.firstBuy < EarlyExitThreshold {
				earlyExits++
			}
		}
	}

	profile.EntryLatencySeconds = percentiles(entryLatencies)
	profile.HoldDurationSeconds = percentiles(holdDurations)
	if sellers > 0 {
		profile.EarlyExitRate = float64(earlyExits) / float64(sellers)
	}
	if profile.TokensTracked > 0 {
		profile.RoundTripRate = float64(roundTrips) / float64(profile.TokensTracked)
	}
	return profile
}

// percentiles computes the p50/p90 points over a sample.
func percentiles(values []float64) PercentileStats {
	if len(values) == 0 {
		return PercentileStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return PercentileStats{
		P50:        Percentile(sorted, 50),
		P90:        Percentile(sorted, 90),
		SampleSize: len(sorted),
	}
}

// Percentile returns the p-th percentile of a sorted sample: the element at
// index min(N-1, ceil(p/100*N)-1).
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if index < 0 {
		index = 0
	}
	if index > len(sorted)-1 {
		index = len(sorted) - 1
	}
	return sorted[index]
}
