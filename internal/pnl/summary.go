package pnl

import (
	"context"
	"fmt"
	"time"

	"github.com/wnt/copytrail/internal/models"
)

// Timeframes accepted by Summary.
const (
	Timeframe24h = "24h"
	Timeframe7d  = "7d"
	Timeframe30d = "30d"
	Timeframe90d = "90d"
	TimeframeAll = "all"
)

var timeframeDurations = map[string]time.Duration{
	Timeframe24h: 24 * time.Hour,
	Timeframe7d:  7 * 24 * time.Hour,
	Timeframe30d: 30 * 24 * time.Hour,
	Timeframe90d: 90 * 24 * time.Hour,
}

// TradeOutcome is the realized result of a single sell within a period.
type TradeOutcome struct {
	TradeID   string  `json:"trade_id"`
	TokenMint string  `json:"token_mint"`
	Timestamp int64   `json:"timestamp"`
	Pnl       float64 `json:"pnl"`
}

// Summary is a timeframe-scoped report over a wallet's trades. Period PnL is
// measured against the lifetime average buy price of each position, so a
// window narrower than a position's life still reports sensible numbers.
type Summary struct {
	Timeframe      string        `json:"timeframe"`
	PeriodStart    int64         `json:"period_start"`
	RealizedPnl    float64       `json:"realized_pnl"`
	TotalSolVolume float64       `json:"total_sol_volume"`
	TradeCount     int           `json:"trade_count"`
	AvgTradeSize   float64       `json:"avg_trade_size"`
	UniqueTokens   int           `json:"unique_tokens"`
	WinCount       int           `json:"win_count"`
	LossCount      int           `json:"loss_count"`
	AvgHoldSeconds float64       `json:"avg_hold_seconds"`
	BestTrade      *TradeOutcome `json:"best_trade,omitempty"`
	WorstTrade     *TradeOutcome `json:"worst_trade,omitempty"`
}

// Summary recomputes the wallet's lifetime FIFO state and reports over the
// requested timeframe. The rebuild runs first so the reference cost basis is
// always the lifetime one.
func (e *Engine) Summary(ctx context.Context, walletID uint, timeframe string) (*Summary, error) {
	if _, ok := timeframeDurations[timeframe]; !ok && timeframe != TimeframeAll {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	trades, err := e.store.TradesByWallet(ctx, walletID, 0)
	if err != nil {
		return nil, err
	}
	positions, err := e.Recompute(ctx, walletID, trades)
	if err != nil {
		return nil, err
	}

	summary := Summarize(trades, positions, timeframe, time.Now())
	return &summary, nil
}

// Summarize builds the period report from a full trade set and the lifetime
// positions. Pure function; now anchors the window.
func Summarize(trades []models.Trade, positions []models.Position, timeframe string, now time.Time) Summary {
	periodStart := int64(0)
	if duration, ok := timeframeDurations[timeframe]; ok {
		periodStart = now.Add(-duration).Unix()
	}

	avgBuyPrice := make(map[string]float64, len(positions))
	for _, position := range positions {
		avgBuyPrice[position.TokenMint] = position.AverageBuyPrice
	}

	summary := Summary{Timeframe: timeframe, PeriodStart: periodStart}

	type mintWindow struct {
		first int64
		last  int64
		sells int
	}
	windows := make(map[string]*mintWindow)

	for _, trade := range trades {
		if trade.Timestamp < periodStart {
			continue
		}

		summary.TradeCount++
		summary.TotalSolVolume += trade.SolAmount

		window, ok := windows[trade.TokenMint]
		if !ok {
			window = &mintWindow{first: trade.Timestamp, last: trade.Timestamp}
			windows[trade.TokenMint] = window
		}
		if trade.Timestamp < window.first {
			window.first = trade.Timestamp
		}
		if trade.Timestamp > window.last {
			window.last = trade.Timestamp
		}

		if !trade.IsSell() {
			continue
		}
		window.sells++

		pnl := trade.SolAmount - trade.TokenAmount*avgBuyPrice[trade.TokenMint]
		summary.RealizedPnl += pnl
		if pnl > 0 {
			summary.WinCount++
		} else {
			summary.LossCount++
		}

		outcome := &TradeOutcome{
			TradeID:   trade.TradeID,
			TokenMint: trade.TokenMint,
			Timestamp: trade.Timestamp,
			Pnl:       pnl,
		}
		if summary.BestTrade == nil || pnl > summary.BestTrade.Pnl {
			summary.BestTrade = outcome
		}
		if summary.WorstTrade == nil || pnl < summary.WorstTrade.Pnl {
			summary.WorstTrade = outcome
		}
	}

	summary.UniqueTokens = len(windows)
	if summary.TradeCount > 0 {
		summary.AvgTradeSize = summary.TotalSolVolume / float64(summary.TradeCount)
	}

	// Average hold is measured only over mints that had a sell in the
	// period, as the span between their first and last in-period trades.
	holdTotal := 0.0
	holdCount := 0
	for _, window := range windows {
		if window.sells == 0 {
			continue
		}
		holdTotal += float64(window.last - window.first)
		holdCount++
	}
	if holdCount > 0 {
		summary.AvgHoldSeconds = holdTotal / float64(holdCount)
	}

	return summary
}
