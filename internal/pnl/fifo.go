package pnl

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/metrics"
	"github.com/wnt/copytrail/internal/models"
	"github.com/wnt/copytrail/internal/store"
)

// NewEngine creates a FIFO cost-basis engine backed by the given store.
func NewEngine(st *store.Store, baseLogger zerolog.Logger) *Engine {
	return &Engine{
		store:  st,
		logger: logger.WithComponent(baseLogger, "pnl_engine"),
	}
}

// Engine rebuilds positions and open lots for a wallet under FIFO matching.
type Engine struct {
	store  *store.Store
	logger zerolog.Logger
}

// lot is an in-flight FIFO lot during computation. Amounts are decimal so
// repeated partial matches cannot erode the conservation identity.
type lot struct {
	tradeID   string
	timestamp int64
	original  decimal.Decimal
	remaining decimal.Decimal
	price     decimal.Decimal
}

// Recompute rebuilds all positions and lots for a wallet from its complete
// trade set and persists the result atomically, replacing whatever was there.
func (e *Engine) Recompute(ctx context.Context, walletID uint, trades []models.Trade) ([]models.Position, error) {
	start := time.Now()

	positions, lots := Compute(walletID, trades)
	if err := e.store.ReplacePositions(ctx, walletID, positions, lots); err != nil {
		return nil, err
	}

	metrics.RecordFIFORebuild(time.Since(start).Seconds())
	e.logger.Debug().
		Uint("wallet_id", walletID).
		Int("trades", len(trades)).
		Int("positions", len(positions)).
		Int("open_lots", len(lots)).
		Msg("FIFO state rebuilt")
	return positions, nil
}

// Compute derives positions and surviving lots from a trade set without
// touching storage. Deterministic for a given input.
func Compute(walletID uint, trades []models.Trade) ([]models.Position, []models.CostBasisLot) {
	byMint := make(map[string][]models.Trade)
	for _, trade := range trades {
		byMint[trade.TokenMint] = append(byMint[trade.TokenMint], trade)
	}

	mints := make([]string, 0, len(byMint))
	for mint := range byMint {
		mints = append(mints, mint)
	}
	sort.Strings(mints)

	var positions []models.Position
	var openLots []models.CostBasisLot
	for _, mint := range mints {
		position, lots := computeMint(walletID, mint, byMint[mint])
		positions = append(positions, position)
		openLots = append(openLots, lots...)
	}
	return positions, openLots
}

// computeMint runs the FIFO match for one (wallet, mint) group.
func computeMint(walletID uint, mint string, trades []models.Trade) (models.Position, []models.CostBasisLot) {
	sortTrades(trades)

	var (
		queue       []*lot
		totalBought = decimal.Zero
		totalSold   = decimal.Zero
		costBasis   = decimal.Zero
		proceeds    = decimal.Zero
		realizedPnl = decimal.Zero
		winCount    int
	)

	for i := range trades {
		trade := &trades[i]
		amount := decimal.NewFromFloat(trade.TokenAmount)
		solAmount := decimal.NewFromFloat(trade.SolAmount)

		if trade.IsBuy() {
			price := decimal.Zero
			if amount.IsPositive() {
				price = solAmount.Div(amount)
			}
			queue = append(queue, &lot{
				tradeID:   trade.TradeID,
				timestamp: trade.Timestamp,
				original:  amount,
				remaining: amount,
				price:     price,
			})
			totalBought = totalBought.Add(amount)
			costBasis = costBasis.Add(solAmount)
			continue
		}

		// Sell: consume lots oldest-first. Anything left over after the
		// queue runs dry is matched at zero cost so an unbalanced stream
		// still produces a result.
		left := amount
		matchedCost := decimal.Zero
		for _, open := range queue {
			if !left.IsPositive() {
				break
			}
			if !open.remaining.IsPositive() {
				continue
			}
			take := decimal.Min(open.remaining, left)
			open.remaining = open.remaining.Sub(take)
			left = left.Sub(take)
			matchedCost = matchedCost.Add(take.Mul(open.price))
		}

		sellPnl := solAmount.Sub(matchedCost)
		realizedPnl = realizedPnl.Add(sellPnl)
		if sellPnl.IsPositive() {
			winCount++
		}
		totalSold = totalSold.Add(amount)
		proceeds = proceeds.Add(solAmount)
	}

	remaining := decimal.Zero
	var survivors []models.CostBasisLot
	for _, open := range queue {
		if !open.remaining.IsPositive() {
			continue
		}
		remaining = remaining.Add(open.remaining)
		survivors = append(survivors, models.CostBasisLot{
			WalletID:        walletID,
			TokenMint:       mint,
			TradeID:         open.tradeID,
			Timestamp:       open.timestamp,
			OriginalAmount:  open.original.InexactFloat64(),
			RemainingAmount: open.remaining.InexactFloat64(),
			PricePerToken:   open.price.InexactFloat64(),
		})
	}

	avgBuyPrice := decimal.Zero
	if totalBought.IsPositive() {
		avgBuyPrice = costBasis.Div(totalBought)
	}

	position := models.Position{
		WalletID:        walletID,
		TokenMint:       mint,
		TotalBought:     totalBought.InexactFloat64(),
		TotalSold:       totalSold.InexactFloat64(),
		TotalCostBasis:  costBasis.InexactFloat64(),
		TotalProceeds:   proceeds.InexactFloat64(),
		RemainingTokens: remaining.InexactFloat64(),
		AverageBuyPrice: avgBuyPrice.InexactFloat64(),
		RealizedPnl:     realizedPnl.InexactFloat64(),
		TradeCount:      len(trades),
		WinCount:        winCount,
		FirstTradeAt:    trades[0].Timestamp,
		LastTradeAt:     trades[len(trades)-1].Timestamp,
	}
	return position, survivors
}

// sortTrades orders a mint's trades for FIFO processing: ascending by
// timestamp, ties broken by signature, buys before sells within the same
// signature.
func sortTrades(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Timestamp != trades[j].Timestamp {
			return trades[i].Timestamp < trades[j].Timestamp
		}
		if trades[i].Signature != trades[j].Signature {
			return trades[i].Signature < trades[j].Signature
		}
		return trades[i].IsBuy() && trades[j].IsSell()
	})
}
