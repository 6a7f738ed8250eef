package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Trade sides.
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Trade is an atomic buy or sell of a single mint, normalized from a swap
// transaction. TradeID is deterministic: signature:{buy|sell}:mint, so
// re-ingesting the same transaction replaces rather than duplicates.
type Trade struct {
	gorm.Model
	TradeID   string `gorm:"size:140;uniqueIndex;not null"`
	WalletID  uint   `gorm:"index:idx_trades_wallet_time;not null"`
	Signature string `gorm:"size:88;index"`
	Timestamp int64  `gorm:"index:idx_trades_wallet_time"`
	Side      string `gorm:"size:4;index;not null"`
	TokenMint string `gorm:"size:44;index;not null"`

	// TokenAmount and SolAmount are real (decimal-adjusted) quantities.
	// PricePerToken * TokenAmount = SolAmount within rounding; zero-cost
	// acquisitions carry SolAmount = 0 and PricePerToken = 0.
	TokenAmount   float64 `gorm:"type:decimal(30,15)"`
	SolAmount     float64 `gorm:"type:decimal(20,9)"`
	PricePerToken float64 `gorm:"type:decimal(30,18)"`
	Dex           string  `gorm:"size:50;index"`

	// Relationships
	Wallet Wallet `gorm:"foreignKey:WalletID"`
}

// MakeTradeID builds the deterministic id for a (signature, side, mint).
func MakeTradeID(signature, side, mint string) string {
	return fmt.Sprintf("%s:%s:%s", signature, side, mint)
}

// IsBuy reports whether the trade is a buy.
func (t *Trade) IsBuy() bool { return t.Side == TradeSideBuy }

// IsSell reports whether the trade is a sell.
func (t *Trade) IsSell() bool { return t.Side == TradeSideSell }
