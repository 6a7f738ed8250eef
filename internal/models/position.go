package models

import (
	"gorm.io/gorm"
)

// Position is the lifetime aggregate for a (wallet, mint). It is recomputed
// in full by the FIFO engine whenever the wallet's trades change, never
// patched in place.
type Position struct {
	gorm.Model
	WalletID  uint   `gorm:"index:idx_positions_wallet_mint,unique;not null"`
	TokenMint string `gorm:"size:44;index:idx_positions_wallet_mint,unique;not null"`

	TotalBought     float64 `gorm:"type:decimal(30,15);default:0"`
	TotalSold       float64 `gorm:"type:decimal(30,15);default:0"`
	TotalCostBasis  float64 `gorm:"type:decimal(20,9);default:0"`
	TotalProceeds   float64 `gorm:"type:decimal(20,9);default:0"`
	RemainingTokens float64 `gorm:"type:decimal(30,15);default:0"`
	AverageBuyPrice float64 `gorm:"type:decimal(30,18);default:0"`
	RealizedPnl     float64 `gorm:"type:decimal(20,9);default:0"`
	TradeCount      int     `gorm:"default:0"`
	WinCount        int     `gorm:"default:0"`
	FirstTradeAt    int64
	LastTradeAt     int64

	// Relationships
	Wallet Wallet `gorm:"foreignKey:WalletID"`
}

// CostBasisLot is an open FIFO lot created by a buy. Sells shrink Remaining
// oldest-first; fully consumed lots are deleted.
type CostBasisLot struct {
	gorm.Model
	WalletID  uint   `gorm:"index:idx_lots_wallet_mint;not null"`
	TokenMint string `gorm:"size:44;index:idx_lots_wallet_mint;not null"`
	TradeID   string `gorm:"size:140;index;not null"`
	Timestamp int64  `gorm:"index"`

	OriginalAmount  float64 `gorm:"type:decimal(30,15)"`
	RemainingAmount float64 `gorm:"type:decimal(30,15)"`
	PricePerToken   float64 `gorm:"type:decimal(30,18)"`

	// Relationships
	Wallet Wallet `gorm:"foreignKey:WalletID"`
}
