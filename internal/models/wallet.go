package models

import (
	"time"

	"gorm.io/gorm"
)

// User owns a catalog of tracked wallets.
type User struct {
	gorm.Model
	ExternalID string `gorm:"size:64;uniqueIndex;not null"`
	Name       string `gorm:"size:100"`

	// Relationships
	Wallets []Wallet `gorm:"foreignKey:UserID"`
}

// Wallet is a tracked Solana wallet together with its sync cursor and the
// cached rollups refreshed after every sync.
type Wallet struct {
	gorm.Model
	Address  string `gorm:"size:44;index:idx_wallets_address_user,unique;not null"`
	UserID   uint   `gorm:"index:idx_wallets_address_user,unique;not null"`
	Name     string `gorm:"size:100"`
	Emoji    string `gorm:"size:16"`
	AlertsOn bool   `gorm:"default:false"`

	// Sync cursor. LastSignature is the newest signature already ingested;
	// an incremental run stops when it reaches this marker.
	LastSyncedAt      *time.Time `gorm:"index"`
	FirstSyncedAt     *time.Time
	LastSignature     string `gorm:"size:88"`
	TotalTransactions int    `gorm:"default:0"`

	// Cached rollups. Written only by the sync coordinator, after the
	// corresponding trade set is fully persisted.
	TotalRealizedPnl float64 `gorm:"default:0"`
	WinRate          float64 `gorm:"default:0"`
	TotalSolVolume   float64 `gorm:"default:0"`
	TotalTrades      int     `gorm:"default:0"`
	QuickFlipRate    float64 `gorm:"default:0"`
	ExitedTokenRate  float64 `gorm:"default:0"`

	// Relationships
	Transactions []RawTransaction `gorm:"foreignKey:WalletID"`
	Trades       []Trade          `gorm:"foreignKey:WalletID"`
	Positions    []Position       `gorm:"foreignKey:WalletID"`
	Lots         []CostBasisLot   `gorm:"foreignKey:WalletID"`
}
