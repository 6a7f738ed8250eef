package models

import (
	"time"

	"gorm.io/gorm"
)

// FollowScore is the per-wallet output of the copy-trade simulation: what a
// follower with a fixed delay and size-based slippage would have realized
// by mirroring the wallet's round trips.
type FollowScore struct {
	gorm.Model
	WalletID      uint   `gorm:"uniqueIndex;not null"`
	DelaySeconds  int    `gorm:"default:0"`
	SlippageModel string `gorm:"size:16"`

	ActualPnl          float64 `gorm:"type:decimal(20,9);default:0"`
	SimulatedPnl       float64 `gorm:"type:decimal(20,9);default:0"`
	FollowabilityRatio float64 `gorm:"default:0"`
	QuickDumpRate      float64 `gorm:"default:0"`

	MedianTimeToFirstSell float64 `gorm:"default:0"`
	P90TimeToFirstSell    float64 `gorm:"default:0"`

	FollowableTokens   int     `gorm:"default:0"`
	UnfollowableTokens int     `gorm:"default:0"`
	AvgEntrySolSize    float64 `gorm:"type:decimal(20,9);default:0"`

	ComputedAt time.Time

	// Relationships
	Wallet Wallet `gorm:"foreignKey:WalletID"`
}
