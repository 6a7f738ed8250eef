package models

import (
	"time"

	"gorm.io/gorm"
)

// RawTransaction is an ingested on-chain record keyed by its signature.
// The provider payload is stored verbatim; Parsed is the only field that
// changes after insert.
type RawTransaction struct {
	gorm.Model
	Signature string    `gorm:"size:88;uniqueIndex;not null"`
	WalletID  uint      `gorm:"index;not null"`
	BlockTime time.Time `gorm:"index"`
	Slot      int64     `gorm:"index"`
	Type      string    `gorm:"size:50;index"`
	Source    string    `gorm:"size:50;index"`
	Payload   string    `gorm:"type:text"`
	Parsed    bool      `gorm:"index;default:false"`

	// Relationships
	Wallet Wallet `gorm:"foreignKey:WalletID"`
}

// TokenLaunch caches the earliest stored trade touching a mint, across
// every wallet. Materialized once and refreshed only when the raw
// transaction set changes.
type TokenLaunch struct {
	gorm.Model
	Mint           string    `gorm:"size:44;uniqueIndex;not null"`
	FirstSignature string    `gorm:"size:88"`
	FirstSeenAt    time.Time `gorm:"index"`
	FirstSlot      int64
}

// TokenMetadata is the cached symbol/name/decimals for a mint.
type TokenMetadata struct {
	gorm.Model
	Mint      string `gorm:"size:44;uniqueIndex;not null"`
	Symbol    string `gorm:"size:32"`
	Name      string `gorm:"size:100"`
	Decimals  int
	LogoURI   string `gorm:"size:255"`
	FetchedAt time.Time
}
