// Package store provides typed access to the relational store. All
// multi-statement writes go through gorm transactions so a sync commit or a
// FIFO rebuild is visible either in full or not at all.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wnt/copytrail/internal/errs"
	"github.com/wnt/copytrail/internal/metrics"
	"github.com/wnt/copytrail/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the gorm handle with the prepared operations the pipeline uses.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// GetOrCreateWallet returns the wallet row for (address, userID), creating
// it when absent.
func (s *Store) GetOrCreateWallet(ctx context.Context, address string, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	result := s.db.WithContext(ctx).
		Where("address = ? AND user_id = ?", address, userID).
		FirstOrCreate(&wallet, models.Wallet{Address: address, UserID: userID})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get or create wallet: %w", result.Error)
	}
	return &wallet, nil
}

// GetWallet fetches a wallet by address and owner.
func (s *Store) GetWallet(ctx context.Context, address string, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).
		Where("address = ? AND user_id = ?", address, userID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// UpdateWalletMetadata updates the display fields of a wallet.
func (s *Store) UpdateWalletMetadata(ctx context.Context, walletID uint, name, emoji string, alertsOn bool) error {
	err := s.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"name":      name,
			"emoji":     emoji,
			"alerts_on": alertsOn,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update wallet metadata: %w", err)
	}
	return nil
}

// WalletRollups are the cached aggregate fields refreshed after every sync.
type WalletRollups struct {
	TotalRealizedPnl float64
	WinRate          float64
	TotalSolVolume   float64
	TotalTrades      int
	QuickFlipRate    float64
	ExitedTokenRate  float64
}

// UpsertWalletRollups writes the cached rollup fields. Called only after the
// corresponding trade set has been committed.
func (s *Store) UpsertWalletRollups(ctx context.Context, walletID uint, r WalletRollups) error {
	err := s.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"total_realized_pnl": r.TotalRealizedPnl,
			"win_rate":           r.WinRate,
			"total_sol_volume":   r.TotalSolVolume,
			"total_trades":       r.TotalTrades,
			"quick_flip_rate":    r.QuickFlipRate,
			"exited_token_rate":  r.ExitedTokenRate,
		}).Error
	if err != nil {
		metrics.RecordDatabaseOperation("update", "failed")
		return fmt.Errorf("failed to upsert wallet rollups: %w", err)
	}
	metrics.RecordDatabaseOperation("update", "success")
	return nil
}

// DeleteWallet removes a wallet and everything it owns: raw transactions,
// trades, positions, lots, and its follow score.
func (s *Store) DeleteWallet(ctx context.Context, walletID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sweep := range []interface{}{
			&models.RawTransaction{},
			&models.Trade{},
			&models.Position{},
			&models.CostBasisLot{},
			&models.FollowScore{},
		} {
			if err := tx.Unscoped().Where("wallet_id = ?", walletID).Delete(sweep).Error; err != nil {
				return fmt.Errorf("failed to sweep wallet-owned rows: %w", err)
			}
		}
		if err := tx.Unscoped().Delete(&models.Wallet{}, walletID).Error; err != nil {
			return fmt.Errorf("failed to delete wallet: %w", err)
		}
		return nil
	})
}

// LatestSignature returns the stored sync cursor for a wallet.
func (s *Store) LatestSignature(ctx context.Context, walletID uint) (string, error) {
	var wallet models.Wallet
	if err := s.db.WithContext(ctx).Select("last_signature").First(&wallet, walletID).Error; err != nil {
		return "", fmt.Errorf("failed to read sync cursor: %w", err)
	}
	return wallet.LastSignature, nil
}

// TradesByWallet returns a wallet's trades sorted by timestamp ascending,
// optionally restricted to timestamp >= since (unix seconds, 0 = all).
func (s *Store) TradesByWallet(ctx context.Context, walletID uint, since int64) ([]models.Trade, error) {
	var trades []models.Trade
	q := s.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if since > 0 {
		q = q.Where("timestamp >= ?", since)
	}
	if err := q.Order("timestamp asc, signature asc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// PositionsByWallet returns the wallet's lifetime positions.
func (s *Store) PositionsByWallet(ctx context.Context, walletID uint) ([]models.Position, error) {
	var positions []models.Position
	if err := s.db.WithContext(ctx).Where("wallet_id = ?", walletID).Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

// LotsByWallet returns the wallet's open FIFO lots, oldest first.
func (s *Store) LotsByWallet(ctx context.Context, walletID uint) ([]models.CostBasisLot, error) {
	var lots []models.CostBasisLot
	if err := s.db.WithContext(ctx).Where("wallet_id = ?", walletID).
		Order("timestamp asc").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return lots, nil
}

// SyncBatch is one committed unit of ingestion: the advanced cursor plus the
// raw transactions and trades of a signature batch.
type SyncBatch struct {
	WalletID        uint
	LastSignature   string
	EarliestTime    time.Time
	NewTransactions []models.RawTransaction
	Trades          []models.Trade
}

// CommitSyncBatch applies one ingestion batch atomically: wallet cursor,
// idempotent raw-transaction inserts, and replace-on-conflict trade upserts.
func (s *Store) CommitSyncBatch(ctx context.Context, batch SyncBatch) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conflicting signatures are skipped, so the ingested count advances
		// by the rows actually written, not the batch size. A forced replay
		// re-fetches everything and must leave the count untouched.
		var inserted int64
		for i := range batch.NewTransactions {
			batch.NewTransactions[i].WalletID = batch.WalletID
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "signature"}},
				DoNothing: true,
			}).Create(&batch.NewTransactions[i])
			if result.Error != nil {
				return classifyStoreError(result.Error, "failed to insert raw transaction")
			}
			inserted += result.RowsAffected
		}

		updates := map[string]interface{}{
			"last_synced_at":     time.Now().UTC(),
			"total_transactions": gorm.Expr("total_transactions + ?", inserted),
		}
		if batch.LastSignature != "" {
			updates["last_signature"] = batch.LastSignature
		}
		if err := tx.Model(&models.Wallet{}).Where("id = ?", batch.WalletID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to advance sync cursor: %w", err)
		}

		// first_synced_at is set once, from the earliest block time seen.
		if !batch.EarliestTime.IsZero() {
			if err := tx.Model(&models.Wallet{}).
				Where("id = ? AND first_synced_at IS NULL", batch.WalletID).
				Update("first_synced_at", batch.EarliestTime).Error; err != nil {
				return fmt.Errorf("failed to set first_synced_at: %w", err)
			}
		}

		for i := range batch.Trades {
			batch.Trades[i].WalletID = batch.WalletID
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "trade_id"}},
				UpdateAll: true,
			}).Create(&batch.Trades[i]).Error
			if err != nil {
				return classifyStoreError(err, "failed to upsert trade")
			}
		}

		return nil
	})
	if err != nil {
		metrics.RecordDatabaseOperation("insert", "failed")
		return err
	}
	metrics.RecordDatabaseOperation("insert", "success")
	return nil
}

// MarkParsed flips the parsed flag on a raw transaction.
func (s *Store) MarkParsed(ctx context.Context, signature string) error {
	err := s.db.WithContext(ctx).Model(&models.RawTransaction{}).
		Where("signature = ?", signature).Update("parsed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark transaction parsed: %w", err)
	}
	return nil
}

// RawTransactionCount returns how many raw records a wallet has stored.
func (s *Store) RawTransactionCount(ctx context.Context, walletID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RawTransaction{}).
		Where("wallet_id = ?", walletID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count raw transactions: %w", err)
	}
	return count, nil
}

// ReplacePositions swaps a wallet's entire position and lot state in one
// transaction. The FIFO engine recomputes from scratch; nothing is patched.
func (s *Store) ReplacePositions(ctx context.Context, walletID uint, positions []models.Position, lots []models.CostBasisLot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("wallet_id = ?", walletID).Delete(&models.Position{}).Error; err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}
		if err := tx.Unscoped().Where("wallet_id = ?", walletID).Delete(&models.CostBasisLot{}).Error; err != nil {
			return fmt.Errorf("failed to clear lots: %w", err)
		}

		for i := range positions {
			positions[i].WalletID = walletID
			if err := tx.Create(&positions[i]).Error; err != nil {
				return classifyStoreError(err, "failed to insert position")
			}
		}
		for i := range lots {
			lots[i].WalletID = walletID
			if err := tx.Create(&lots[i]).Error; err != nil {
				return classifyStoreError(err, "failed to insert lot")
			}
		}
		return nil
	})
}

// UpsertFollowScore writes a wallet's simulation output, replacing any
// previous score row.
func (s *Store) UpsertFollowScore(ctx context.Context, score *models.FollowScore) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_id"}},
		UpdateAll: true,
	}).Create(score).Error
	if err != nil {
		return classifyStoreError(err, "failed to upsert follow score")
	}
	return nil
}

// GetFollowScore returns a wallet's stored follow score.
func (s *Store) GetFollowScore(ctx context.Context, walletID uint) (*models.FollowScore, error) {
	var score models.FollowScore
	if err := s.db.WithContext(ctx).Where("wallet_id = ?", walletID).First(&score).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

// GetTokenMetadata returns cached metadata for a mint, or gorm.ErrRecordNotFound.
func (s *Store) GetTokenMetadata(ctx context.Context, mint string) (*models.TokenMetadata, error) {
	var meta models.TokenMetadata
	if err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&meta).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

// UpsertTokenMetadata caches metadata for a mint.
func (s *Store) UpsertTokenMetadata(ctx context.Context, meta *models.TokenMetadata) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mint"}},
		UpdateAll: true,
	}).Create(meta).Error
	if err != nil {
		return classifyStoreError(err, "failed to upsert token metadata")
	}
	return nil
}

// DeleteTokenMetadata drops the cache row for a mint.
func (s *Store) DeleteTokenMetadata(ctx context.Context, mint string) error {
	if err := s.db.WithContext(ctx).Unscoped().Where("mint = ?", mint).Delete(&models.TokenMetadata{}).Error; err != nil {
		return fmt.Errorf("failed to delete token metadata: %w", err)
	}
	return nil
}

// TokenLaunches returns the cached launch table as mint -> launch.
func (s *Store) TokenLaunches(ctx context.Context) (map[string]models.TokenLaunch, error) {
	var launches []models.TokenLaunch
	if err := s.db.WithContext(ctx).Find(&launches).Error; err != nil {
		return nil, fmt.Errorf("failed to list token launches: %w", err)
	}
	table := make(map[string]models.TokenLaunch, len(launches))
	for _, l := range launches {
		table[l.Mint] = l
	}
	return table, nil
}

// RefreshTokenLaunches rebuilds the launch table from the earliest stored
// trade per mint, across every wallet. Raw payloads are opaque here; a mint
// enters the table when the first parsed trade touches it.
func (s *Store) RefreshTokenLaunches(ctx context.Context) error {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Select("token_mint", "signature", "timestamp").
		Order("timestamp asc, signature asc").
		Find(&trades).Error
	if err != nil {
		return fmt.Errorf("failed to scan earliest observations: %w", err)
	}

	earliest := make(map[string]models.Trade)
	for _, t := range trades {
		if _, seen := earliest[t.TokenMint]; !seen {
			earliest[t.TokenMint] = t
		}
	}

	existing, err := s.TokenLaunches(ctx)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for mint, first := range earliest {
			seenAt := time.Unix(first.Timestamp, 0).UTC()
			if prev, ok := existing[mint]; ok && !seenAt.Before(prev.FirstSeenAt) {
				continue
			}

			// The raw record carries the slot for the observation.
			var slot int64
			var raw models.RawTransaction
			if err := tx.Select("slot").Where("signature = ?", first.Signature).First(&raw).Error; err == nil {
				slot = raw.Slot
			}

			launch := models.TokenLaunch{
				Mint:           mint,
				FirstSignature: first.Signature,
				FirstSeenAt:    seenAt,
				FirstSlot:      slot,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "mint"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"first_signature": launch.FirstSignature,
					"first_seen_at":   launch.FirstSeenAt,
				}),
			}).Create(&launch).Error
			if err != nil {
				return classifyStoreError(err, "failed to upsert token launch")
			}
		}
		return nil
	})
}

// classifyStoreError maps driver errors onto the store error kinds: unique
// and check violations are conflicts, corruption aborts the run.
func classifyStoreError(err error, msg string) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "malformed") || strings.Contains(text, "corrupt"):
		return errs.Wrap(errs.StoreCorrupt, "", msg, err)
	case strings.Contains(text, "unique") || strings.Contains(text, "constraint") || strings.Contains(text, "duplicate key"):
		return errs.Wrap(errs.StoreConflict, "", msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
