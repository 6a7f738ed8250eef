package database

import (
	"fmt"
	"time"

	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the store for the configured driver and runs migrations.
func Connect(cfg config.Config) (*gorm.DB, error) {
	// Configure GORM with optimized settings
	gormConfig := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true, // Prepare statement for better performance
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error

	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// WAL lets readers proceed while the single writer commits.
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
		db.Exec("PRAGMA foreign_keys=ON")

		// SQLite serializes writers itself; keep a single connection open.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}

	// Migrate database schema
	if err := migrateSchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	// Migrate models
	if err := db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.RawTransaction{},
		&models.Trade{},
		&models.Position{},
		&models.CostBasisLot{},
		&models.TokenMetadata{},
		&models.TokenLaunch{},
		&models.FollowScore{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Columns added after the initial schema shipped. AutoMigrate covers
	// them too, but the explicit checks keep the migration idempotent on
	// stores created before these fields existed.
	if err := addColumnIfMissing(db, &models.Wallet{}, "FirstSyncedAt"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, &models.Wallet{}, "QuickFlipRate"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, &models.Wallet{}, "ExitedTokenRate"); err != nil {
		return err
	}

	// Add composite indexes for common query patterns
	db.Exec("CREATE INDEX IF NOT EXISTS idx_raw_transactions_wallet_blocktime ON raw_transactions(wallet_id, block_time)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_trades_wallet_mint ON trades(wallet_id, token_mint)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_lots_wallet_mint_time ON cost_basis_lots(wallet_id, token_mint, timestamp)")

	// One-shot backfills for rows that predate the added columns.
	if err := backfillFirstSyncedAt(db); err != nil {
		return err
	}

	return nil
}

// addColumnIfMissing adds a model field's column only when absent.
func addColumnIfMissing(db *gorm.DB, model interface{}, field string) error {
	if db.Migrator().HasColumn(model, field) {
		return nil
	}
	if err := db.Migrator().AddColumn(model, field); err != nil {
		return fmt.Errorf("failed to add column %s: %w", field, err)
	}
	return nil
}

// backfillFirstSyncedAt populates first_synced_at for wallets that were
// synced before the column existed, using their oldest raw transaction.
func backfillFirstSyncedAt(db *gorm.DB) error {
	var wallets []models.Wallet
	if err := db.Where("first_synced_at IS NULL AND last_signature <> ''").Find(&wallets).Error; err != nil {
		return fmt.Errorf("failed to scan wallets for backfill: %w", err)
	}

	for _, wallet := range wallets {
		var earliest models.RawTransaction
		err := db.Where("wallet_id = ?", wallet.ID).Order("block_time asc").First(&earliest).Error
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to find earliest transaction for wallet %s: %w", wallet.Address, err)
		}
		ts := earliest.BlockTime
		if err := db.Model(&models.Wallet{}).Where("id = ?", wallet.ID).
			Update("first_synced_at", &ts).Error; err != nil {
			return fmt.Errorf("failed to backfill first_synced_at for wallet %s: %w", wallet.Address, err)
		}
	}

	return nil
}
