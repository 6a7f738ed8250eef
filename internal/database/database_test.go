package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/models"
)

// TestConnectSqlite verifies the sqlite path opens and the schema migrates.
func TestConnectSqlite(t *testing.T) {
	cfg := config.Config{
		DatabaseDriver: "sqlite",
		SQLitePath:     filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := Connect(cfg)
	require.NoError(t, err)

	for _, model := range []interface{}{
		&models.User{},
		&models.Wallet{},
		&models.RawTransaction{},
		&models.Trade{},
		&models.Position{},
		&models.CostBasisLot{},
		&models.TokenMetadata{},
		&models.TokenLaunch{},
		&models.FollowScore{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

// TestConnectUnknownDriver verifies an unsupported driver is rejected.
func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect(config.Config{DatabaseDriver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

// TestConnectPostgres exercises the postgres path against a real server.
func TestConnectPostgres(t *testing.T) {
	// Skip in CI environment or when not explicitly enabled
	if os.Getenv("RUN_DB_TESTS") != "true" {
		t.Skip("Skipping database connection test. Set RUN_DB_TESTS=true to enable.")
	}

	cfg := config.Config{
		DatabaseDriver: "postgres",
		DBHost:         os.Getenv("DB_HOST"),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         os.Getenv("DB_NAME"),
		DBPort:         os.Getenv("DB_PORT"),
		DBSSLMode:      "disable",
	}

	db, err := Connect(cfg)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.Wallet{}))
}

// TestBackfillFirstSyncedAt verifies wallets synced before the column existed
// pick up their earliest raw transaction on the next migration run.
func TestBackfillFirstSyncedAt(t *testing.T) {
	cfg := config.Config{
		DatabaseDriver: "sqlite",
		SQLitePath:     filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := Connect(cfg)
	require.NoError(t, err)

	wallet := models.Wallet{Address: "WalletA", UserID: 1, LastSignature: "sig2"}
	require.NoError(t, db.Create(&wallet).Error)
	earliest := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.RawTransaction{
		Signature: "sig1", WalletID: wallet.ID, BlockTime: earliest,
	}).Error)
	require.NoError(t, db.Create(&models.RawTransaction{
		Signature: "sig2", WalletID: wallet.ID, BlockTime: earliest.Add(time.Hour),
	}).Error)

	require.NoError(t, migrateSchema(db))

	var updated models.Wallet
	require.NoError(t, db.First(&updated, wallet.ID).Error)
	require.NotNil(t, updated.FirstSyncedAt)
	assert.Equal(t, earliest.Unix(), updated.FirstSyncedAt.Unix())
}
