package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envKeys are cleared before every case. viper ignores empty variables.
var envKeys = []string{
	"BUNDLESYNC_APP_NAME",
	"BUNDLESYNC_APP_ENV",
	"BUNDLESYNC_APP_PORT",
	"BUNDLESYNC_DATABASE_HOST",
	"BUNDLESYNC_DATABASE_PORT",
	"BUNDLESYNC_DATABASE_PASSWORD",
	"BUNDLESYNC_DATABASE_SSLMODE",
	"BUNDLESYNC_DATABASE_MAX_OPEN_CONNS",
	"BUNDLESYNC_DATABASE_MAX_IDLE_CONNS",
	"BUNDLESYNC_REDIS_ENABLED",
	"BUNDLESYNC_HTTP_ADMIN_TOKEN",
	"BUNDLESYNC_MARKETPLACE_BASE_URL",
	"BUNDLESYNC_MARKETPLACE_ACCOUNT_ID",
	"BUNDLESYNC_MARKETPLACE_SELLER_ID",
	"BUNDLESYNC_MARKETPLACE_PUSH_INVENTORY",
	"BUNDLESYNC_SYNC_WORKERS",
	"BUNDLESYNC_SYNC_BACKOFF_BASE",
	"BUNDLESYNC_SYNC_BACKOFF_MAX",
	"BUNDLESYNC_BUNDLING_COMMISSION_RATE",
	"BUNDLESYNC_ENRICHMENT_PROVIDER",
	"BUNDLESYNC_ENRICHMENT_API_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "bundlesync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "bundlesync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 4, cfg.Sync.Workers)
		assert.Equal(t, 30*time.Second, cfg.Sync.InitialPollDelay)
		assert.Equal(t, []int{2, 3, 4, 6}, cfg.Bundling.IndividualSizes)
		assert.Equal(t, "none", cfg.Enrichment.Provider)
		assert.Equal(t, 5*time.Minute, cfg.Event.ClaimTimeout)
		assert.Equal(t, 24*time.Hour, cfg.Event.IdempotencyTTL)
		assert.Empty(t, cfg.Marketplace.AllAccounts())
	})

	t.Run("loads values from environment variables with BUNDLESYNC prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_APP_PORT", "9000")
		t.Setenv("BUNDLESYNC_DATABASE_HOST", "db.local")
		t.Setenv("BUNDLESYNC_DATABASE_PORT", "5433")
		t.Setenv("BUNDLESYNC_SYNC_WORKERS", "8")
		t.Setenv("BUNDLESYNC_MARKETPLACE_BASE_URL", "https://mp.example.com")
		t.Setenv("BUNDLESYNC_MARKETPLACE_ACCOUNT_ID", "main")
		t.Setenv("BUNDLESYNC_MARKETPLACE_SELLER_ID", "S-1")
		t.Setenv("BUNDLESYNC_MARKETPLACE_PUSH_INVENTORY", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 8, cfg.Sync.Workers)
		accounts := cfg.Marketplace.AllAccounts()
		require.Len(t, accounts, 1)
		assert.Equal(t, "main", accounts[0].AccountID)
		assert.Equal(t, "S-1", accounts[0].SellerID)
		assert.True(t, accounts[0].PushInventory)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("BUNDLESYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects a backoff cap below its base", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_SYNC_BACKOFF_BASE", "10m")
		t.Setenv("BUNDLESYNC_SYNC_BACKOFF_MAX", "1m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.backoff_max")
	})

	t.Run("rejects a commission of 100%", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_BUNDLING_COMMISSION_RATE", "1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commission_rate")
	})

	t.Run("requires a base url once an account exists", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_MARKETPLACE_ACCOUNT_ID", "main")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "marketplace.base_url")
	})

	t.Run("gemini needs an api key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_ENRICHMENT_PROVIDER", "gemini")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enrichment.api_key")

		t.Setenv("BUNDLESYNC_ENRICHMENT_PROVIDER", "openai")
		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enrichment.provider")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUNDLESYNC_APP_ENV", "production")
		t.Setenv("BUNDLESYNC_DATABASE_PASSWORD", "secure-password")
		t.Setenv("BUNDLESYNC_DATABASE_SSLMODE", "require")
		t.Setenv("BUNDLESYNC_REDIS_ENABLED", "true")
		t.Setenv("BUNDLESYNC_HTTP_ADMIN_TOKEN", "0123456789abcdef")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BUNDLESYNC_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BUNDLESYNC_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires shared flight locks in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BUNDLESYNC_REDIS_ENABLED", "false")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.enabled")
	})

	t.Run("requires an admin token in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BUNDLESYNC_HTTP_ADMIN_TOKEN", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http.admin_token")
	})
}

func TestBundlingConfig_Pricing(t *testing.T) {
	commission, fixed, minPrice, err := BundlingConfig{CommissionRate: "0.1", FixedCost: "12", MinPrice: "40"}.Pricing()
	require.NoError(t, err)
	assert.Equal(t, "0.1", commission.String())
	assert.Equal(t, "12", fixed.String())
	assert.Equal(t, "40", minPrice.String())

	_, _, _, err = BundlingConfig{CommissionRate: "ten", FixedCost: "12", MinPrice: "40"}.Pricing()
	assert.Error(t, err)
}

func TestBundlingConfig_Generator(t *testing.T) {
	pricing, shape, err := BundlingConfig{
		CommissionRate:        "0.15",
		FixedCost:             "10",
		MinPrice:              "35",
		IndividualSizes:       []int{2, 3},
		MixedSizes:            []int{2},
		MaxMultiplierPerBrand: 6,
		MaxTotalUnits:         8,
	}.Generator()
	require.NoError(t, err)
	assert.Equal(t, "0.15", pricing.CommissionRate.String())
	assert.Equal(t, "35", pricing.MinPrice.String())
	assert.Equal(t, []int{2, 3}, shape.IndividualSizes)
	assert.Equal(t, 8, shape.MaxTotalUnits)

	_, _, err = BundlingConfig{CommissionRate: "0.1", FixedCost: "x", MinPrice: "40"}.Generator()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
