package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "ledger-service")
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "9095", cfg.MetricsPort)
	assert.Equal(t, "ledger_events", cfg.TopicLedgerEvents)
	assert.Equal(t, "ledger_events_broadcast", cfg.RedisPubSubChannel)
	assert.Equal(t, "10", cfg.MinStake.String())
	assert.Equal(t, "0.6", cfg.PayoutPlaceFactor.String())
	assert.Equal(t, 2*time.Minute, cfg.RaceDuration)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "race-ingest-worker")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("MIN_STAKE", "2.50")
	t.Setenv("RACE_DURATION", "90s")
	t.Setenv("RNG_SEED", "42")
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "", cfg.HTTPPort)
	assert.Equal(t, "9096", cfg.MetricsPort)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "2.5", cfg.MinStake.String())
	assert.Equal(t, 90*time.Second, cfg.RaceDuration)
	assert.Equal(t, int64(42), cfg.RNGSeed)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval, "bad value keeps the default")
}

func TestValidate(t *testing.T) {
	t.Setenv("MIN_STAKE", "0")
	t.Setenv("PAYOUT_SHOW_FACTOR", "-1")
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("SWEEP_LOCK_TTL", "0s")

	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_STAKE")
	assert.Contains(t, err.Error(), "PAYOUT_SHOW_FACTOR")
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "SWEEP_LOCK_TTL")
}

func TestValidateRejectsNegativeLockTTL(t *testing.T) {
	t.Setenv("SWEEP_LOCK_TTL", "-5s")

	cfg := Load()
	assert.Equal(t, -5*time.Second, cfg.SweepLockTTL)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEP_LOCK_TTL")
}
