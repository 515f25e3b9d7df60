package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReconcileConfig(t *testing.T) {
	require.NoError(t, ValidateReconcileConfig(DefaultReconcileConfig()))
	require.NoError(t, ValidateReconcileConfig(ReconcileConfig{Schedule: "0 */2 * * *"}))

	assert.Error(t, ValidateReconcileConfig(ReconcileConfig{Schedule: ""}))
	assert.Error(t, ValidateReconcileConfig(ReconcileConfig{Schedule: "every now and then"}))
}

func TestReconcileConfigHolderNotifiesListeners(t *testing.T) {
	holder := NewStaticReconcileConfigHolder(DefaultReconcileConfig())
	assert.False(t, holder.Get().Enabled)

	var seen []ReconcileConfig
	holder.OnChange(func(cfg ReconcileConfig) { seen = append(seen, cfg) })

	holder.set(ReconcileConfig{Enabled: true, Schedule: "@every 1h", AutoRepair: true})

	require.Len(t, seen, 1)
	assert.True(t, holder.Get().Enabled)
	assert.Equal(t, "@every 1h", holder.Get().Schedule)
	assert.True(t, seen[0].AutoRepair)
}

func TestLoadLedgerDefaults(t *testing.T) {
	t.Setenv("LEDGER_POST_RETRY_ATTEMPTS", "")
	t.Setenv("LEDGER_LOCK_TTL", "not-a-duration")
	t.Setenv("LEDGER_RECALC_PARALLELISM", "8")

	cfg := Load()
	assert.Equal(t, DefaultLedgerConfig().PostRetryAttempts, cfg.Ledger.PostRetryAttempts)
	assert.Equal(t, DefaultLedgerConfig().LockTTL, cfg.Ledger.LockTTL)
	assert.Equal(t, 8, cfg.Ledger.RecalcParallelism)
}
