package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.Exchange.PaperTrading)
	assert.Equal(t, "agent_state.json", cfg.State.Path)

	capital, err := cfg.InitialCapital()
	require.NoError(t, err)
	assert.Equal(t, "10000", capital.String())

	limits, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, 3, limits.MaxOpenTrades)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
exchange:
  id: kraken
  paper_trading: false
trading:
  initial_capital: "25000"
risk:
  max_position_size: "2500"
  max_drawdown_percent: "15"
  daily_loss_limit: "500"
  max_open_trades: 5
  position_risk_percent: "1.5"
state:
  path: /var/lib/liveagent/state.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kraken", cfg.Exchange.ID)
	assert.False(t, cfg.Exchange.PaperTrading)
	assert.Equal(t, "/var/lib/liveagent/state.json", cfg.State.Path)

	limits, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, 5, limits.MaxOpenTrades)
	assert.Equal(t, "2500", limits.MaxPositionSize.String())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "key-from-env")
	t.Setenv("PG_DSN", "postgres://localhost/market")
	t.Setenv("PAPER_TRADING", "false")
	t.Setenv("INITIAL_CAPITAL", "50000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
	assert.Equal(t, "postgres://localhost/market", cfg.Database.DSN)
	assert.False(t, cfg.Exchange.PaperTrading)

	capital, err := cfg.InitialCapital()
	require.NoError(t, err)
	assert.Equal(t, "50000", capital.String())
}

func TestInvalidMoneyStringRejected(t *testing.T) {
	path := writeConfig(t, `
trading:
  initial_capital: "lots"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNonPositiveLimitRejected(t *testing.T) {
	path := writeConfig(t, `
risk:
  max_position_size: "0"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMalformedYAMLRejected(t *testing.T) {
	path := writeConfig(t, "{not yaml:::")
	_, err := Load(path)
	assert.Error(t, err)
}
