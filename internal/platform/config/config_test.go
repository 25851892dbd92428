package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 4, cfg.Gatekeeper.ProtocolVersion)
	require.Equal(t, ModePermissive, cfg.Gatekeeper.Mode)
	require.Equal(t, time.Minute, cfg.Gatekeeper.RateWindow)
	require.Equal(t, 8, cfg.Gatekeeper.MaxRequestsPerWindow)
	require.Equal(t, "bitcoin", cfg.Gatekeeper.ActiveNetwork)
	require.Equal(t, "funds_flow", cfg.Gatekeeper.ActiveModelType)
	require.Equal(t, 0.1, cfg.Coordinator.Alpha)
	require.Equal(t, uint64(65535), cfg.Coordinator.WeightBudget)
	require.Equal(t, 12*time.Second, cfg.Coordinator.DispatchTimeout)
	require.Equal(t, 5*time.Minute, cfg.Coordinator.PublishInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PALISADE_MODE", "restricted")
	t.Setenv("PALISADE_PROTOCOL_VERSION", "7")
	t.Setenv("PALISADE_STAKE_THRESHOLD", "25.5")
	t.Setenv("PALISADE_WHITELIST", "node-a, node-b")
	t.Setenv("PALISADE_BLACKLIST", "node-x")
	t.Setenv("PALISADE_FORBIDDEN_KEYWORDS", "drop,delete")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ModeRestricted, cfg.Gatekeeper.Mode)
	require.Equal(t, 7, cfg.Gatekeeper.ProtocolVersion)
	require.Equal(t, 25.5, cfg.Gatekeeper.StakeThreshold)
	require.Equal(t, []string{"node-a", "node-b"}, cfg.Gatekeeper.Whitelist)
	require.Equal(t, []string{"node-x"}, cfg.Gatekeeper.Blacklist)
	require.Equal(t, []string{"drop", "delete"}, cfg.Gatekeeper.ForbiddenKeywords)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric protocol version", "PALISADE_PROTOCOL_VERSION", "abc"},
		{"non-numeric stake threshold", "PALISADE_STAKE_THRESHOLD", "lots"},
		{"non-numeric window", "PALISADE_RATE_WINDOW_SECONDS", "1m"},
		{"invalid mode", "PALISADE_MODE", "lenient"},
		{"negative stake threshold", "PALISADE_STAKE_THRESHOLD", "-1"},
		{"zero max requests", "PALISADE_MAX_REQUESTS_PER_WINDOW", "0"},
		{"alpha above one", "PALISADE_ALPHA", "1.5"},
		{"zero selection fraction", "PALISADE_SELECTION_FRACTION", "0"},
		{"cap above one", "PALISADE_WEIGHT_CAP", "1.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("defaults pass", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("negative protocol version rejected", func(t *testing.T) {
		cfg := base()
		cfg.Gatekeeper.ProtocolVersion = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("zero rate window rejected", func(t *testing.T) {
		cfg := base()
		cfg.Gatekeeper.RateWindow = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("zero weight budget rejected", func(t *testing.T) {
		cfg := base()
		cfg.Coordinator.WeightBudget = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("zero dispatch timeout rejected", func(t *testing.T) {
		cfg := base()
		cfg.Coordinator.DispatchTimeout = 0
		require.Error(t, cfg.Validate())
	})
}
