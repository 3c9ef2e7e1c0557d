package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.ListenAddress())
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 60, cfg.Server.ReconnectGraceSeconds)
	assert.Empty(t, cfg.Tables)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	content := `
server {
  address = "0.0.0.0"
  port = 9000
  log_level = "debug"
  db_path = "night.db"
}

table "main" {
  small_blind = 5
  big_blind = 10
}

table "high" {
  small_blind = 25
  big_blind = 50
  max_players = 6
  min_buy_in = 2000
  max_buy_in = 10000
}
`
	path := filepath.Join(t.TempDir(), "homegame.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddress())
	assert.Equal(t, "night.db", cfg.Server.DBPath)

	require.Len(t, cfg.Tables, 2)
	main := cfg.Tables[0]
	assert.Equal(t, "main", main.Name)
	assert.Equal(t, 200, main.MinBuyIn, "defaults to 20 big blinds")
	assert.Equal(t, 2000, main.MaxBuyIn, "defaults to 200 big blinds")
	assert.Equal(t, 9, main.MaxPlayers, "inherits server max_players")
	assert.Equal(t, 30.0, main.TurnTime)

	high := cfg.Tables[1]
	assert.Equal(t, 6, high.MaxPlayers)
	assert.Equal(t, 2000, high.MinBuyIn)
	assert.Equal(t, 10000, high.MaxBuyIn)
}

func TestLoadConfigParseError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.hcl")
	require.NoError(t, os.WriteFile(path, []byte("server {"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"min players below two", func(c *Config) { c.Server.MinPlayers = 1 }},
		{"max players above ten", func(c *Config) { c.Server.MaxPlayers = 11 }},
		{"negative grace", func(c *Config) { c.Server.ReconnectGraceSeconds = -1 }},
		{"zero small blind", func(c *Config) {
			c.Tables = []TableConfig{{Name: "t", SmallBlind: 0, BigBlind: 2, MinBuyIn: 40, MaxBuyIn: 400}}
		}},
		{"big blind not above small", func(c *Config) {
			c.Tables = []TableConfig{{Name: "t", SmallBlind: 2, BigBlind: 2, MinBuyIn: 40, MaxBuyIn: 400}}
		}},
		{"inverted buy-in range", func(c *Config) {
			c.Tables = []TableConfig{{Name: "t", SmallBlind: 1, BigBlind: 2, MinBuyIn: 500, MaxBuyIn: 400}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
