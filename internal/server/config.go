package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings holds server-level configuration.
type ServerSettings struct {
	Address               string  `hcl:"address,optional"`
	Port                  int     `hcl:"port,optional"`
	LogLevel              string  `hcl:"log_level,optional"`
	DBPath                string  `hcl:"db_path,optional"`
	SettlementDir         string  `hcl:"settlement_dir,optional"`
	ReconnectGraceSeconds int     `hcl:"reconnect_grace_seconds,optional"`
	MinPlayers            int     `hcl:"min_players,optional"`
	MaxPlayers            int     `hcl:"max_players,optional"`
	TurnTimeSeconds       float64 `hcl:"default_turn_time_seconds,optional"`
	TimeBankSeconds       float64 `hcl:"default_time_bank_seconds,optional"`
	TimeBankReplenish     float64 `hcl:"time_bank_replenish_per_hand,optional"`
	AutoStartDelaySeconds float64 `hcl:"auto_start_delay_seconds,optional"`
}

// TableConfig defines a table created at boot.
type TableConfig struct {
	Name       string  `hcl:"name,label"`
	SmallBlind int     `hcl:"small_blind"`
	BigBlind   int     `hcl:"big_blind"`
	MinPlayers int     `hcl:"min_players,optional"`
	MaxPlayers int     `hcl:"max_players,optional"`
	MinBuyIn   int     `hcl:"min_buy_in,optional"`
	MaxBuyIn   int     `hcl:"max_buy_in,optional"`
	TurnTime   float64 `hcl:"turn_time_seconds,optional"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:               "localhost",
			Port:                  8080,
			LogLevel:              "info",
			DBPath:                "homegame.db",
			SettlementDir:         ".",
			ReconnectGraceSeconds: 60,
			MinPlayers:            2,
			MaxPlayers:            9,
			TurnTimeSeconds:       30,
			TimeBankSeconds:       60,
			TimeBankReplenish:     10,
			AutoStartDelaySeconds: 5,
		},
	}
}

// LoadConfig reads an HCL config file, falling back to defaults when the
// file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing config: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decoding config: %s", diags.Error())
	}

	defaults := DefaultConfig().Server
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaults.Address
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Port
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = defaults.LogLevel
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = defaults.DBPath
	}
	if cfg.Server.SettlementDir == "" {
		cfg.Server.SettlementDir = defaults.SettlementDir
	}
	if cfg.Server.ReconnectGraceSeconds == 0 {
		cfg.Server.ReconnectGraceSeconds = defaults.ReconnectGraceSeconds
	}
	if cfg.Server.MinPlayers == 0 {
		cfg.Server.MinPlayers = defaults.MinPlayers
	}
	if cfg.Server.MaxPlayers == 0 {
		cfg.Server.MaxPlayers = defaults.MaxPlayers
	}
	if cfg.Server.TurnTimeSeconds == 0 {
		cfg.Server.TurnTimeSeconds = defaults.TurnTimeSeconds
	}
	if cfg.Server.TimeBankSeconds == 0 {
		cfg.Server.TimeBankSeconds = defaults.TimeBankSeconds
	}
	if cfg.Server.TimeBankReplenish == 0 {
		cfg.Server.TimeBankReplenish = defaults.TimeBankReplenish
	}
	if cfg.Server.AutoStartDelaySeconds == 0 {
		cfg.Server.AutoStartDelaySeconds = defaults.AutoStartDelaySeconds
	}

	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		if t.MinPlayers == 0 {
			t.MinPlayers = cfg.Server.MinPlayers
		}
		if t.MaxPlayers == 0 {
			t.MaxPlayers = cfg.Server.MaxPlayers
		}
		if t.MinBuyIn == 0 {
			t.MinBuyIn = t.BigBlind * 20
		}
		if t.MaxBuyIn == 0 {
			t.MaxBuyIn = t.BigBlind * 200
		}
		if t.TurnTime == 0 {
			t.TurnTime = cfg.Server.TurnTimeSeconds
		}
	}

	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MinPlayers < 2 {
		return fmt.Errorf("min_players must be at least 2, got %d", c.Server.MinPlayers)
	}
	if c.Server.MaxPlayers < c.Server.MinPlayers || c.Server.MaxPlayers > 10 {
		return fmt.Errorf("max_players must be between min_players and 10, got %d", c.Server.MaxPlayers)
	}
	if c.Server.ReconnectGraceSeconds < 0 {
		return fmt.Errorf("reconnect_grace_seconds cannot be negative")
	}

	for _, t := range c.Tables {
		if t.SmallBlind <= 0 {
			return fmt.Errorf("table %s: small blind must be positive", t.Name)
		}
		if t.BigBlind <= t.SmallBlind {
			return fmt.Errorf("table %s: big blind must exceed small blind", t.Name)
		}
		if t.MinBuyIn >= t.MaxBuyIn {
			return fmt.Errorf("table %s: min buy-in must be below max buy-in", t.Name)
		}
	}
	return nil
}

// ListenAddress joins the configured address and port.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
