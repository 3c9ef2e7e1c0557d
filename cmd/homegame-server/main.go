package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/homegame/internal/auth"
	"github.com/lox/homegame/internal/game"
	"github.com/lox/homegame/internal/server"
	"github.com/lox/homegame/internal/session"
	"github.com/lox/homegame/internal/state"
	"github.com/lox/homegame/internal/store"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"homegame.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	DB       string `short:"d" long:"db" help:"Path to the SQLite database (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	// Apply command line overrides.
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.DB != "" {
		cfg.Server.DBPath = CLI.DB
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	st, err := store.Open(cfg.Server.DBPath, logger)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.Server.DBPath)
		kctx.Exit(1)
	}
	defer st.Close()

	clock := quartz.NewReal()
	kv := state.NewMemoryKV()
	games := state.NewGameStore(kv, st, logger)
	sessions := session.NewStore(kv, clock,
		time.Duration(cfg.Server.ReconnectGraceSeconds)*time.Second, logger)
	authn := auth.NewAuthenticator(st, auth.NewBcryptHasher(), clock,
		time.Hour, 7*24*time.Hour, logger)

	hub := server.NewHub(cfg, authn, st, games, sessions, clock, logger)

	if err := hub.RestoreTables(); err != nil {
		logger.Error("Failed to restore tables", "error", err)
		kctx.Exit(1)
	}

	// Create configured tables, skipping names already restored from a
	// previous run.
	for _, tc := range cfg.Tables {
		if hub.HasTableNamed(tc.Name) {
			logger.Info("Table already restored", "name", tc.Name)
			continue
		}
		hub.CreateTable(game.Config{
			Name:              tc.Name,
			SmallBlind:        tc.SmallBlind,
			BigBlind:          tc.BigBlind,
			MinPlayers:        tc.MinPlayers,
			MaxPlayers:        tc.MaxPlayers,
			MinBuyIn:          tc.MinBuyIn,
			MaxBuyIn:          tc.MaxBuyIn,
			TurnTime:          tc.TurnTime,
			TimeBank:          cfg.Server.TimeBankSeconds,
			TimeBankReplenish: cfg.Server.TimeBankReplenish,
		})
		logger.Info("Created table",
			"name", tc.Name,
			"stakes", fmt.Sprintf("%d/%d", tc.SmallBlind, tc.BigBlind),
			"maxPlayers", tc.MaxPlayers)
	}

	srv := server.NewServer(cfg.ListenAddress(), hub, authn, st, logger)

	logger.Info("Starting homegame server",
		"addr", cfg.ListenAddress(),
		"db", cfg.Server.DBPath,
		"tables", len(cfg.Tables))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
	logger.Info("Server stopped")
}
