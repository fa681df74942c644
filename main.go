package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/duelarena/config"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/persistence"
	"github.com/wfunc/duelarena/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(cfg.Database.Postgres)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Info("Database connection successful.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gameServer := server.NewGameServer(cfg, db)

	logger.Log.Infof("Starting duel arena on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Run(ctx); err != nil {
		logger.Log.Fatalf("Server stopped: %v", err)
	}
	logger.Log.Info("Server stopped.")
}
