package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reawakened/rw-backend/internal/auth"
	"github.com/reawakened/rw-backend/internal/config"
	"github.com/reawakened/rw-backend/internal/db"
	"github.com/reawakened/rw-backend/internal/logging"
)

// One-shot cleanup of expired sessions and one-time tokens, for cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	gdb, err := db.Connect(cfg.DBURL, cfg.IsProduction())
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(gdb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := logging.Component(logging.New(cfg.IsProduction()), "sweeper")
	res, err := auth.NewSweeper(auth.NewGormStore(gdb), cfg.SweepInterval, logger).RunOnce(ctx)
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	fmt.Printf("Deleted %d sessions, %d reset tokens, %d verification tokens\n",
		res.Sessions, res.ResetTokens, res.VerificationTokens)
}
