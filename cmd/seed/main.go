package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/reawakened/rw-backend/internal/auth"
	"github.com/reawakened/rw-backend/internal/config"
	"github.com/reawakened/rw-backend/internal/db"
	"github.com/reawakened/rw-backend/internal/logging"
)

// CLI flags
var (
	email    = flag.String("email", os.Getenv("SEED_ADMIN_EMAIL"), "Email of the super_admin account (default: env SEED_ADMIN_EMAIL)")
	password = flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"), "Password to set (default: env SEED_ADMIN_PASSWORD)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *email == "" || *password == "" {
		log.Fatal("-email and -password are required")
	}
	if n := len([]rune(*password)); n < 8 || n > 128 {
		log.Fatal("password must be 8 to 128 characters")
	}

	logger := logging.New(cfg.IsProduction())

	gdb, err := db.Connect(cfg.DBURL, cfg.IsProduction())
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(gdb)

	if err := auth.Init(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	svc := auth.NewService(auth.NewGormStore(gdb), auth.NewPasswordHasher(cfg.BcryptCost), auth.Settings{},
		auth.WithLogger(logging.Component(logger, "auth")))

	u, created, err := svc.EnsureSuperAdmin(context.Background(), *email, *password, auth.RequestMeta{UserAgent: "cmd/seed"})
	if err != nil {
		log.Fatalf("seed super_admin: %v", err)
	}

	if created {
		fmt.Printf("Created super_admin %s (id %s)\n", u.Email, u.ID)
	} else {
		fmt.Printf("Promoted %s to super_admin and reset its password\n", u.Email)
	}
}
