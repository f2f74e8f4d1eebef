// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/config"
	"github.com/rightvendors/portfolyze/internal/db/migrate"
	"github.com/rightvendors/portfolyze/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.NewConsole(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal("invalid direction", zap.Error(err))
	}
	res, err := migrate.Run(cfg.DatabaseURL, dir)
	if err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}
	if !res.Changed {
		log.Info("schema already at target version", zap.Uint("version", res.Version))
		return
	}
	log.Info("migrations applied",
		zap.String("direction", string(dir)),
		zap.Uint("version", res.Version),
		zap.Bool("dirty", res.Dirty))
}
