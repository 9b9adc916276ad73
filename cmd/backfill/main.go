// Command backfill repairs legacy occurrence rows imported without a status
// or priority. Run it once before pointing the scheduler at such a database.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"maintenance-scheduler/config"
	"maintenance-scheduler/internal/db"
	"maintenance-scheduler/internal/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the scheduler config file")
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the backfill after this long")
	flag.Parse()
	if *configPath == "" {
		*configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", *configPath, err)
	}

	appLog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer appLog.Sync()

	gormDB, err := db.Init(&cfg.Database, appLog)
	if err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := db.BackfillLegacyDefaults(ctx, gormDB)
	if err != nil {
		appLog.Fatal("backfill failed", "error", err)
	}
	appLog.Info("backfill complete", "statuses", res.Statuses, "priorities", res.Priorities)
}
