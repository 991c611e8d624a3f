package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
	"github.com/xenking/geo-pricing/internal/seed"
	"github.com/xenking/geo-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "", "YAML seed file; the built-in sample data when empty")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	f, err := loadSeed(seedFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Mutations go through the service so seeded data is validated and
	// normalized exactly like API writes.
	svc, err := pricing.NewService(
		postgres.NewRuleStore(pool),
		postgres.NewMultiplierStore(pool),
		nil, nil, nil,
	)
	if err != nil {
		return errors.Wrap(err, "create pricing service")
	}

	if err := f.Apply(ctx, svc); err != nil {
		return errors.Wrap(err, "apply seed")
	}

	slog.Info("seeded pricing data",
		slog.Int("rules", len(f.Rules)),
		slog.Int("multipliers", len(f.Multipliers)),
	)
	if len(f.Variants) > 0 {
		slog.Warn("variant tiers are not persisted; pass the seed file to the server instead",
			slog.Int("variants", len(f.Variants)),
		)
	}
	return nil
}

func loadSeed(path string) (*seed.File, error) {
	if path == "" {
		slog.Info("using built-in sample data")
		f, err := seed.Default()
		return f, errors.Wrap(err, "load default seed")
	}
	slog.Info("loading seed file", slog.String("path", path))
	f, err := seed.Load(path)
	return f, errors.Wrap(err, "load seed file")
}
