package cmd

import (
	"context"
	"fmt"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/extraction"
	"github.com/aurum-app/facerank/internal/population"
	"github.com/aurum-app/facerank/internal/population/postgres"
	"github.com/aurum-app/facerank/internal/scoring"
	"github.com/aurum-app/facerank/internal/vibes"
)

// buildService wires the scoring service from configuration: a PostgreSQL
// store when DATABASE_URL is set, the in-memory store otherwise. The
// returned cleanup closes the database pool (a no-op for memory).
func buildService(ctx context.Context, cfg *config.Config) (*scoring.Service, *extraction.Client, func(), error) {
	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	client := extraction.NewClient(cfg.Extraction)
	tagger := vibes.NewTagger(ctx, cfg.Vibes)
	svc := scoring.NewService(store, client, tagger, cfg)
	return svc, client, cleanup, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (population.Store, func(), error) {
	if cfg.Database.URL == "" {
		fmt.Printf("Using in-memory population store (set DATABASE_URL for persistence)\n")
		return population.NewMemoryStore(), func() {}, nil
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	repo, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	fmt.Printf("Building in-memory HNSW index for similarity search...\n")
	if err := repo.EnableHNSW(ctx); err != nil {
		fmt.Printf("Warning: failed to build HNSW index: %v\n", err)
		fmt.Printf("Similarity queries will use PostgreSQL directly (slower)\n")
	}

	cleanup := func() {
		if err := repo.Close(); err != nil {
			fmt.Printf("Warning: failed to close database pool: %v\n", err)
		}
	}
	return repo, cleanup, nil
}
