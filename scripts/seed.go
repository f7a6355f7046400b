package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/internal/adapters/database"
	"github.com/zatekoja/reviewfunnel/internal/adapters/events"
	"github.com/zatekoja/reviewfunnel/internal/adapters/file"
	"github.com/zatekoja/reviewfunnel/internal/application/services"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/redis"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	"github.com/zatekoja/reviewfunnel/pkg/config"
)

// Loads the locations file into PostgreSQL and tells running API
// instances to drop their cached copies.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("reviewfunnel-seed", cfg.Environment)

	path := cfg.Funnel.LocationsFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	doc, err := file.LoadDocument(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to load locations")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := pgClient.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating locations before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE review_platforms, locations RESTART IDENTITY CASCADE`)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to reset tables")
		}
	}

	repo := database.NewLocationAdapter(pgClient)
	seeded := make([]string, 0, len(doc.Locations))
	for i := range doc.Locations {
		loc := doc.Locations[i]
		if err := repo.Upsert(ctx, &loc); err != nil {
			log.Error().Err(err).Str("location_id", loc.ID).Msg("failed to upsert location")
			continue
		}
		seeded = append(seeded, loc.ID)
	}

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, cached locations expire on their own")
	} else {
		defer redisClient.Close()
		bus := events.NewRedisEventBus(redisClient)
		if err := services.PublishLocationUpdates(ctx, bus, seeded...); err != nil {
			log.Warn().Err(err).Msg("failed to publish location updates")
		}
		_ = bus.Close()
	}

	log.Info().Int("locations", len(seeded)).Str("path", path).Msg("seeding completed")
}
