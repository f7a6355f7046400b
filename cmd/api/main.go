package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/internal/adapters/cache"
	"github.com/zatekoja/reviewfunnel/internal/adapters/database"
	"github.com/zatekoja/reviewfunnel/internal/adapters/events"
	"github.com/zatekoja/reviewfunnel/internal/adapters/file"
	"github.com/zatekoja/reviewfunnel/internal/adapters/remote"
	"github.com/zatekoja/reviewfunnel/internal/adapters/state"
	"github.com/zatekoja/reviewfunnel/internal/api/handlers"
	"github.com/zatekoja/reviewfunnel/internal/api/middleware"
	"github.com/zatekoja/reviewfunnel/internal/api/routes"
	"github.com/zatekoja/reviewfunnel/internal/application/services"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/redis"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/reviewapi"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	"github.com/zatekoja/reviewfunnel/pkg/config"
	"github.com/zatekoja/reviewfunnel/pkg/debounce"
	"github.com/zatekoja/reviewfunnel/pkg/secrets"
)

func main() {
	// Secrets from Vault land in the environment before config is read
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)
	if vaultErr != nil {
		log.Warn().Err(vaultErr).Msg("vault secrets not applied")
	} else if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Strs("applied", vaultResult.Applied).Strs("skipped", vaultResult.Skipped).Msg("vault secrets applied")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	funnelMetrics, err := observability.NewFunnelMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize funnel metrics")
	}

	pingers := map[string]repositories.Pinger{}

	// Redis backs the durable channel, caches and events; without it
	// everything stays in process.
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	stateStore := "memory"
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process state")
		cacheProvider = cache.NewMemoryAdapter()
		eventBus = events.NewMemoryEventBus()
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient)
		eventBus = events.NewRedisEventBus(redisClient)
		stateStore = "redis"
		pingers["redis"] = redisClient
		log.Info().Str("addr", redisClient.Addr()).Msg("funnel state shared through redis")
	}

	var pgClient *postgres.Client
	if cfg.NeedsDatabase() {
		pgClient, err = postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		if err := pgClient.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure database schema")
		}
	}

	var apiClient reviewapi.Client
	if cfg.ReviewAPI.URL != "" {
		apiClient = reviewapi.NewClient(cfg.ReviewAPI.URL, reviewapi.Options{
			Token:           cfg.ReviewAPI.Token,
			Timeout:         cfg.ReviewAPI.Timeout,
			BreakerFailures: cfg.ReviewAPI.BreakerFailures,
			BreakerCooldown: cfg.ReviewAPI.BreakerCooldown,
		})
	}

	locationSource, err := buildLocationSource(cfg, apiClient, pgClient)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Funnel.LocationSource).Msg("failed to initialize location source")
	}
	locations := cache.NewCachedLocationAdapter(locationSource, cacheProvider, cfg.Funnel.LocationCacheTTL)
	pingers["locations"] = locations

	var gateway *services.SubmissionGateway
	feedbackRepo, optInRepo := buildSubmissionSink(cfg, apiClient, pgClient)
	if feedbackRepo != nil {
		gateway = services.NewSubmissionGateway(feedbackRepo, optInRepo, funnelMetrics)
		if p, ok := feedbackRepo.(repositories.Pinger); ok {
			pingers["submissions"] = p
		}
	} else {
		log.Warn().Str("sink", cfg.Funnel.SubmissionSink).Msg("no submission backend configured, funnel is read-only")
	}

	resolver := services.NewLocationResolver(locations, funnelMetrics)
	debouncer := debounce.New(cfg.Funnel.Debounce)

	funnelService := services.NewFunnelService(services.FunnelDeps{
		Resolver:      resolver,
		Gateway:       gateway,
		Codec:         state.NewTokenCodec(cfg.Funnel.StateSecret, cfg.Funnel.StateTTL),
		Durable:       state.NewDurableStore(cacheProvider, cfg.Funnel.DurableTTL),
		Guard:         services.NewDispatchGuard(cacheProvider, cfg.Funnel.StateTTL),
		Events:        eventBus,
		Debouncer:     debouncer,
		Metrics:       funnelMetrics,
		SubmitTimeout: cfg.Funnel.SubmitTimeout,
		Readiness: services.Readiness{
			Locations:   cfg.Funnel.LocationSource,
			Submissions: cfg.Funnel.SubmissionSink,
			StateStore:  stateStore,
		},
		Pingers: pingers,
	})

	cacheMiddleware := middleware.NewCacheMiddleware(cacheProvider, metrics, int(cfg.Funnel.LocationCacheTTL.Seconds()))

	cacheInvalidationService := services.NewCacheInvalidationService(eventBus, locations, cacheMiddleware)
	if err := cacheInvalidationService.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to start cache invalidation service")
	}

	// A nil gateway must reach the handler as a nil interface.
	var suggestionGateway handlers.SuggestionGateway
	if gateway != nil {
		suggestionGateway = gateway
	}

	router := routes.NewRouter(
		handlers.NewFunnelHandler(funnelService, !cfg.IsDevelopment()),
		handlers.NewSSEHandler(funnelService),
		handlers.NewLocationHandler(resolver),
		handlers.NewSuggestionHandler(suggestionGateway, cacheProvider),
		handlers.NewHealthHandler(funnelService),
		cacheMiddleware,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router.SetupRoutes(),
		ReadTimeout: 15 * time.Second,
		// Event streams stay open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("locations", cfg.Funnel.LocationSource).
			Str("submissions", cfg.Funnel.SubmissionSink).Str("state_store", stateStore).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Pending immediate submissions are dropped, not flushed.
	funnelService.Close()
	cacheInvalidationService.Stop()

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("server stopped")
}

func buildLocationSource(cfg *config.Config, apiClient reviewapi.Client, pgClient *postgres.Client) (repositories.LocationRepository, error) {
	switch cfg.Funnel.LocationSource {
	case config.SourceFile:
		return file.NewLocationAdapterFromFile(cfg.Funnel.LocationsFile)
	case config.SourcePostgres:
		return database.NewLocationAdapter(pgClient), nil
	default:
		if apiClient == nil {
			return nil, fmt.Errorf("REVIEW_API_URL is required for the api location source")
		}
		return remote.NewReviewAPIAdapter(apiClient), nil
	}
}

// buildSubmissionSink returns nil repositories when the sink cannot be reached.
func buildSubmissionSink(cfg *config.Config, apiClient reviewapi.Client, pgClient *postgres.Client) (repositories.FeedbackRepository, repositories.OptInRepository) {
	switch cfg.Funnel.SubmissionSink {
	case config.SourcePostgres:
		return database.NewFeedbackAdapter(pgClient), database.NewOptInAdapter(pgClient)
	default:
		if apiClient == nil {
			return nil, nil
		}
		return remote.NewReviewAPIAdapter(apiClient), remote.NewOptInAdapter(apiClient)
	}
}
