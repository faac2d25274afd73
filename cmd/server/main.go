// Command server runs the WanderBite API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wanderbite/wanderbite/internal/api"
	billingapi "github.com/wanderbite/wanderbite/internal/api/billing"
	challengeapi "github.com/wanderbite/wanderbite/internal/api/challenge"
	partnerapi "github.com/wanderbite/wanderbite/internal/api/partner"
	profileapi "github.com/wanderbite/wanderbite/internal/api/profile"
	"github.com/wanderbite/wanderbite/internal/cache"
	"github.com/wanderbite/wanderbite/internal/config"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/internal/service/badges"
	"github.com/wanderbite/wanderbite/internal/service/challenge"
	"github.com/wanderbite/wanderbite/internal/service/redemption"
	"github.com/wanderbite/wanderbite/internal/service/stats"
	"github.com/wanderbite/wanderbite/internal/session"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	redis, err := cache.New(&cfg.Database.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redis.Close()

	// Repositories
	profileRepo := repository.NewProfileRepository(db)
	restaurantRepo := repository.NewRestaurantRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	redemptionRepo := repository.NewRedemptionRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)

	// Services
	badgeService := badges.NewService(badgeRepo, log)
	if err := badgeService.EnsureCatalog(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed badge catalog")
	}
	challengeService := challenge.NewService(challengeRepo, restaurantRepo, profileRepo, redemptionRepo, redis, cfg.Challenge.ItemsPerMonth, log)
	redemptionService := redemption.NewService(redemptionRepo, challengeRepo, profileRepo, restaurantRepo, badgeService, log)
	statsService := stats.NewService(redemptionRepo, restaurantRepo, badgeRepo, log)

	sessions := session.NewStore(redis, time.Duration(cfg.Partner.SessionTTLHours)*time.Hour)
	secureCookies := cfg.Server.Environment == "production"

	handlers := api.Handlers{
		Challenge: challengeapi.NewHandler(challengeService, redemptionService, statsService, log),
		Profile:   profileapi.NewHandler(profileRepo, log),
		Partner:   partnerapi.NewHandler(restaurantRepo, sessions, redemptionService, secureCookies, log),
		Billing:   billingapi.NewHandler(profileRepo, &cfg.Billing, cfg.Server.BaseURL, log),
	}

	router := api.NewRouter(cfg, handlers, sessions, db, redis, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Server.Environment).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
}
