package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricetracker/price-tracker/internal/api"
	"github.com/pricetracker/price-tracker/internal/browser"
	"github.com/pricetracker/price-tracker/internal/config"
	"github.com/pricetracker/price-tracker/internal/database"
	"github.com/pricetracker/price-tracker/internal/logger"
	"github.com/pricetracker/price-tracker/internal/parser"
	"github.com/pricetracker/price-tracker/internal/ratelimit"
	"github.com/pricetracker/price-tracker/internal/scheduler"
	"github.com/pricetracker/price-tracker/internal/scraper"
	"github.com/pricetracker/price-tracker/internal/sites"
	"github.com/pricetracker/price-tracker/internal/storage"
)

// store is what both the scheduler and the read endpoint need.
type store interface {
	scraper.Sink
	scheduler.Clearer
	api.ProductReader
}

func main() {
	if err := run(); err != nil {
		slog.Error("price tracker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, closeLog, err := logger.Open(os.Stdout, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := sites.Load(cfg.Scraper.SitesFile)
	if err != nil {
		return fmt.Errorf("failed to load site profiles: %w", err)
	}
	profiles, err := registry.Select(cfg.Scraper.Sites)
	if err != nil {
		return err
	}

	var (
		st      store
		workers sync.WaitGroup
	)

	switch cfg.Store.Type {
	case "file":
		fs, err := storage.NewFileStore(cfg.Store.File)
		if err != nil {
			return fmt.Errorf("failed to open store file: %w", err)
		}
		st = fs

	default:
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		st = database.NewProductStore(db, cfg.Redis.Stream)

		if cfg.Redis.RelayEnabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}

			relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, log, database.RelayConfig{
				PollInterval: cfg.Redis.PollInterval,
			})
			workers.Add(1)
			go func() {
				defer workers.Done()
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	launcher, err := browser.NewLauncher(browser.OptionsFromConfig(cfg), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			log.Warn("failed to stop browser driver", "error", err)
		}
	}()

	identities, err := browser.NewIdentityPool(cfg.Scraper.UserAgents, nil)
	if err != nil {
		return err
	}

	detector := parser.NewChallengeDetector()
	orchestrator := scraper.NewOrchestrator(
		launcher,
		identities,
		detector,
		scraper.NewExtractor(detector, cfg.Scraper.DetailTimeout, log),
		st,
		scraper.Options{
			Concurrency:       cfg.Scraper.ConcurrentLimit,
			NavigationTimeout: cfg.Scraper.NavigationTimeout,
		},
		log,
	)

	sched := scheduler.New(
		orchestrator,
		st,
		ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.SiteDelayMin, cfg.Scraper.SiteDelayMax),
		profiles,
		scheduler.Config{
			Interval:    cfg.Schedule.Interval,
			RunOnStart:  cfg.Schedule.RunOnStart,
			MaxAttempts: cfg.Scraper.MaxAttempts,
		},
		log,
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped with error", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(api.NewHandlers(st, log), api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "store", cfg.Store.Type, "sites", registry.Keys())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server...")
	case err := <-serverErr:
		if err != nil {
			stop()
			workers.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	workers.Wait()
	log.Info("server stopped")
	return nil
}
