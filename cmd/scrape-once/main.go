package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

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

type sweepStore interface {
	scraper.Sink
	scheduler.Clearer
}

type siteSummary struct {
	Site     string `json:"site"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	Records  int    `json:"records"`
	Error    string `json:"error,omitempty"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		siteList    = flag.String("sites", strings.Join(cfg.Scraper.Sites, ","), "Comma-separated site keys to scrape (default: all)")
		sitesFile   = flag.String("sites-file", cfg.Scraper.SitesFile, "YAML file with site profiles")
		storeType   = flag.String("store", cfg.Store.Type, "Store type: postgres or file")
		storeFile   = flag.String("file", cfg.Store.File, "Output file for the file store")
		attempts    = flag.Int("attempts", cfg.Scraper.MaxAttempts, "Maximum attempts per site")
		concurrency = flag.Int("concurrency", cfg.Scraper.ConcurrentLimit, "Maximum concurrent listing extractions")
		headless    = flag.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
		listSites   = flag.Bool("list", false, "List available site keys and exit")
	)
	flag.Parse()

	cfg.Scraper.SitesFile = *sitesFile
	cfg.Store.Type = *storeType
	cfg.Store.File = *storeFile
	cfg.Scraper.MaxAttempts = *attempts
	cfg.Scraper.ConcurrentLimit = *concurrency
	cfg.Browser.Headless = *headless
	cfg.Scraper.Sites = nil
	for _, key := range strings.Split(*siteList, ",") {
		if key = strings.TrimSpace(key); key != "" {
			cfg.Scraper.Sites = append(cfg.Scraper.Sites, key)
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := logger.Open(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	code := 0
	if err := run(cfg, *listSites, log); err != nil {
		log.Error("sweep failed", "error", err)
		code = 1
	}
	closeLog()
	os.Exit(code)
}

func run(cfg *config.Config, listOnly bool, log *slog.Logger) error {
	registry, err := sites.Load(cfg.Scraper.SitesFile)
	if err != nil {
		return fmt.Errorf("failed to load site profiles: %w", err)
	}

	if listOnly {
		for _, key := range registry.Keys() {
			fmt.Println(key)
		}
		return nil
	}

	return sweep(cfg, registry, log)
}

func sweep(cfg *config.Config, registry *sites.Registry, log *slog.Logger) error {
	profiles, err := registry.Select(cfg.Scraper.Sites)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st sweepStore
	if cfg.Store.Type == "file" {
		fs, err := storage.NewFileStore(cfg.Store.File)
		if err != nil {
			return err
		}
		st = fs
	} else {
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
			return err
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		st = database.NewProductStore(db, cfg.Redis.Stream)
	}

	launcher, err := browser.NewLauncher(browser.OptionsFromConfig(cfg), log)
	if err != nil {
		return err
	}
	defer launcher.Close()

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
		scheduler.Config{MaxAttempts: cfg.Scraper.MaxAttempts},
		log,
	)

	report, err := sched.Sweep(ctx)

	summary := make([]siteSummary, len(report.Results))
	for i, res := range report.Results {
		summary[i] = siteSummary{
			Site:     res.Site,
			State:    string(res.State),
			Attempts: res.Attempts,
			Records:  res.Records,
		}
		if res.Err != nil {
			summary[i].Error = res.Err.Error()
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(summary); encErr != nil {
		log.Error("failed to write summary", "error", encErr)
	}

	return err
}
