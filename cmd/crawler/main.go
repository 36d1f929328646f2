package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-townwork-crawler/internal/browser"
	"go-townwork-crawler/internal/config"
	"go-townwork-crawler/internal/crawler"
	"go-townwork-crawler/internal/database"
	"go-townwork-crawler/internal/filter"
	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/reporter"
	"go-townwork-crawler/internal/scraper"
	"go-townwork-crawler/internal/service"
	"go-townwork-crawler/internal/store"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/config.yaml", "path to config file")
		keywords    = flag.String("keywords", "", "comma-separated keywords, overrides config")
		areas       = flag.String("areas", "", "comma-separated areas, overrides config")
		maxPages    = flag.Int("pages", 0, "max pages per task, overrides config")
		parallelism = flag.Int("parallelism", 0, "concurrent tasks, overrides config")
		applyFilter = flag.Bool("filter", true, "run exclusion rules after the crawl")
		timeout     = flag.Duration("timeout", 30*time.Minute, "overall crawl deadline")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if *keywords != "" {
		cfg.Keywords = splitList(*keywords)
	}
	if *areas != "" {
		cfg.Areas = splitList(*areas)
	}
	if *maxPages > 0 {
		cfg.MaxPages = *maxPages
	}
	if *parallelism > 0 {
		cfg.Parallelism = *parallelism
	}
	log.Infof("🔧 Config loaded. Source: %s, keywords: %v, areas: %v", cfg.Source, cfg.Keywords, cfg.Areas)

	selectors, err := config.LoadSelectors(cfg.SelectorsPath)
	if err != nil {
		log.Fatalf("❌ Failed to load selectors: %v", err)
	}
	strategy, err := selectors.Strategy(cfg.Source)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Info("🚀 Starting Townwork crawler...")

	opts := browser.Options{
		Headless:   cfg.Headless,
		UserAgents: cfg.UserAgents,
	}
	if cfg.CookiesPath != "" {
		loaded, err := browser.LoadCookies(cfg.CookiesPath)
		if err != nil {
			log.Warnf("⚠️ Could not load cookies: %v. Continuing.", err)
		} else {
			log.Infof("🍪 Loaded %d cookies", len(loaded))
			opts.Cookies = loaded
		}
	}

	manager, err := browser.NewManager(opts, log)
	if err != nil {
		log.Fatalf("❌ Failed to init Playwright: %v", err)
	}
	defer manager.Close()
	log.Info("✅ Browser initialized successfully!")

	extractor := scraper.NewExtractor(strategy, log)
	extractor.ScreenshotDir = cfg.ScreenshotDir

	sched := crawler.NewScheduler(manager, extractor, log)
	sched.FetchDetails = cfg.FetchDetails

	st := openStore(ctx, cfg, log)
	defer st.Close()

	source := models.Source{Name: cfg.Source}
	for _, s := range models.DefaultSources() {
		if s.Name == cfg.Source {
			source = s
		}
	}

	svc := service.New(sched, st, source, log)

	outcome := svc.Crawl(ctx, crawler.Request{
		Keywords:    cfg.Keywords,
		Areas:       cfg.Areas,
		MaxPages:    cfg.MaxPages,
		Parallelism: cfg.Parallelism,
	})
	if outcome.Err != "" {
		log.Fatalf("❌ Crawl failed: %s", outcome.Err)
	}
	log.Infof("📦 Scraped %d, saved %d, new %d", outcome.ScrapedCount, outcome.SavedCount, outcome.NewCount)

	if n, err := svc.MarkOld(ctx, time.Now().AddDate(0, 0, -cfg.MarkOldDays)); err != nil {
		log.Warnf("⚠️ Failed to age out new flags: %v", err)
	} else if n > 0 {
		log.Infof("🕰 Aged out %d jobs", n)
	}

	jobs, err := st.List(ctx, store.Query{Source: cfg.Source, Limit: 10000})
	if err != nil {
		log.Fatalf("❌ Failed to list jobs: %v", err)
	}

	if *applyFilter {
		result := svc.ApplyFilters(jobs, filter.DefaultRules())
		log.Infof("📋 %s", result.Summary())
		jobs = result.Kept
	}

	saveResults(log, cfg.OutputDir, jobs)

	if cfg.TelegramToken != "" {
		tg, err := reporter.NewTelegramReporter(cfg)
		if err != nil {
			log.Warnf("⚠️ Telegram init failed: %v", err)
		} else if err := tg.SendDigest(&outcome, jobs, 10); err != nil {
			log.Warnf("⚠️ Failed to send Telegram digest: %v", err)
		}
	}

	log.Info("🏁 Execution finished.")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) store.Store {
	if cfg.DatabaseURL == "" {
		log.Info("ℹ️ No DATABASE_URL set, using in-memory store")
		return store.NewMemoryStore(log)
	}
	st, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	return st
}

func saveResults(log *zap.SugaredLogger, dir string, jobs []models.StoredJob) {
	if len(jobs) == 0 {
		log.Info("ℹ️ No jobs to save.")
		return
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warnf("⚠️ Failed to create output directory: %v", err)
		return
	}

	//gen filename: jobs-YYYY-MM-DD.json
	filename := fmt.Sprintf("jobs-%s.json", time.Now().Format("2006-01-02"))
	filePath := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(jobs, "", " ")
	if err != nil {
		log.Warnf("⚠️ Failed to marshal jobs to JSON: %v", err)
		return
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.Warnf("⚠️ Failed to write results file: %v", err)
		return
	}

	log.Infof("📁 Results saved to %s", filePath)
}
