package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"go-townwork-crawler/internal/browser"
	"go-townwork-crawler/internal/config"
	"go-townwork-crawler/internal/crawler"
	"go-townwork-crawler/internal/database"
	"go-townwork-crawler/internal/filter"
	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/scraper"
	"go-townwork-crawler/internal/service"
	"go-townwork-crawler/internal/store"
)

// session tracks one POST /api/crawl invocation through its lifetime.
type session struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"` // running, completed, failed
	Progress   string           `json:"progress,omitempty"`
	Current    int              `json:"current"`
	Total      int              `json:"total"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Outcome    *service.Outcome `json:"outcome,omitempty"`
}

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) create() *session {
	s := &session{ID: uuid.NewString(), Status: "running", StartedAt: time.Now()}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *sessionRegistry) get(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) update(id string, fn func(*session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		fn(s)
	}
}

// snapshot copies the session so handlers never hand out a pointer the
// crawl goroutine is still mutating.
func (r *sessionRegistry) snapshot(id string) (session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return session{}, false
	}
	return *s, true
}

type server struct {
	cfg       *config.Config
	selectors config.Selectors
	manager   *browser.Manager
	store     store.Store
	registry  *sessionRegistry
	log       *zap.SugaredLogger

	// one crawl at a time; the browser is a shared resource
	crawlMu sync.Mutex
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	selectors, err := config.LoadSelectors(cfg.SelectorsPath)
	if err != nil {
		log.Fatalf("failed to load selectors: %v", err)
	}

	ctx := context.Background()

	var st store.Store
	if cfg.DatabaseURL == "" {
		log.Info("no DATABASE_URL set, using in-memory store")
		st = store.NewMemoryStore(log)
	} else {
		pg, err := database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		st = pg
	}
	defer st.Close()

	manager, err := browser.NewManager(browser.Options{
		Headless:   cfg.Headless,
		UserAgents: cfg.UserAgents,
	}, log)
	if err != nil {
		log.Fatalf("failed to init Playwright: %v", err)
	}
	defer manager.Close()

	srv := &server{
		cfg:       cfg,
		selectors: selectors,
		manager:   manager,
		store:     st,
		registry:  newSessionRegistry(),
		log:       log,
	}

	c := cron.New()
	c.AddFunc(cfg.CleanupSpec, func() {
		svc := srv.newService(cfg.Source)
		if svc == nil {
			return
		}
		if _, err := svc.MarkOld(ctx, time.Now().AddDate(0, 0, -cfg.MarkOldDays)); err != nil {
			log.Warnw("mark-old job failed", "err", err)
		}
		if _, err := svc.CleanupOlderThan(ctx, cfg.RetentionDays); err != nil {
			log.Warnw("cleanup job failed", "err", err)
		}
	})
	if cfg.CrawlSpec != "" {
		c.AddFunc(cfg.CrawlSpec, func() {
			srv.startCrawl(cfg.Source, crawler.Request{
				Keywords:    cfg.Keywords,
				Areas:       cfg.Areas,
				MaxPages:    cfg.MaxPages,
				Parallelism: cfg.Parallelism,
			})
		})
	}
	c.Start()
	defer c.Stop()

	r := gin.Default()
	r.GET("/healthz", func(gc *gin.Context) {
		gc.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := r.Group("/api")
	api.GET("/sources", srv.handleSources)
	api.POST("/crawl", srv.handleStartCrawl)
	api.GET("/crawl/:id", srv.handleCrawlStatus)
	api.GET("/jobs", srv.handleJobs)
	api.POST("/filters/apply", srv.handleApplyFilters)
	api.GET("/stats", srv.handleStats)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Infof("server listening on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func (s *server) newService(source string) *service.Service {
	strategy, err := s.selectors.Strategy(source)
	if err != nil {
		s.log.Warnw("unknown source", "source", source, "err", err)
		return nil
	}
	extractor := scraper.NewExtractor(strategy, s.log)
	extractor.ScreenshotDir = s.cfg.ScreenshotDir
	sched := crawler.NewScheduler(s.manager, extractor, s.log)
	sched.FetchDetails = s.cfg.FetchDetails

	src := models.Source{Name: source}
	for _, known := range models.DefaultSources() {
		if known.Name == source {
			src = known
		}
	}
	return service.New(sched, s.store, src, s.log)
}

type crawlRequest struct {
	Source      string              `json:"source"`
	Keywords    []string            `json:"keywords" binding:"required"`
	Areas       []string            `json:"areas" binding:"required"`
	MaxPages    int                 `json:"max_pages"`
	Parallelism int                 `json:"parallelism"`
	Filters     map[string][]string `json:"filters"` // search filters, translated per site
}

func (s *server) handleSources(gc *gin.Context) {
	gc.JSON(http.StatusOK, gin.H{"sources": models.DefaultSources()})
}

func (s *server) handleStartCrawl(gc *gin.Context) {
	var req crawlRequest
	if err := gc.ShouldBindJSON(&req); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = s.cfg.Source
	}
	if req.MaxPages == 0 {
		req.MaxPages = s.cfg.MaxPages
	}
	if req.Parallelism == 0 {
		req.Parallelism = s.cfg.Parallelism
	}

	creq := crawler.Request{
		Keywords:    req.Keywords,
		Areas:       req.Areas,
		MaxPages:    req.MaxPages,
		Parallelism: req.Parallelism,
		Filters:     req.Filters,
	}
	if err := creq.Validate(); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.selectors.Strategy(req.Source); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := s.startCrawl(req.Source, creq)
	gc.JSON(http.StatusAccepted, gin.H{"session_id": sess.ID, "status": sess.Status})
}

func (s *server) startCrawl(source string, req crawler.Request) *session {
	sess := s.registry.create()

	go func() {
		s.crawlMu.Lock()
		defer s.crawlMu.Unlock()

		svc := s.newService(source)
		if svc == nil {
			now := time.Now()
			s.registry.update(sess.ID, func(ss *session) {
				ss.Status = "failed"
				ss.Progress = "unknown source: " + source
				ss.FinishedAt = &now
			})
			return
		}
		svc.SetProgress(func(message string, current, total int) {
			s.registry.update(sess.ID, func(ss *session) {
				ss.Progress = message
				ss.Current = current
				ss.Total = total
			})
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		outcome := svc.Crawl(ctx, req)
		now := time.Now()
		s.registry.update(sess.ID, func(ss *session) {
			ss.Outcome = &outcome
			ss.FinishedAt = &now
			if outcome.Err != "" {
				ss.Status = "failed"
			} else {
				ss.Status = "completed"
			}
		})
	}()

	return sess
}

func (s *server) handleCrawlStatus(gc *gin.Context) {
	sess, ok := s.registry.snapshot(gc.Param("id"))
	if !ok {
		gc.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	gc.JSON(http.StatusOK, sess)
}

func (s *server) handleJobs(gc *gin.Context) {
	q := store.Query{
		Source:     gc.Query("source"),
		Keyword:    gc.Query("keyword"),
		Prefecture: gc.Query("prefecture"),
		Limit:      100,
	}
	if v := gc.Query("is_new"); v != "" {
		isNew := v == "true"
		q.IsNew = &isNew
	}

	jobs, err := s.store.List(gc.Request.Context(), q)
	if err != nil {
		gc.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gc.JSON(http.StatusOK, gin.H{"total": len(jobs), "jobs": jobs})
}

type filterRequest struct {
	Source string        `json:"source"`
	Rules  *filter.Rules `json:"rules"`
}

func (s *server) handleApplyFilters(gc *gin.Context) {
	var req filterRequest
	if err := gc.ShouldBindJSON(&req); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = s.cfg.Source
	}
	rules := filter.DefaultRules()
	if req.Rules != nil {
		rules = *req.Rules
	}

	svc := s.newService(req.Source)
	if svc == nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": "unknown source: " + req.Source})
		return
	}
	result, err := svc.JobsWithFilter(gc.Request.Context(), store.Query{Source: req.Source}, true, rules)
	if err != nil {
		gc.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gc.JSON(http.StatusOK, gin.H{
		"total":    result.TotalCount,
		"kept":     len(result.Kept),
		"excluded": result.ExcludedCount(),
		"summary":  result.Summary(),
		"details":  result.Excluded,
	})
}

func (s *server) handleStats(gc *gin.Context) {
	stats, err := s.store.Stats(gc.Request.Context())
	if err != nil {
		gc.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gc.JSON(http.StatusOK, stats)
}
