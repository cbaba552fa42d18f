// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/croply/fieldreport/internal/config"
	"github.com/croply/fieldreport/internal/delivery"
	"github.com/croply/fieldreport/internal/delivery/email"
	deliverypostgres "github.com/croply/fieldreport/internal/delivery/postgres"
	"github.com/croply/fieldreport/internal/enrich"
	fieldspostgres "github.com/croply/fieldreport/internal/fields/postgres"
	"github.com/croply/fieldreport/internal/narrative"
	"github.com/croply/fieldreport/internal/pkg/ctxlog"
	"github.com/croply/fieldreport/internal/pkg/httputil"
	"github.com/croply/fieldreport/internal/pkg/metrics"
	"github.com/croply/fieldreport/internal/pkg/postgres"
	"github.com/croply/fieldreport/internal/queue"
	queuepostgres "github.com/croply/fieldreport/internal/queue/postgres"
	"github.com/croply/fieldreport/internal/report"
	"github.com/croply/fieldreport/internal/schedule"
	"github.com/croply/fieldreport/internal/version"
	"github.com/croply/fieldreport/internal/weather"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	emailSender   *email.Sender
	coordinator   *queue.Coordinator
	scheduler     *schedule.Scheduler
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.Migrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setup(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup application: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.coordinator != nil {
		a.coordinator.Stop(ctx)
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.emailSender != nil {
		a.emailSender.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setup(ctx context.Context) (*chi.Mux, error) {
	fieldsRepo := fieldspostgres.NewRepository(a.db)
	queueRepo := queuepostgres.NewRepository(a.db)
	auditRepo := deliverypostgres.NewRepository(a.db)

	var weatherFetcher weather.Fetcher = weather.NewClient(weather.Config{
		BaseURL:        a.config.Weather.BaseURL,
		Timeout:        a.config.Weather.Timeout,
		HistoricalDays: a.config.Weather.HistoricalDays,
		ForecastDays:   a.config.Weather.ForecastDays,
	})

	if a.config.Weather.Cache.Enabled {
		a.redis = redis.NewClient(&redis.Options{Addr: a.config.Weather.Cache.Addr})
		weatherFetcher = weather.NewCachedFetcher(weatherFetcher, a.redis, a.config.Weather.Cache.TTL)
		slog.Info("weather cache enabled", "addr", a.config.Weather.Cache.Addr, "ttl", a.config.Weather.Cache.TTL)
	}

	generator := narrative.NewClient(narrative.Config{
		APIKey:      a.config.Narrative.APIKey,
		BaseURL:     a.config.Narrative.BaseURL,
		Model:       a.config.Narrative.Model,
		Timeout:     a.config.Narrative.Timeout,
		MaxRetries:  a.config.Narrative.MaxRetries,
		Temperature: a.config.Narrative.Temperature,
	})
	if !generator.Available() {
		slog.Warn("narrative api key not configured: reports will carry fallback text")
	}

	emailSender, err := email.NewSender(email.Config{
		Enabled:      a.config.Email.Enabled,
		SMTPHost:     a.config.Email.SMTPHost,
		SMTPPort:     a.config.Email.SMTPPort,
		SMTPUser:     a.config.Email.SMTPUser,
		SMTPPassword: a.config.Email.SMTPPassword,
		FromAddress:  a.config.Email.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	a.emailSender = emailSender

	if !a.config.Email.Enabled {
		slog.Warn("email sender is disabled: reports will be generated but not sent")
	}

	renderer, err := delivery.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create report renderer: %w", err)
	}

	adapter := delivery.NewAdapter(delivery.Config{
		SendRetries:  a.config.Email.SendRetries,
		RetryBackoff: a.config.Email.SendBackoff,
	}, renderer, emailSender, auditRepo)

	assembler := enrich.NewAssembler(fieldsRepo, weatherFetcher, generator)
	compositor := report.NewCompositor()

	a.coordinator = queue.NewCoordinator(queue.CoordinatorConfig{
		BatchSize:    a.config.Queue.BatchSize,
		PollInterval: a.config.Queue.PollInterval,
		ItemThrottle: a.config.Queue.ItemThrottle,
		StaleAfter:   a.config.Queue.StaleClaimAge,
	}, queueRepo, assembler, compositor, adapter)
	a.coordinator.Start(ctx)

	go a.collectQueueMetrics(ctx, queueRepo)

	if a.config.Schedule.Enabled {
		a.scheduler = schedule.NewScheduler(schedule.Config{
			Spec:       a.config.Schedule.Spec,
			MaxRetries: a.config.Queue.MaxRetries,
		}, fieldsRepo, queueRepo)
		if err := a.scheduler.Start(ctx); err != nil {
			return nil, fmt.Errorf("start scheduler: %w", err)
		}
	}

	queueHandler := queue.NewHandler(queueRepo, a.coordinator, a.config.Queue.MaxRetries)

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>FieldReport API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.RateLimitMiddleware(a.config.Webhook.RateLimitRPS, a.config.Webhook.RateLimitBurst))
			queueHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo queue.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			queue.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyzHandler reports readiness: the store must answer and, when email is
// enabled, the SMTP gateway must be reachable.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "component", "database", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if err := a.emailSender.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "component", "email", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Email gateway unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
