// Package app wires configuration into a running server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/classifier"
	"neurosphere-backend/internal/config"
	"neurosphere-backend/internal/database"
	"neurosphere-backend/internal/handlers"
	"neurosphere-backend/internal/lifecycle"
	"neurosphere-backend/internal/metrics"
	"neurosphere-backend/internal/render"
	"neurosphere-backend/internal/services"
	"neurosphere-backend/internal/store"
	"neurosphere-backend/internal/supabase"
)

type App struct {
	Handler http.Handler

	store  store.Store
	queue  *lifecycle.Queue
	logger *zap.Logger
}

// New connects the configured backends and builds the HTTP handler. Postgres
// migrations run before the store is opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.StoreDriver == config.StoreDriverPostgres {
		if err := Migrate(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	storage, err := artifacts.Open(ctx, cfg)
	if err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("failed to open artifact storage: %w", err)
	}

	var publisher lifecycle.Publisher = lifecycle.NoopPublisher{}
	if cfg.SupabaseConfigured() {
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("failed to initialize supabase client: %w", err)
		}
		publisher = supabase.NewRealtimeClient(client.Supabase, cfg.SupabaseEventsTable)
	} else {
		logger.Info("supabase not configured, realtime events disabled")
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("failed to load visualization template: %w", err)
	}

	m := metrics.New()
	queue := lifecycle.NewQueue(cfg.WorkerCount, cfg.QueueSize, m.SetQueueDepth)
	cls := classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout)

	controller := lifecycle.NewController(lifecycle.Dependencies{
		Scans:          st.Scans(),
		Visualizations: st.Visualizations(),
		Artifacts:      storage,
		Classifier:     cls,
		Renderer:       renderer,
		Publisher:      publisher,
		Queue:          queue,
		Metrics:        m,
		Logger:         logger.Named("lifecycle"),
		SettleDelay:    cfg.SettleDelay,
	})

	service := services.NewScanService(st, storage, controller, cls, logger.Named("scans"), services.Config{
		EstimatedProcessingTime: cfg.EstimatedProcessingTime,
		MaxUploadBytes:          cfg.MaxUploadBytes,
	})

	var validator auth.Validator
	if cfg.AuthRequired {
		validator = auth.NewJWTValidator(cfg.AuthJWTSecret, cfg.AuthIssuer)
	} else {
		logger.Warn("authentication disabled, all requests act as the local user")
		validator = auth.NewNoneValidator()
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:        service,
		Store:          st,
		Validator:      validator,
		AuthRequired:   cfg.AuthRequired,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Metrics:        m,
		Logger:         logger,
	})

	logger.Info("application initialized",
		zap.String("store", cfg.StoreDriver),
		zap.String("artifacts", cfg.ArtifactDriver),
		zap.Int("workers", cfg.WorkerCount),
		zap.Int("queue_size", cfg.QueueSize))

	return &App{
		Handler: router,
		store:   st,
		queue:   queue,
		logger:  logger,
	}, nil
}

// Close waits for queued tasks, then closes the store. Tasks that outlive ctx
// are abandoned.
func (a *App) Close(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		a.queue.Close()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		a.logger.Warn("shutdown deadline reached with tasks still running")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.store.Close(closeCtx)
}

// Migrate applies the embedded postgres migrations.
func Migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required to run migrations")
	}
	migrator, err := database.NewMigrator(ctx, cfg.DatabaseURL, logger.Named("migrator"))
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
