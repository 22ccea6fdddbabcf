package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mojochat/internal/api"
	"mojochat/internal/auth"
	"mojochat/internal/blob"
	"mojochat/internal/config"
	"mojochat/internal/events"
	"mojochat/internal/logging"
	"mojochat/internal/metrics"
	"mojochat/internal/mw"
	"mojochat/internal/redis"
	"mojochat/internal/service/ai"
	"mojochat/internal/service/assistant"
	"mojochat/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "mojochat",
		Short:         "Mojo chat API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (defaults to $MOJO_CONFIG)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create database tables and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrate(cfgPath)
		},
	})
	return root
}

func runMigrate(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database migrated", zap.String("driver", cfg.Database.Driver))
	return nil
}

func runServe(ctx context.Context, cfgPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer rdb.Close()
	if !rdb.Enabled() {
		logger.Info("redis not configured, history cache disabled")
	}

	publisher, err := events.New(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	defer publisher.Close()

	store, err := blob.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	chatModel, err := ai.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	tools, err := ai.NewTools(ctx, cfg.Tools, logger.Named("tools"))
	if err != nil {
		return fmt.Errorf("init tools: %w", err)
	}
	aiService, err := ai.NewService(ctx, chatModel, tools, logger.Named("ai"))
	if err != nil {
		return fmt.Errorf("init ai service: %w", err)
	}

	assistantService := assistant.NewService(db, rdb, logger.Named("assistant"), assistant.Options{
		BcryptCost: cfg.Auth.BcryptCost,
		HistoryTTL: cfg.Redis.TTL,
	})
	authService := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	handlers := api.NewHandler(api.Dependencies{
		Assistant:     assistantService,
		Auth:          authService,
		AI:            aiService,
		Blobs:         store,
		Events:        publisher,
		Logger:        logger,
		FilesDir:      store.Dir(),
		StreamTimeout: cfg.Server.StreamTimeout,
	})

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := mw.NewRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst, 2*time.Minute)
	go limiter.Run()
	defer limiter.Stop()

	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger), metrics.GinMiddleware(), mw.CORS(cfg.IsDevelopment()))
	handlers.RegisterRoutes(router, limiter.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Server.Address),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.StreamTimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
