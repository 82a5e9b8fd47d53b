package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/search4all/internal/api"
	"github.com/liliang-cn/search4all/internal/config"
	"github.com/liliang-cn/search4all/internal/llm"
	"github.com/liliang-cn/search4all/internal/metrics"
	"github.com/liliang-cn/search4all/internal/repository"
	"github.com/liliang-cn/search4all/internal/search"
	"github.com/liliang-cn/search4all/internal/service"
	"github.com/liliang-cn/search4all/internal/workerpool"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "search4all",
		Short:        "Search-augmented answer engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nsearch backend: %s\nllm model: %s\nrelated questions: %t\nchat history: %t\n",
				cfg.Address(), cfg.Search.Backend, cfg.LLM.Model, cfg.Features.RelatedQuestions, cfg.Features.ChatHistory)
			return nil
		},
	}
	root.AddCommand(serveCmd, checkCmd)
	// bare invocation serves
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize session store
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	kv, err := repository.NewKVStore(db, cfg.Database.CacheSize)
	if err != nil {
		logger.Fatal("Failed to initialize key-value store", zap.Error(err))
	}
	sessionRepo := repository.NewSessionRepository(kv, cfg.History.MaxTurns)

	// Initialize backends
	searcher, err := search.New(search.Options{
		Backend:  cfg.Search.Backend,
		APIKey:   cfg.Search.APIKey,
		CX:       cfg.Search.CX,
		Endpoint: cfg.Search.Endpoint,
		Count:    cfg.Search.Count,
		Attempts: cfg.Search.Attempts,
		Client:   &http.Client{Timeout: cfg.Search.Timeout},
	})
	if err != nil {
		logger.Fatal("Failed to initialize search backend", zap.Error(err))
	}

	backend, err := llm.New(llm.Options{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		logger.Fatal("Failed to initialize llm backend", zap.Error(err))
	}

	pool := workerpool.New(cfg.Workers.Size, logger)
	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize services
	queryService := service.NewQueryService(
		service.QueryOptions{
			ChatHistory:      cfg.Features.ChatHistory,
			RelatedQuestions: cfg.Features.RelatedQuestions,
			SearchTimeout:    cfg.Search.Timeout,
			SearchBackend:    cfg.Search.Backend,
		},
		sessionRepo,
		searcher,
		backend,
		pool,
		m,
		logger,
	)
	sessionService := service.NewSessionService(sessionRepo)

	// Setup router
	router, err := api.SetupRouter(queryService, sessionService, logger, api.RouterConfig{
		APIKey:       cfg.Admin.APIKey,
		AllowOrigins: cfg.Server.AllowOrigins,
		UIDir:        cfg.Server.UIDir,
	})
	if err != nil {
		logger.Fatal("Failed to setup router", zap.Error(err))
	}

	// Answers are streamed, so there is no write timeout
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("Starting search4all server",
			zap.String("address", cfg.Address()),
			zap.String("search_backend", cfg.Search.Backend),
			zap.String("llm_backend", backend.Name()),
			zap.Bool("chat_history", cfg.Features.ChatHistory),
			zap.Bool("related_questions", cfg.Features.RelatedQuestions),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let pending session writes land before the store closes
	pool.Wait()

	logger.Info("Server exited")
	return nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
