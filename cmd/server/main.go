package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/ippclub/repo-catalog/internal/config"
	"github.com/ippclub/repo-catalog/internal/handler"
	"github.com/ippclub/repo-catalog/internal/logger"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/service"
	"github.com/ippclub/repo-catalog/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var (
	rootCmd = &cobra.Command{
		Use:   "repo-catalog",
		Short: "Repo catalog API server",
		RunE:  runServer,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE:  runServer,
	}
	importCmd = &cobra.Command{
		Use:   "import <file.json>",
		Short: "Bulk import repos from a JSON array file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration and opens the logger and the store
func bootstrap(ctx context.Context) (*config.Config, *zap.Logger, store.RepoStore, error) {
	// Load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Open record store
	st, err := store.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	log.Info("store opened", zap.String("driver", cfg.Storage.Driver))

	return cfg, log, st, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, log, st, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	api := handler.NewAPI(cfg, log, service.NewRepoService(st, log))

	// Create router
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	// Create server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("failed to start server", zap.Error(err))
		return err
	case sig := <-quit:
		log.Info("shutting down server...", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("server exited properly")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, log, st, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	inputs, err := model.DecodeBulk(data)
	if err != nil {
		return fmt.Errorf("failed to parse import file: %w", err)
	}

	saved, err := service.NewRepoService(st, log).CreateBulk(ctx, inputs)
	if err != nil {
		return err
	}

	log.Info("import finished",
		zap.String("file", args[0]),
		zap.Int("candidates", len(inputs)),
		zap.Int("inserted", len(saved)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d repos\n", len(saved), len(inputs))
	return nil
}
