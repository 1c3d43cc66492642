package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/api"
	"github.com/nidhogg/mcp-server-qdrant/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the store and find tools (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Server.Level())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("transport", cfg.Server.Transport),
		zap.String("collection", cfg.Qdrant.Collection),
		zap.String("embedding_provider", string(cfg.Embedding.Kind)),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Bool("read_only", cfg.Qdrant.ReadOnly),
	)

	a, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.Close()

	server := a.tools.NewMCPServer(serverName, version)
	if cfg.Server.Transport == config.TransportHTTP {
		return serveHTTP(ctx, a, server)
	}
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stdio session closed")
	return nil
}

func serveHTTP(ctx context.Context, a *app, server *mcp.Server) error {
	handler := api.NewHandler(server, api.Status{
		Collection: a.cfg.Qdrant.Collection,
		VectorName: a.provider.VectorName(),
		VectorSize: a.provider.VectorSize(),
		ReadOnly:   a.cfg.Qdrant.ReadOnly,
	}, a.logger)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", srv.Addr), zap.String("path", api.MCPPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
