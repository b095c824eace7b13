package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/config"
	"github.com/waveline-ai/waveline/internal/logging"
	"github.com/waveline-ai/waveline/internal/mcp"
	"github.com/waveline-ai/waveline/internal/server"
	"github.com/waveline-ai/waveline/internal/session"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	Long: `Start the status server: connects every configured MCP server and
exposes the HTTP API plus the SSE event stream.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "hostname", "", "Hostname to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, workDir, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Partial connect failures are survivable; the status API reports
	// per-server state.
	if err := registry.ConnectAll(ctx); err != nil {
		logging.Warn().Err(err).Msg("some mcp servers failed to connect")
	}
	defer registry.DisconnectAll()

	watcher, err := config.NewWatcher(workDir)
	if err != nil {
		logging.Warn().Err(err).Msg("config watcher unavailable")
	} else if watcher != nil {
		watcher.Start()
		defer watcher.Stop()
	}

	serverCfg := server.ConfigFrom(cfg.Server)
	if servePort != 0 {
		serverCfg.Port = servePort
	}
	if serveHost != "" {
		serverCfg.Host = serveHost
	}

	srv := server.New(serverCfg, registry, session.NewService(cfg.DataDir))

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr()).Msg("server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildRegistry registers every configured MCP server without
// connecting any of them.
func buildRegistry(cfg *config.Config) (*mcp.Registry, error) {
	registry := mcp.NewRegistry()
	for _, sc := range cfg.Servers {
		if _, err := registry.Register(sc); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
