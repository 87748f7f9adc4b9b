package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

const (
	MCPPath    = "/mcp"
	HealthPath = "/health"
)

// Options configures the streamable HTTP handler.
type Options struct {
	Stateless      bool
	SessionTimeout time.Duration
}

// DefaultOptions keeps sessions for thirty idle minutes.
func DefaultOptions() Options {
	return Options{SessionTimeout: 30 * time.Minute}
}

// NewHandler routes MCP traffic to server and answers health checks.
func NewHandler(server *sdkmcp.Server, opts Options) http.Handler {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      opts.Stateless,
			SessionTimeout: opts.SessionTimeout,
		},
	)

	router := http.NewServeMux()
	router.Handle(MCPPath, mcpHandler)
	router.Handle(MCPPath+"/", mcpHandler)
	router.HandleFunc(HealthPath, handleHealth)
	return router
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe serves handler on addr until ctx is canceled, then shuts
// down with a five second grace period.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
