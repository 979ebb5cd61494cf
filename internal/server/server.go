// Package server builds the relay's HTTP server from a platform and runs it
// until its context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/txn2/pipeline-relay/internal/webui"
	"github.com/txn2/pipeline-relay/pkg/api"
	"github.com/txn2/pipeline-relay/pkg/platform"

	_ "github.com/txn2/pipeline-relay/internal/apidocs" // register swagger docs
)

// Build information, set at build time.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// NewHandler builds the API handler over p's components.
func NewHandler(p *platform.Platform) *api.Handler {
	cfg := p.Config()
	return api.New(api.Deps{
		Config: api.Config{
			Name:         cfg.Server.Name,
			Version:      Version,
			Commit:       Commit,
			BuildDate:    Date,
			PasswordHash: cfg.Auth.Login.PasswordHash,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			Keepalive:    cfg.Broadcast.Keepalive,
		},
		Gate:     p.Gate(),
		Limiter:  p.LoginLimiter(),
		Sessions: p.Sessions(),
		Ingest:   p.Ingest(),
		Hub:      p.Hub(),
		Agents:   p.Agents(),
		Shares:   p.Shares(),
		Guests:   p.Guests(),
		Codes:    p.Codes(),
		Health:   p.Health(),
		Metrics:  p.Metrics(),
		Audit:    p.Audit(),
		UI:       webui.Handler(),
		Login:    webui.LoginHandler(),
	})
}

// New creates the http.Server. No write timeout is set; event streams stay
// open for as long as the viewer does.
func New(cfg platform.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// Run listens on the configured address and serves until ctx ends.
func Run(ctx context.Context, p *platform.Platform) error {
	ln, err := net.Listen("tcp", p.Config().Server.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", p.Config().Server.Address, err)
	}
	return Serve(ctx, p, ln)
}

// Serve starts p, serves on ln until ctx ends, then shuts down: open event
// streams are closed first so in-flight requests can drain, and p is closed
// last.
func Serve(ctx context.Context, p *platform.Platform, ln net.Listener) error {
	cfg := p.Config().Server
	srv := New(cfg, NewHandler(p))
	srv.RegisterOnShutdown(p.Hub().Close)

	if err := p.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("starting platform: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			errCh <- srv.ServeTLS(ln, cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()
	slog.Info("serving", "address", ln.Addr().String(), "tls", cfg.TLS.Enabled, "version", Version)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(fmt.Errorf("serving: %w", err), p.Close())
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	p.Health().SetDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}
	if err := p.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
