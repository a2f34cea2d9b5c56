package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/httpserver"
	"registrar/pkg/platform/httputil"
	auth "registrar/pkg/platform/middleware/auth"
	request "registrar/pkg/platform/middleware/request"
	"registrar/pkg/platform/middleware/requesttime"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			if seedFile != "" {
				cfg.Storage.SeedFile = seedFile
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML file of subject records to load before serving")
	return cmd
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(a.log))
	r.Use(request.Logger(a.log))
	r.Use(a.metrics.Middleware)
	r.Use(requesttime.Middleware)
	if a.cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(a.cfg.RequestTimeout))
	}

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(a.jwt), a.log))
		a.handler.Register(r)
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.health(r.Context()); err != nil {
		a.log.WarnContext(r.Context(), "health check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serve runs the HTTP server until ctx is cancelled, then shuts down within
// the configured timeout.
func (a *app) serve(ctx context.Context) error {
	srv := httpserver.New(a.cfg.Addr, a.router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("starting registrar",
			slog.String("addr", a.cfg.Addr),
			slog.String("env", a.cfg.Environment),
			slog.String("storage", a.cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
