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

	"github.com/spf13/pflag"

	api "github.com/mind-engage/safetytest/internal/api/http"
	"github.com/mind-engage/safetytest/internal/app"
	"github.com/mind-engage/safetytest/internal/config"
	"github.com/mind-engage/safetytest/internal/logging"
	"github.com/mind-engage/safetytest/internal/rbac"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file")
	addr := pflag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	pflag.Parse()

	if err := run(*envFile, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "safetyd:", err)
		os.Exit(1)
	}
}

func run(envFile, addr string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	log := logging.New(cfg.LogLevel, string(cfg.Mode))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()

	authSvc := app.NewAuth(cfg)
	if authSvc == nil {
		log.Warn("AUTH_HMAC_SECRET or login accounts unset, instructor endpoints disabled")
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.RouterDeps{
			Service:     a.Service,
			Auth:        authSvc,
			Checker:     rbac.NewChecker(rbac.RolePermissions),
			Blobs:       a.Blobs,
			Gatherer:    a.Registry,
			Ready:       a.DB.PingContext,
			CORSOrigins: cfg.CORSOrigins,
			Log:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "site", cfg.SiteID)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-shutdown:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
