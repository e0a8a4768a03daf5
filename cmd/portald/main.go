package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/itiportal/portal-session/config"
	"github.com/itiportal/portal-session/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := bootstrap.InitLogger(cfg.Observability.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	logStartupInfo(ctx, logger, &cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sess, err := bootstrap.BuildSession(bootstrap.SessionConfig{
		Config:     &cfg,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close session resources failed", "error", cerr)
		}
	}()

	gw, err := bootstrap.StartGateway(bootstrap.GatewayConfig{
		Config:   &cfg,
		Session:  sess.Authority,
		Gatherer: reg,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gw.Serve)
	g.Go(func() error {
		select {
		case <-sess.Authority.Start(gctx):
			st := sess.Authority.Snapshot()
			logger.InfoContext(gctx, "session ready", "phase", st.Phase, "role", st.Role())
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return gw.Shutdown(context.WithoutCancel(gctx))
	})

	return g.Wait()
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting portal session gateway",
		"api_base_url", cfg.API.BaseURL,
		"credential_store", cfg.Store.Kind,
		"http_addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev)
}
