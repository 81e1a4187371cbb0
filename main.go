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
	"go.uber.org/zap"

	"lg/keto-go-api/internal/lookup"
	"lg/keto-go-api/internal/report"
	"lg/keto-go-api/internal/store"
	"lg/keto-go-api/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "keto-go-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []tracker.Option{}
	if sink, err := newReportSink(ctx, cfg, logger); err != nil {
		return err
	} else if sink != nil {
		opts = append(opts, tracker.WithReportSink(sink))
	}
	svc := tracker.New(st, newLookup(cfg), logger, opts...)

	h := &Handler{svc: svc, store: st, logger: logger, tokenMaxAge: cfg.TokenMaxAge, now: time.Now}
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[run] listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("[run] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config, logger *zap.Logger) (store.Store, error) {
	st, err := store.Open(ctx, cfg.DBURL, cfg.SQLitePath, logger)
	if err != nil {
		return nil, err
	}
	if cfg.DBURL != "" {
		logger.Info("[openStore] postgres pool ready")
	} else {
		logger.Info("[openStore] sqlite ready", zap.String("path", cfg.SQLitePath))
	}
	return st, nil
}

func newLookup(cfg config) lookup.Lookup {
	var l lookup.Lookup
	switch cfg.NutritionProvider {
	case "openai":
		l = &lookup.OpenAIEstimator{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}
	default:
		l = &lookup.EdamamClient{AppID: cfg.EdamamAppID, AppKey: cfg.EdamamAppKey, BaseURL: cfg.EdamamBaseURL}
	}
	return lookup.Dedupe(l)
}

// newReportSink returns nil when SENDGRID_API_KEY is unset, which disables
// POST /api/reports.
func newReportSink(ctx context.Context, cfg config, logger *zap.Logger) (report.Sink, error) {
	if cfg.SendGridAPIKey == "" {
		logger.Info("[newReportSink] SENDGRID_API_KEY not set, reports disabled")
		return nil, nil
	}
	sink := &report.SendGridSink{
		APIKey:    cfg.SendGridAPIKey,
		FromName:  cfg.ReportFromName,
		FromEmail: cfg.ReportFromEmail,
		Logger:    logger,
	}
	if cfg.ReportS3Bucket != "" {
		arch, err := report.NewS3Archiver(ctx, cfg.AWSRegion, cfg.ReportS3Bucket)
		if err != nil {
			return nil, err
		}
		sink.Archiver = arch
	}
	return sink, nil
}
