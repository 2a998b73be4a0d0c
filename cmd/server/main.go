package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/niksbanna/ehr-portal-sub000/internal/auth/token"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/config"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/httpserver"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/logger"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/metrics"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/tracing"
	"github.com/niksbanna/ehr-portal-sub000/internal/revocation"
	httptransport "github.com/niksbanna/ehr-portal-sub000/internal/transport/http"
	"github.com/niksbanna/ehr-portal-sub000/internal/upstream"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/query"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/recorder"
)

const (
	serviceName     = "ehr-gateway"
	shutdownTimeout = 15 * time.Second
)

// main wires high-level dependencies and supervises the server, the
// revocation sweeper and the audit recorder until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, errs := config.Load(os.Getenv("CONFIG_FILE"))
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.Tracing.Enabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	conns, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conns.close()

	revs, err := buildRevocationCache(cfg, conns)
	if err != nil {
		return err
	}
	store := buildAuditStore(cfg, conns)
	appender := buildAppender(ctx, cfg, store, conns, log)

	policy, _ := recorder.ParseOverflowPolicy(cfg.Audit.OverflowPolicy)
	rec, err := recorder.New(appender,
		recorder.WithLogger(log),
		recorder.WithMetrics(recorder.NewMetrics(prometheus.DefaultRegisterer)),
		recorder.WithTracer(tp.Tracer(serviceName+"/audit")),
		recorder.WithAPIPrefix(cfg.APIPrefix),
		recorder.WithQueueSize(cfg.Audit.QueueSize),
		recorder.WithWorkers(cfg.Audit.Workers),
		recorder.WithOverflowPolicy(policy),
		recorder.WithWriteTimeout(cfg.Audit.WriteTimeout),
		recorder.WithMaxBodyBytes(cfg.Audit.MaxBodyBytes),
		recorder.WithCircuitBreaker(5, 30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("init audit recorder: %w", err)
	}

	auditQuery, err := query.New(store)
	if err != nil {
		return fmt.Errorf("init audit query: %w", err)
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("parse upstream URL: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:          log,
		APIPrefix:       cfg.APIPrefix,
		PrivilegedRoles: cfg.PrivilegedRoles,
		CORSOrigins:     cfg.CORSOrigins,
		Validator:       token.NewJWTServiceAdapter(token.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer)),
		Revocations:     revs,
		Recorder:        rec,
		AuditLogs:       auditQuery,
		Upstream:        upstream.New(target, log),
		HTTPMetrics:     metrics.NewHTTP(prometheus.DefaultRegisterer),
	})
	handler := otelhttp.NewHandler(router, serviceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	srv := httpserver.New(cfg.Addr, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ehr gateway", "addr", cfg.Addr, "upstream", cfg.UpstreamURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return revocation.RunSweeper(gctx, revs, cfg.Revocation.SweepInterval, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
		}
		if err := rec.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
