package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	stan "github.com/nats-io/stan.go"

	"github.com/example/insurance-tariff-service/internal/adapter/broker"
	"github.com/example/insurance-tariff-service/internal/adapter/httpapi"
	"github.com/example/insurance-tariff-service/internal/adapter/repo"
	"github.com/example/insurance-tariff-service/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Log)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URI)
	if err != nil {
		log.Fatalf("parse database uri: %v", err)
	}
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	logger.Info("connected to database")

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	clientID := cfg.Audit.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("tariff-svc-%d", time.Now().UnixNano())
	}
	sc, err := stan.Connect(cfg.Audit.ClusterID, clientID, stan.NatsURL(cfg.Audit.URL))
	if err != nil {
		log.Fatalf("stan connect: %v", err)
	}
	defer sc.Close()
	logger.Info("connected to audit stream", "subject", cfg.Audit.Subject)

	sink := broker.NewSink(sc, cfg.Audit.Subject, cfg.Audit.BatchMaxEntries, cfg.Audit.BatchMaxBytes, logger)
	sessions := repo.NewPostgresSessions(pool, sink, cfg.Database.User, logger)
	api := httpapi.NewServer(sessions, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
