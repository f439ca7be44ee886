package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coincall/internal/accounts"
	"coincall/internal/audit"
	"coincall/internal/auth"
	"coincall/internal/billing"
	"coincall/internal/calls"
	"coincall/internal/config"
	"coincall/internal/httpapi"
	"coincall/internal/push"
	"coincall/internal/reporting"
	"coincall/internal/scheduler"
	"coincall/internal/session"
	"coincall/pkg/logger"
	"coincall/pkg/rabbitmq"
	"coincall/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	issuer, err := session.NewIssuer(cfg.Media)
	if err != nil {
		log.Error("session issuer init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var publisher rabbitmq.Publisher = rabbitmq.Fallback{Log: log}
	if cfg.AMQP.URL != "" {
		p, err := rabbitmq.NewProducer(cfg.AMQP.URL, log)
		if err != nil {
			log.Error("rabbitmq init failed", "err", err)
			os.Exit(1)
		}
		publisher = p
	} else {
		log.Warn("AMQP_URL not set; push signals are dropped")
	}
	defer publisher.Close()

	store := accounts.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	ledger := billing.NewPostgresLedger(db)
	billingSvc := billing.NewService(ledger, store, billing.Options{
		Locker:  billing.NewRedisLocker(rdb, cfg.Billing.SettleLockTTL),
		Auditor: auditSvc,
		Tariff: billing.Tariff{
			IncrementSeconds: cfg.Billing.IncrementSeconds,
			EarnSharePercent: cfg.Billing.EarnSharePercent,
		},
	})
	callSvc := calls.NewService(calls.Deps{
		Repo:        calls.NewPostgresRepo(db),
		Profiles:    store,
		Settler:     billingSvc,
		Notifier:    push.NewNotifier(publisher, cfg.AMQP.Exchange),
		Sessions:    issuer,
		Engagement:  calls.NewRedisEngagement(rdb, cfg.Billing.ReceiverBusyTTL),
		Auditor:     auditSvc,
		RingTimeout: cfg.Signaling.RingTimeout,
	})

	sched := scheduler.New(scheduler.NewJobs(callSvc, billingSvc, log), cfg.Signaling.SweepSchedule, log)
	if err := sched.Start(); err != nil {
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Auth:      authManager,
		Calls:     callSvc,
		Billing:   billingSvc,
		Accounts:  store,
		Audit:     auditSvc,
		Reports:   reporting.NewService(ledger),
		DevTokens: cfg.App.Env == "local" || cfg.App.Env == "dev",
	}
	webhook := session.WebhookHandler{Calls: callSvc, Issuer: issuer, Secret: cfg.Media.WebhookSecret}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.ClientIP())

	registerRoutes(r, h, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("sweep still running at shutdown")
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
