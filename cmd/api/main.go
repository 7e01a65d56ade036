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

	"voice-orchestrator/internal/auth"
	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/config"
	"voice-orchestrator/internal/directory"
	"voice-orchestrator/internal/email"
	"voice-orchestrator/internal/httpapi"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/notify"
	"voice-orchestrator/internal/phone"
	"voice-orchestrator/internal/reporting"
	"voice-orchestrator/internal/routing"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/internal/voicemail"
	"voice-orchestrator/internal/worker"
	"voice-orchestrator/migrations"
	"voice-orchestrator/pkg/logger"
	"voice-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

const (
	emailFromName = "Front Desk"
	dedupeTTL     = 24 * time.Hour
	dedupePrefix  = "notify:"
	notifyRate    = 10
	notifyBurst   = 10
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if env := os.Getenv("APP_ENV"); env == "" || config.IsLocal(env) {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, logger.Options{File: cfg.App.LogFile})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	pool := utils.PostgresPoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.DB.ConnMaxIdleTime,
	}
	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), pool)
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := utils.Migrate(rootCtx, db, migrations.FS, ".", log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()

	// Outbound channels
	provider := telephony.NewTwilioProvider(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
	})
	mailer := email.NewSendGridSender(cfg.Notify.SendGridAPIKey, cfg.Notify.EmailFrom, emailFromName)

	jobs := worker.New(worker.Config{
		Workers:        cfg.Notify.Workers,
		QueueSize:      cfg.Notify.QueueSize,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		AttemptTimeout: cfg.Notify.SendTimeout,
		Rate:           notifyRate,
		Burst:          notifyBurst,
		Guard:          worker.NewRedisGuard(rdb, dedupePrefix, dedupeTTL),
		OnOutcome:      m.JobOutcome,
		Logger:         log,
	})
	jobs.Start(rootCtx)

	// Domain services
	dir := directory.NewPostgres(db)
	correlator := phone.NewCorrelator(dir, log)

	composer := notify.NewComposer(correlator, cfg.Location(), cfg.App.PublicBaseURL)
	fanout := notify.NewFanout(notify.Recipients{
		SMSTo:   cfg.Notify.SMSTo,
		SMSFrom: cfg.Notify.SMSFrom,
		EmailTo: cfg.Notify.EmailTo,
	}, composer, jobs, provider, mailer, log)

	callRepo := calls.NewPostgresRepo(db)
	events := callevent.NewService(callevent.NewPostgresRepo(db))
	callSvc := calls.NewService(callRepo, correlator, fanout)

	orchestrator := routing.NewOrchestrator(routing.Config{
		PublicBaseURL:     cfg.App.PublicBaseURL,
		DeskSIPURI:        cfg.Routing.DeskSIPURI,
		SoftphoneIdentity: cfg.Routing.SoftphoneIdentity,
		FallbackNumber:    cfg.Routing.FallbackNumber,
		DialTimeout:       cfg.Routing.DialTimeout,
		ScreenTimeout:     cfg.Routing.ScreenTimeout,
		OfferTimeout:      cfg.Routing.OfferTimeout,
		MaxRecording:      cfg.Routing.MaxRecording,
	}, events, callSvc, dir, provider, correlator, log)

	h := httpapi.Handlers{
		Calls:      callSvc,
		Events:     events,
		Voicemail:  voicemail.NewService(voicemail.NewPostgresRepo(db), callRepo, fanout),
		Routing:    orchestrator,
		Recordings: provider,
		Reports:    reporting.NewService(callRepo),
		Softphone:  auth.NewSoftphoneMinter(cfg.Twilio, cfg.Routing.SoftphoneIdentity),
		Metrics:    m,
		Ready: []httpapi.Check{
			{Name: "postgres", Ping: func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) }},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, h, routeDeps{
		signature: httpapi.RequireSignature(telephony.NewVerifier(cfg.Twilio.AuthToken, cfg.App.PublicBaseURL, log), m),
		authMW:    auth.RequireAccessToken(verifier),
		metrics:   m.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "public_base_url", cfg.App.PublicBaseURL)
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
	// Drain queued notifications after the last webhook has been answered.
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error("notification drain incomplete", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
