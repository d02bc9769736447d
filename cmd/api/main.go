package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wallet-sync/internal/auth"
	"wallet-sync/internal/config"
	"wallet-sync/internal/db"
	"wallet-sync/internal/email"
	apihttp "wallet-sync/internal/http"
	"wallet-sync/internal/ledger"
	"wallet-sync/internal/notify"
	"wallet-sync/internal/realtime"
	"wallet-sync/internal/repository"
	"wallet-sync/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		cancel()
		defer redisClient.Close()
	}

	profileRepo := repository.NewPgProfileRepository(pool)
	adminRepo := repository.NewPgAdminRepository(pool)
	credentialRepo := repository.NewPgCredentialRepository(pool)
	balanceRepo := repository.NewPgBalanceRepository(pool)
	withdrawalRepo := repository.NewPgWithdrawalRepository(pool)

	// Sesion local: JWT persistido en redis si esta disponible.
	sessionStore := auth.NewMemorySessionStore()
	if redisClient != nil {
		sessionStore = auth.NewRedisSessionStore(redisClient)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}
	tokens := auth.NewTokenService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	provider := auth.NewProvider(logger, tokens, sessionStore, credentialRepo)
	if redisClient != nil {
		provider.WithAttemptLimiter(auth.NewRedisAttemptLimiter(
			redisClient,
			time.Duration(cfg.SignInWindowMinutes)*time.Minute,
			cfg.SignInMaxAttempts,
		))
	}

	profiles := service.NewProfileStore(logger, profileRepo)
	admins := service.NewAdminStatusResolver(logger, adminRepo)
	bootstrapper := service.NewSessionBootstrapper(logger, provider, profiles, admins)

	streams := realtime.DefaultStreams
	var feed realtime.ChangeFeed
	switch cfg.RealtimeBackend {
	case config.RealtimeBackendRedis:
		feed = realtime.NewRedisFeed(redisClient, logger)
	default:
		watched := make([]realtime.StreamSpec, 0, len(streams)+len(realtime.AdminStreams))
		watched = append(watched, streams...)
		watched = append(watched, realtime.AdminStreams...)
		pgFeed := realtime.NewPgNotifyFeed(pool, logger, watched)
		go func() {
			if err := pgFeed.Run(ctx); err != nil {
				logger.Error("notify listener stopped", zap.Error(err))
			}
		}()
		feed = pgFeed
	}
	manager := realtime.NewSubscriptionManager(logger, feed, cfg.EventBuffer)
	adminManager := realtime.NewSubscriptionManager(logger.With(zap.String("scope", "admin")), feed, cfg.EventBuffer)

	var haptics notify.Haptics
	if cfg.HapticsEnabled {
		haptics = notify.NewLogHaptics(logger)
	}
	dispatcher := notify.NewDispatcher(logger, haptics, cfg.AlertBuffer)
	realtimeSync := service.NewRealtimeSync(logger, bootstrapper, manager, dispatcher, streams)

	hub := apihttp.NewAlertHub(logger)
	sinks := []notify.Sink{notify.LogSink(logger), hub}
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			From:        cfg.SMTPFrom,
			FromName:    cfg.SMTPFromName,
			ImplicitTLS: cfg.SMTPUseTLS,
		})
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			sinks = append(sinks, notify.EmailSink(sender, func() string {
				if u := bootstrapper.State().User; u != nil {
					return u.Email
				}
				return ""
			}))
		}
	}
	fanout := notify.NewFanout(logger, sinks...)

	if err := bootstrapper.Start(ctx); err != nil {
		logger.Fatal("session bootstrap", zap.Error(err))
	}
	defer bootstrapper.Stop()

	directory := service.NewAdminDirectory(logger, profileRepo, balanceRepo, withdrawalRepo)
	adminWatch := service.NewAdminWatch(logger, bootstrapper, adminManager, directory, hub)

	go realtimeSync.Run(ctx)
	go adminWatch.Run(ctx)
	go fanout.Run(ctx, dispatcher.Alerts())

	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, time.Duration(cfg.LedgerTimeoutSecs)*time.Second, logger)
	if cfg.LedgerBaseURL == "" {
		logger.Warn("ledger base url not configured")
	}

	router := apihttp.NewRouter(
		logger,
		provider,
		bootstrapper,
		apihttp.NewAuthHandler(logger, provider, bootstrapper),
		hub,
		apihttp.NewAdminHandler(logger, directory, ledgerClient),
		apihttp.NewWalletHandler(logger, service.NewWalletView(logger, balanceRepo)),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("realtime_backend", cfg.RealtimeBackend),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
