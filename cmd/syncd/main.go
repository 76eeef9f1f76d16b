package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qbsync/internal/client/quickbooks"
	"qbsync/internal/config"
	cronrunner "qbsync/internal/cron"
	"qbsync/internal/crypto"
	"qbsync/internal/db"
	"qbsync/internal/handler"
	"qbsync/internal/logger"
	"qbsync/internal/models"
	"qbsync/internal/notify"
	gormrepository "qbsync/internal/repository/gorm"
	"qbsync/internal/retry"
	"qbsync/internal/service"
)

func main() {
	cfgPath := os.Getenv("QBS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("QBS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	for _, table := range models.EntityTables() {
		if err := store.EnsureEntityTable(context.Background(), table); err != nil {
			logger.Fatal("entity table init failed", zap.String("table", table), zap.Error(err))
		}
	}

	cipher, err := crypto.NewTokenCipher(os.Getenv("QBS_ENCRYPTION_KEY"))
	if err != nil {
		logger.Fatal("encryption key invalid", zap.Error(err))
	}

	qbHTTP := &http.Client{Timeout: cfg.QB.Timeout}
	qbClient := quickbooks.NewClient(qbHTTP, cfg.QB.BaseURL, cfg.QB.OAuthBaseURL, cfg.QB.ClientID, cfg.QB.ClientSecret)
	if cfg.QB.PageSize > 0 {
		qbClient.PageSize = cfg.QB.PageSize
	}
	qbClient.PagePause = cfg.QB.PagePause

	onboardingStart, err := time.Parse(time.RFC3339, cfg.Sync.OnboardingStart)
	if err != nil {
		logger.Fatal("invalid sync.onboarding_start", zap.Error(err))
	}

	locks := service.NewTenantLocks()
	pipeline := &service.UpsertPipeline{Store: store, Logger: logger}

	reporter := initReporter(cfg.Notify, logger)

	onboardingEntities := append([]string{}, cfg.Sync.OnboardingEntities...)
	onboardingEntities = append(onboardingEntities, cfg.Sync.ReferenceEntities...)

	refreshSvc := &service.TokenRefreshService{
		Store:       store,
		QB:          qbClient,
		Cipher:      cipher,
		Locks:       locks,
		Logger:      logger,
		CallTimeout: cfg.Sync.CallTimeout,
	}
	syncSvc := &service.SyncService{
		Store:              store,
		QB:                 qbClient,
		Cipher:             cipher,
		Pipeline:           pipeline,
		Locks:              locks,
		Reporter:           reporter,
		Logger:             logger,
		DailyEntities:      cfg.Sync.DailyEntities,
		OnboardingEntities: onboardingEntities,
		OnboardingStart:    onboardingStart,
		CallTimeout:        cfg.Sync.CallTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := service.NewOnboardingQueue(store, syncSvc, logger, cfg.Onboarding.Workers, cfg.Onboarding.QueueSize)
	queue.Start(ctx)
	defer queue.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	connectHandler := &handler.ConnectHandler{Queue: queue, Logger: logger}
	connectHandler.Register(engine)

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	cronRunner := cronrunner.New(logger, ctx, store, policy, cfg.Scheduler.CatchupWindow)

	if cfg.Cron.Enabled {
		err = cronRunner.AddJob("token_refresh", cfg.Cron.TokenRefresh, func(ctx context.Context) (any, error) {
			summary, err := refreshSvc.RefreshAll(ctx)
			if err != nil {
				return nil, err
			}
			succeeded, failed, skipped := summary.Counts()
			return map[string]int{"succeeded": succeeded, "failed": failed, "skipped": skipped}, nil
		})
		if err != nil {
			logger.Fatal("cron register token refresh failed", zap.Error(err))
		}

		err = cronRunner.AddJob("daily_sync", cfg.Cron.DailySync, func(ctx context.Context) (any, error) {
			summary, err := syncSvc.RunDailySync(ctx)
			if err != nil {
				return nil, err
			}
			succeeded, failed, skipped := summary.Counts()
			return map[string]int{"succeeded": succeeded, "failed": failed, "skipped": skipped}, nil
		})
		if err != nil {
			logger.Fatal("cron register daily sync failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func initReporter(cfg config.NotifyConfig, logger *zap.Logger) service.Reporter {
	base := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if base == "" || apiKey == "" {
		return &service.LogReporter{Logger: logger}
	}

	client := &notify.Client{
		BaseURL: base,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Login(ctx); err != nil {
		logger.Warn("notify login failed (run reports will be logged only)", zap.Error(err))
		return &service.LogReporter{Logger: logger}
	}
	logger.Info("notify login ok")
	return &notify.Reporter{Client: client, Logger: logger, Timeout: cfg.Timeout}
}
