// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain/ports/adapter"
	fulfillAdapters "esim-reseller/internal/infra/adapters/fulfillment"
	notifyAdapters "esim-reseller/internal/infra/adapters/notify"
	payAdapters "esim-reseller/internal/infra/adapters/payment"
	pg "esim-reseller/internal/infra/db/postgres"
	"esim-reseller/internal/infra/logging"
	"esim-reseller/internal/infra/metrics"
	red "esim-reseller/internal/infra/redis"
	"esim-reseller/internal/infra/sched"
	"esim-reseller/internal/infra/web"
	"esim-reseller/internal/infra/worker"
	"esim-reseller/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (in-memory gateway and fulfillment)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled, external backends are stubbed")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	bundleRepo := pg.NewBundleRepoCacheDecorator(pg.NewBundleRepo(pool), redisClient, cfg.Redis.TTL)
	orderRepo := pg.NewOrderRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	walletTxnRepo := pg.NewWalletTxnRepo(pool)
	promoRepo := pg.NewPromotionRepo(pool)
	ruleRepo := pg.NewPromotionRuleRepo(pool)
	usageRepo := pg.NewPromotionUsageRepo(pool)
	profileRepo := pg.NewProfileRepo(pool)
	profileBundleRepo := pg.NewProfileBundleRepo(pool)
	eventRepo := pg.NewProcessedEventRepo(pool)
	outboxRepo := pg.NewNotificationOutboxRepo(pool)
	voucherRepo := pg.NewVoucherRepo(pool)

	// ---- Adapters ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev {
		gateway = payAdapters.NewNoopPaymentGateway(cfg.Payment.Environment)
	} else {
		gateway, err = payAdapters.NewStripeGateway(cfg.Payment)
		if err != nil {
			logger.Fatal().Err(err).Msg("payment gateway")
		}
	}

	var carrier adapter.CarrierBillingGateway
	if cfg.Runtime.Dev || cfg.DCB.ChargeURL == "" {
		carrier = payAdapters.NewNoopCarrierBilling()
	} else {
		carrier, err = payAdapters.NewDCBGateway(cfg.DCB)
		if err != nil {
			logger.Fatal().Err(err).Msg("carrier billing gateway")
		}
	}

	var fulfillment adapter.FulfillmentClient
	if cfg.Runtime.Dev || cfg.Fulfillment.BaseURL == "" {
		fulfillment = fulfillAdapters.NewNoopClient()
	} else {
		fulfillment = fulfillAdapters.NewHubClient(cfg.Fulfillment)
	}

	var pushSender adapter.PushSender
	var emailSender adapter.EmailSender
	if cfg.Runtime.Dev {
		noop := notifyAdapters.NewNoopNotifier()
		pushSender, emailSender = noop, noop
	} else {
		pushSender = notifyAdapters.NewFCMPushSender(cfg.Push)
		emailSender = notifyAdapters.NewSMTPEmailSender(cfg.SMTP)
	}

	// ---- Use cases ----
	walletUC := usecase.NewWalletUseCase(walletRepo, walletTxnRepo, voucherRepo, tm, cfg.Wallet, logger)
	notifierUC := usecase.NewNotifierUseCase(outboxRepo, userRepo, logger)
	promoUC := usecase.NewPromotionUseCase(promoRepo, ruleRepo, usageRepo, userRepo, bundleRepo, tm, cfg.Referral, logger)
	settlementUC := usecase.NewSettlementUseCase(usageRepo, promoRepo, ruleRepo, userRepo, walletUC, tm, cfg.Referral, logger)
	provisioningUC := usecase.NewProvisioningUseCase(fulfillment, orderRepo, profileRepo, profileBundleRepo, walletUC, gateway, notifierUC, tm, logger)
	orderUC := usecase.NewOrderUseCase(orderRepo, bundleRepo, profileRepo, promoUC, settlementUC, walletUC, provisioningUC, gateway, carrier, fulfillment, tm, cfg.Payment, logger)
	webhookUC := usecase.NewWebhookUseCase(eventRepo, orderRepo, profileRepo, orderUC, settlementUC, walletUC, provisioningUC, notifierUC, tm, cfg.Payment, logger)
	profileUC := usecase.NewProfileUseCase(profileRepo, profileBundleRepo)

	// ---- Background workers ----
	pool2 := worker.NewPool(cfg.Outbox.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()
	outboxWorker := sched.NewOutboxWorker(cfg.Outbox, outboxRepo, tm, pushSender, emailSender, pool2, logger)
	go func() { _ = outboxWorker.Run(ctx) }()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret)
	srv := web.NewServer(orderUC, promoUC, walletUC, webhookUC, profileUC, gateway, auth, rateLimiter, locker, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
