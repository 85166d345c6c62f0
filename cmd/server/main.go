package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/api"
	"github.com/qs3c/madrasah_billing_server/internal/api/handler"
	"github.com/qs3c/madrasah_billing_server/internal/database"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/catalog"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/lock"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/logger"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/oss"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/payment"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/queue"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/ws"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
	"github.com/qs3c/madrasah_billing_server/internal/service"
)

var configPath = flag.String("config", "config.yaml", "config file path")

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.Log.Mode)
	defer log.Sync()

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	log.Info("database connected")

	// 初始化 Redis（可选，不可用时退化为进程内锁且不推送事件）
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, running without distributed lock, orphan queue and event push", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
		log.Info("redis connected")
	}

	plans, err := catalog.New(cfg.Billing)
	if err != nil {
		log.Fatal("invalid plan catalog", zap.Error(err))
	}

	providers, err := payment.NewRegistryFromConfig(cfg.Providers, nil)
	if err != nil {
		log.Fatal("failed to init payment providers", zap.Error(err))
	}
	log.Info("payment providers ready", zap.Strings("providers", providers.Names()))

	// 可选依赖按配置装配，未配置时保持 nil 接口
	var (
		locker    lock.Locker
		orphans   service.OrphanRecorder
		publisher service.EventPublisher
		archiver  service.CallbackArchiver
	)
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, cfg.Billing.LockExpiry(), 20)
		orphans = queue.NewQueue(rdb, cfg.Billing.OrphanQueue)
		publisher = pubsub.NewPublisher(rdb)
	}
	if cfg.Archive.Endpoint != "" && cfg.Archive.AccessKeyID != "" {
		archive, err := oss.NewArchive(&cfg.Archive)
		if err != nil {
			log.Warn("failed to init callback archive", zap.Error(err))
		} else {
			archiver = archive
			log.Info("callback archive enabled", zap.String("bucket", cfg.Archive.BucketName))
		}
	}

	// 初始化 Repository
	orgRepo := repository.NewOrganizationRepository(db)
	intentRepo := repository.NewPaymentIntentRepository(db)
	eventRepo := repository.NewCallbackEventRepository(db)

	// 初始化 Service
	ledger := service.NewLedger(intentRepo)
	checkoutService := service.NewCheckoutService(plans, orgRepo, ledger, providers, orphans, cfg, log)
	reconcileService := service.NewReconcileService(db, providers, ledger, orgRepo, eventRepo, locker, archiver, publisher, cfg, log)
	subscriptionService := service.NewSubscriptionService(orgRepo, log)

	// WebSocket Hub
	hub := ws.NewHub(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rdb != nil {
		go forwardEvents(ctx, rdb, hub, log)
	}

	// 初始化 Handler 与 Router
	router := api.NewRouter(
		handler.NewBillingHandler(plans, checkoutService, ledger, subscriptionService, log),
		handler.NewCallbackHandler(reconcileService, log),
		handler.NewWebSocketHandler(hub, cfg.CORS.AllowedOrigins, log),
		cfg,
		log,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

// forwardEvents 将 Redis 上的计费事件推送给对应机构的 WebSocket 连接，断线后重连
func forwardEvents(ctx context.Context, rdb *redis.Client, hub *ws.Hub, log *zap.Logger) {
	subscriber := pubsub.NewSubscriber(rdb)
	for {
		err := subscriber.Subscribe(ctx, func(event *pubsub.IntentEvent) {
			if !hub.IsOnline(event.OrganizationID) {
				return
			}
			if err := hub.SendToOrganization(event.OrganizationID, &ws.Message{Type: event.Type, Data: event}); err != nil {
				log.Warn("failed to push billing event", zap.String("intent_id", event.IntentID), zap.Error(err))
			}
		})
		if ctx.Err() != nil {
			return
		}
		log.Warn("billing event subscription interrupted, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}
