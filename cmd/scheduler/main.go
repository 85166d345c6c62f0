package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/database"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/cron"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/logger"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
	"github.com/qs3c/madrasah_billing_server/internal/service"
)

var (
	configPath = flag.String("config", "config.yaml", "config file path")
	once       = flag.Bool("once", false, "Run a single expiry sweep and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.Log.Mode)
	defer log.Sync()

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}

	subscriptionService := service.NewSubscriptionService(repository.NewOrganizationRepository(db), log)

	cronService, err := cron.NewService(subscriptionService, cfg.Scheduler.ExpireSpec, log)
	if err != nil {
		log.Fatal("failed to init scheduler", zap.Error(err))
	}

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := cronService.RunNow(ctx); err != nil {
			log.Fatal("expiry sweep failed", zap.Error(err))
		}
		return
	}

	cronService.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down scheduler")
	cronService.Stop(5 * time.Second)
}
