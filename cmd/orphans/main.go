package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/database"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/logger"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/queue"
)

var (
	configPath = flag.String("config", "config.yaml", "config file path")
	dryRun     = flag.Bool("dry-run", false, "Only print queued orders, don't remove them")
	limit      = flag.Int64("limit", 100, "Maximum number of orders to print")
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

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	q := queue.NewQueue(rdb, cfg.Billing.OrphanQueue)
	ctx := context.Background()

	total, err := q.Length(ctx)
	if err != nil {
		log.Fatal("failed to read orphan queue", zap.Error(err))
	}
	log.Info("orphaned orders queued", zap.String("queue", cfg.Billing.OrphanQueue), zap.Int64("count", total), zap.Bool("dry_run", *dryRun))

	enc := json.NewEncoder(os.Stdout)
	printed, err := drain(ctx, q, enc, *limit, *dryRun)
	if err != nil {
		log.Fatal("failed to drain orphan queue", zap.Int("printed", printed), zap.Error(err))
	}
	log.Info("orphan report finished", zap.Int("printed", printed))
}

type encoder interface {
	Encode(v interface{}) error
}

// drain 按入队顺序输出 JSON Lines，dry-run 时不出队
func drain(ctx context.Context, q *queue.Queue, enc encoder, limit int64, dryRun bool) (int, error) {
	if dryRun {
		msgs, err := q.Peek(ctx, limit)
		if err != nil {
			return 0, err
		}
		for i, msg := range msgs {
			if err := enc.Encode(msg); err != nil {
				return i, err
			}
		}
		return len(msgs), nil
	}

	printed := 0
	for int64(printed) < limit {
		msg, err := q.Pop(ctx, time.Second)
		if err != nil {
			return printed, err
		}
		if msg == nil {
			break
		}
		if err := enc.Encode(msg); err != nil {
			// 已出队但未输出，放回队列
			if pushErr := q.Requeue(ctx, msg); pushErr != nil {
				return printed, fmt.Errorf("%w (requeue failed: %v)", err, pushErr)
			}
			return printed, err
		}
		printed++
	}
	return printed, nil
}
