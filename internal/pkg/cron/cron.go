package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/internal/service"
)

// DefaultExpireSpec 每 15 分钟执行一次（秒级表达式）
const DefaultExpireSpec = "0 */15 * * * *"

const sweepTimeout = 5 * time.Minute

type Service struct {
	subscriptionService *service.SubscriptionService
	spec                string
	scheduler           *cron.Cron
	log                 *zap.Logger
}

func NewService(subscriptionService *service.SubscriptionService, spec string, log *zap.Logger) (*Service, error) {
	if spec == "" {
		spec = DefaultExpireSpec
	}

	s := &Service{
		subscriptionService: subscriptionService,
		spec:                spec,
		scheduler:           cron.New(cron.WithSeconds()),
		log:                 log,
	}

	if _, err := s.scheduler.AddFunc(spec, s.expireSubscriptions); err != nil {
		return nil, fmt.Errorf("invalid expire spec %q: %w", spec, err)
	}
	return s, nil
}

// Start 启动定时任务
func (s *Service) Start() {
	s.scheduler.Start()
	s.log.Info("cron service started", zap.String("expire_spec", s.spec))
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Service) Stop(timeout time.Duration) {
	ctx := s.scheduler.Stop()
	select {
	case <-ctx.Done():
		s.log.Info("cron service stopped")
	case <-time.After(timeout):
		s.log.Warn("cron service forced to stop after timeout", zap.Duration("timeout", timeout))
	}
}

// Next 下一次执行时间，未启动时为零值
func (s *Service) Next() time.Time {
	entries := s.scheduler.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Service) expireSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.log.Error("subscription expiry sweep failed", zap.Error(err))
	}
}

// RunNow 立即执行一次过期标记（用于 -once 或手动触发）
func (s *Service) RunNow(ctx context.Context) (int64, error) {
	n, err := s.subscriptionService.ExpireSubscriptions(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("subscription expiry sweep finished", zap.Int64("expired", n))
	return n, nil
}
