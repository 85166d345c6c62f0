package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/internal/model"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
)

type SubscriptionService struct {
	orgRepo *repository.OrganizationRepository
	log     *zap.Logger
	now     func() time.Time
}

func NewSubscriptionService(orgRepo *repository.OrganizationRepository, log *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		orgRepo: orgRepo,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetSubscription 机构当前订阅
func (s *SubscriptionService) GetSubscription(ctx context.Context, orgID int64) (*model.Organization, error) {
	org, err := s.orgRepo.WithContext(ctx).GetByID(orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return org, nil
}

// ExpireSubscriptions 将已过到期时间的 active 订阅标记为 expired
func (s *SubscriptionService) ExpireSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.orgRepo.WithContext(ctx).ExpireSubscriptions(s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", n))
	}
	return n, nil
}
