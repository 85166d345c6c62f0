package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/catalog"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/payment"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/queue"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
)

var (
	ErrUnknownPlan          = errors.New("套餐不存在")
	ErrOrganizationNotFound = errors.New("机构不存在")
	ErrCheckoutPersist      = errors.New("支付意图保存失败")

	ErrUnknownProvider     = payment.ErrUnknownProvider
	ErrProviderUnavailable = payment.ErrProviderUnavailable
)

// OrphanRecorder 记录渠道已下单但本地未落库的订单
type OrphanRecorder interface {
	Push(ctx context.Context, msg *queue.OrphanOrderMessage) error
}

// CheckoutResult 返回给客户端的下单结果
type CheckoutResult struct {
	IntentID        string
	Provider        string
	ProviderOrderID string
	Amount          int64
	Currency        string
	LaunchData      map[string]string
}

type CheckoutService struct {
	catalog   *catalog.Catalog
	orgRepo   *repository.OrganizationRepository
	ledger    *Ledger
	providers *payment.Registry
	orphans   OrphanRecorder
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewCheckoutService(
	catalog *catalog.Catalog,
	orgRepo *repository.OrganizationRepository,
	ledger *Ledger,
	providers *payment.Registry,
	orphans OrphanRecorder,
	cfg *config.Config,
	log *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		catalog:   catalog,
		orgRepo:   orgRepo,
		ledger:    ledger,
		providers: providers,
		orphans:   orphans,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// InitiateCheckout 先向渠道下单，成功后才写入 pending 意图
func (s *CheckoutService) InitiateCheckout(ctx context.Context, orgID int64, planID, providerName string) (*CheckoutResult, error) {
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	if _, err := s.orgRepo.WithContext(ctx).GetByID(orgID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}

	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	reference := s.merchantReference(orgID)

	orderCtx, cancel := context.WithTimeout(ctx, s.cfg.Billing.CheckoutTimeout())
	order, err := provider.CreateOrder(orderCtx, payment.OrderRequest{
		Amount:            plan.PriceMinor,
		Currency:          plan.Currency,
		MerchantReference: reference,
		Metadata: map[string]string{
			"organization_id": strconv.FormatInt(orgID, 10),
			"plan":            plan.ID,
		},
	})
	cancel()
	if err != nil {
		s.log.Warn("provider order creation failed",
			zap.String("provider", providerName),
			zap.Int64("organization_id", orgID),
			zap.String("merchant_reference", reference),
			zap.Error(err),
		)
		if errors.Is(err, payment.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", payment.ErrProviderUnavailable, err)
	}

	intent, err := s.ledger.Create(ctx, NewIntent{
		OrganizationID:    orgID,
		Plan:              plan.ID,
		Provider:          provider.Name(),
		ProviderOrderID:   order.ProviderOrderID,
		MerchantReference: reference,
		Amount:            plan.PriceMinor,
		Currency:          plan.Currency,
	})
	if err != nil {
		s.log.Error("payment intent persist failed, provider order orphaned",
			zap.String("provider", provider.Name()),
			zap.String("provider_order_id", order.ProviderOrderID),
			zap.String("merchant_reference", reference),
			zap.Int64("organization_id", orgID),
			zap.Error(err),
		)
		s.recordOrphan(ctx, provider.Name(), order.ProviderOrderID, reference, orgID, plan, err)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutPersist, err)
	}

	s.log.Info("checkout initiated",
		zap.String("intent_id", intent.ID),
		zap.String("provider", intent.Provider),
		zap.String("provider_order_id", intent.ProviderOrderID),
		zap.Int64("organization_id", orgID),
		zap.String("plan", plan.ID),
	)

	return &CheckoutResult{
		IntentID:        intent.ID,
		Provider:        intent.Provider,
		ProviderOrderID: intent.ProviderOrderID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		LaunchData:      order.LaunchData,
	}, nil
}

// merchantReference {prefix}{orgID}_{unix}_{8位随机hex}
func (s *CheckoutService) merchantReference(orgID int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%d_%s", s.cfg.Billing.ReferencePrefix, orgID, s.now().Unix(), suffix)
}

func (s *CheckoutService) recordOrphan(ctx context.Context, provider, orderID, reference string, orgID int64, plan catalog.Plan, cause error) {
	if s.orphans == nil {
		return
	}

	// 请求方可能已断开，入队不跟随请求取消
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	err := s.orphans.Push(pushCtx, &queue.OrphanOrderMessage{
		Provider:          provider,
		ProviderOrderID:   orderID,
		MerchantReference: reference,
		OrganizationID:    orgID,
		Plan:              plan.ID,
		Amount:            plan.PriceMinor,
		Currency:          plan.Currency,
		Reason:            cause.Error(),
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		s.log.Error("failed to enqueue orphaned order",
			zap.String("provider", provider),
			zap.String("provider_order_id", orderID),
			zap.Error(err),
		)
	}
}
