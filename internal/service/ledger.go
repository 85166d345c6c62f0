package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/internal/model"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
)

var (
	ErrDuplicateOrder    = errors.New("渠道订单已存在")
	ErrIntentNotFound    = errors.New("支付意图不存在")
	ErrInvalidTransition = errors.New("支付意图已处于相反的终态")
)

// NewIntent 创建支付意图所需字段，金额和币种为下单时的套餐价格快照
type NewIntent struct {
	OrganizationID    int64
	Plan              string
	Provider          string
	ProviderOrderID   string
	MerchantReference string
	Amount            int64
	Currency          string
}

// Transition 状态变更结果，Applied=false 表示意图已处于目标终态
type Transition struct {
	Intent  *model.PaymentIntent
	Applied bool
}

// Ledger 支付意图账本，state 只能经由这里修改
type Ledger struct {
	repo *repository.PaymentIntentRepository
	now  func() time.Time
}

func NewLedger(repo *repository.PaymentIntentRepository) *Ledger {
	return &Ledger{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithTx 绑定到事务，订阅变更与状态变更一起提交
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{repo: l.repo.WithTx(tx), now: l.now}
}

func (l *Ledger) Create(ctx context.Context, in NewIntent) (*model.PaymentIntent, error) {
	intent := &model.PaymentIntent{
		ID:                uuid.NewString(),
		OrganizationID:    in.OrganizationID,
		Plan:              in.Plan,
		Provider:          in.Provider,
		ProviderOrderID:   in.ProviderOrderID,
		MerchantReference: in.MerchantReference,
		Amount:            in.Amount,
		Currency:          in.Currency,
		State:             model.IntentPending,
		CreatedAt:         l.now(),
	}

	if err := l.repo.WithContext(ctx).Create(intent); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateOrder, in.Provider, in.ProviderOrderID)
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return intent, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*model.PaymentIntent, error) {
	intent, err := l.repo.WithContext(ctx).GetByID(id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return intent, nil
}

func (l *Ledger) FindByProviderOrder(ctx context.Context, provider, providerOrderID string) (*model.PaymentIntent, error) {
	intent, err := l.repo.WithContext(ctx).GetByProviderOrder(provider, providerOrderID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return intent, nil
}

// ListByOrganization 机构的支付历史，按创建时间倒序
func (l *Ledger) ListByOrganization(ctx context.Context, orgID int64, page, pageSize int) ([]model.PaymentIntent, int64, error) {
	return l.repo.WithContext(ctx).ListByOrganization(orgID, page, pageSize)
}

// TransitionToCompleted pending → completed
func (l *Ledger) TransitionToCompleted(ctx context.Context, id, providerTransactionID string) (*Transition, error) {
	now := l.now()
	return l.transition(ctx, id, model.IntentCompleted, map[string]interface{}{
		"state":                   model.IntentCompleted,
		"provider_transaction_id": providerTransactionID,
		"completed_at":            now,
		"updated_at":              now,
	})
}

// TransitionToFailed pending → failed
func (l *Ledger) TransitionToFailed(ctx context.Context, id string) (*Transition, error) {
	now := l.now()
	return l.transition(ctx, id, model.IntentFailed, map[string]interface{}{
		"state":        model.IntentFailed,
		"completed_at": now,
		"updated_at":   now,
	})
}

// transition 以 state = pending 为条件更新，未命中时重新读取判断是重复还是冲突
func (l *Ledger) transition(ctx context.Context, id, target string, fields map[string]interface{}) (*Transition, error) {
	repo := l.repo.WithContext(ctx)

	rows, err := repo.UpdateStateIfPending(id, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment intent: %w", err)
	}

	intent, err := repo.GetByID(id)
	if err != nil {
		return nil, notFoundOr(err)
	}

	if rows > 0 {
		return &Transition{Intent: intent, Applied: true}, nil
	}
	if intent.State == target {
		return &Transition{Intent: intent, Applied: false}, nil
	}
	if intent.IsTerminal() {
		return nil, fmt.Errorf("%w: intent %s is %s, wanted %s", ErrInvalidTransition, id, intent.State, target)
	}
	return nil, fmt.Errorf("payment intent %s left in state %s", id, intent.State)
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrIntentNotFound
	}
	return err
}
