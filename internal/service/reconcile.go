package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/model"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/lock"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/payment"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
)

// ReconcileStatus 回调处理结果，均为预期内的情况，不作为 error 返回
type ReconcileStatus string

const (
	ResultApplied                 ReconcileStatus = "applied"
	ResultDuplicate               ReconcileStatus = "duplicate"
	ResultConflict                ReconcileStatus = "conflict"
	ResultPending                 ReconcileStatus = "pending"
	ResultRejectedSignature       ReconcileStatus = "rejected_signature"
	ResultRejectedUnknownOrder    ReconcileStatus = "rejected_unknown_order"
	ResultRejectedUnknownProvider ReconcileStatus = "rejected_unknown_provider"
)

type ReconcileResult struct {
	Status          ReconcileStatus
	Provider        string
	ProviderOrderID string
	IntentID        string
	State           string
	Outcome         payment.Outcome
}

// Rejected 回调未被接受（签名、订单或渠道无效）
func (r *ReconcileResult) Rejected() bool {
	switch r.Status {
	case ResultRejectedSignature, ResultRejectedUnknownOrder, ResultRejectedUnknownProvider:
		return true
	}
	return false
}

// CallbackArchiver 回调原文归档
type CallbackArchiver interface {
	Store(provider, payloadSHA256 string, payload []byte) (string, error)
}

// EventPublisher 意图进入终态后广播
type EventPublisher interface {
	PublishIntentEvent(ctx context.Context, event *pubsub.IntentEvent) error
}

type ReconcileService struct {
	db        *gorm.DB
	providers *payment.Registry
	ledger    *Ledger
	orgRepo   *repository.OrganizationRepository
	eventRepo *repository.CallbackEventRepository
	locker    lock.Locker
	archiver  CallbackArchiver
	publisher EventPublisher
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewReconcileService(
	db *gorm.DB,
	providers *payment.Registry,
	ledger *Ledger,
	orgRepo *repository.OrganizationRepository,
	eventRepo *repository.CallbackEventRepository,
	locker lock.Locker,
	archiver CallbackArchiver,
	publisher EventPublisher,
	cfg *config.Config,
	log *zap.Logger,
) *ReconcileService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &ReconcileService{
		db:        db,
		providers: providers,
		ledger:    ledger,
		orgRepo:   orgRepo,
		eventRepo: eventRepo,
		locker:    locker,
		archiver:  archiver,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SignatureHeader 渠道放置签名的请求头，未知渠道返回空
func (s *ReconcileService) SignatureHeader(providerName string) string {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return ""
	}
	return provider.SignatureHeader()
}

// HandleCallback 验签、定位意图并至多应用一次终态变更
// 只有基础设施故障（如数据库不可用）才返回 error，由渠道重试
func (s *ReconcileService) HandleCallback(ctx context.Context, providerName string, payload []byte, signature string) (*ReconcileResult, error) {
	sum := sha256.Sum256(payload)
	audit := &model.CallbackEvent{
		Provider:      providerName,
		PayloadSHA256: hex.EncodeToString(sum[:]),
	}
	result := &ReconcileResult{Provider: providerName}

	provider, err := s.providers.Get(providerName)
	if err != nil {
		s.log.Warn("callback for unknown provider", zap.String("provider", providerName))
		result.Status = ResultRejectedUnknownProvider
		s.finish(ctx, audit, result, payload, "unknown provider", nil)
		return result, nil
	}

	verified, err := provider.VerifyCallback(payload, signature)
	if err != nil {
		if !errors.Is(err, payment.ErrSignatureInvalid) {
			return nil, err
		}
		s.log.Warn("callback signature rejected",
			zap.String("provider", providerName),
			zap.String("payload_sha256", audit.PayloadSHA256),
			zap.Error(err),
		)
		result.Status = ResultRejectedSignature
		s.finish(ctx, audit, result, payload, err.Error(), nil)
		return result, nil
	}

	audit.SignatureValid = true
	result.ProviderOrderID = verified.ProviderOrderID
	result.Outcome = verified.Outcome

	org, detail, err := s.apply(ctx, provider.Name(), verified, result)
	if err != nil {
		s.log.Error("callback processing failed",
			zap.String("provider", providerName),
			zap.String("provider_order_id", verified.ProviderOrderID),
			zap.Error(err),
		)
		return nil, err
	}

	s.finish(ctx, audit, result, payload, detail, org)
	return result, nil
}

// apply 在 (渠道, 订单) 锁内完成查找和状态变更
func (s *ReconcileService) apply(ctx context.Context, providerName string, verified *payment.VerifiedResult, result *ReconcileResult) (*model.Organization, string, error) {
	key := providerName + ":" + verified.ProviderOrderID
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.Billing.LockExpiry())
	release, err := s.locker.Acquire(lockCtx, key)
	cancel()
	if err != nil {
		// 兜底依赖数据库条件更新
		s.log.Warn("reconcile lock unavailable, relying on conditional update", zap.String("key", key), zap.Error(err))
	} else {
		defer func() {
			if err := release(); err != nil {
				s.log.Warn("failed to release reconcile lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	// 只按签名覆盖的 (渠道, 渠道订单号) 查找
	intent, err := s.ledger.FindByProviderOrder(ctx, providerName, verified.ProviderOrderID)
	if errors.Is(err, ErrIntentNotFound) {
		s.log.Warn("callback for unknown order",
			zap.String("provider", providerName),
			zap.String("provider_order_id", verified.ProviderOrderID),
			zap.String("merchant_reference", verified.MerchantReference),
		)
		result.Status = ResultRejectedUnknownOrder
		return nil, "unknown order", nil
	}
	if err != nil {
		return nil, "", err
	}

	result.IntentID = intent.ID
	result.State = intent.State

	if verified.Outcome == payment.OutcomePending {
		result.Status = ResultPending
		return nil, "provider reports payment pending", nil
	}

	var (
		tr  *Transition
		org *model.Organization
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)

		var err error
		if verified.Outcome == payment.OutcomeSuccess {
			tr, err = ledger.TransitionToCompleted(ctx, intent.ID, verified.ProviderTransactionID)
		} else {
			tr, err = ledger.TransitionToFailed(ctx, intent.ID)
		}
		if err != nil {
			return err
		}

		if tr.Applied && tr.Intent.State == model.IntentCompleted {
			org, err = s.activateSubscription(ctx, tx, tr.Intent)
		}
		return err
	})

	if errors.Is(err, ErrInvalidTransition) {
		current, getErr := s.ledger.Get(ctx, intent.ID)
		if getErr == nil {
			result.State = current.State
		}
		s.log.Error("conflicting terminal callback, manual investigation required",
			zap.String("provider", providerName),
			zap.String("provider_order_id", verified.ProviderOrderID),
			zap.String("intent_id", intent.ID),
			zap.String("state", result.State),
			zap.String("outcome", string(verified.Outcome)),
		)
		result.Status = ResultConflict
		return nil, err.Error(), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to apply callback: %w", err)
	}

	result.State = tr.Intent.State
	if !tr.Applied {
		result.Status = ResultDuplicate
		s.log.Info("duplicate callback acknowledged",
			zap.String("provider", providerName),
			zap.String("intent_id", intent.ID),
			zap.String("state", tr.Intent.State),
		)
		return nil, "already " + tr.Intent.State, nil
	}

	result.Status = ResultApplied
	s.log.Info("payment intent transitioned",
		zap.String("provider", providerName),
		zap.String("intent_id", intent.ID),
		zap.String("state", tr.Intent.State),
		zap.Int64("organization_id", tr.Intent.OrganizationID),
	)
	return org, "", nil
}

// activateSubscription 激活订阅并顺延到期时间，基准时间取决于 renewal_mode
func (s *ReconcileService) activateSubscription(ctx context.Context, tx *gorm.DB, intent *model.PaymentIntent) (*model.Organization, error) {
	orgRepo := s.orgRepo.WithTx(tx.WithContext(ctx))

	org, err := orgRepo.GetByID(intent.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %d: %w", intent.OrganizationID, err)
	}

	now := s.now()
	base := now
	if s.cfg.Billing.RenewalMode == config.RenewalStack && org.SubscriptionExpiresAt != nil && org.SubscriptionExpiresAt.After(now) {
		base = *org.SubscriptionExpiresAt
	}
	expiresAt := base.Add(s.cfg.Billing.Period())

	if err := orgRepo.ActivateSubscription(org.ID, intent.Plan, intent.Provider, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to activate subscription: %w", err)
	}

	org.SubscriptionStatus = model.SubscriptionActive
	org.Plan = intent.Plan
	org.PaymentMethod = intent.Provider
	org.SubscriptionExpiresAt = &expiresAt
	return org, nil
}

// finish 归档、落审计记录、广播事件，失败只记日志
func (s *ReconcileService) finish(ctx context.Context, audit *model.CallbackEvent, result *ReconcileResult, payload []byte, detail string, org *model.Organization) {
	audit.ProviderOrderID = result.ProviderOrderID
	audit.IntentID = result.IntentID
	audit.Outcome = string(result.Outcome)
	audit.Result = string(result.Status)
	audit.Detail = detail

	if s.archiver != nil {
		key, err := s.archiver.Store(audit.Provider, audit.PayloadSHA256, payload)
		if err != nil {
			s.log.Warn("failed to archive callback payload", zap.String("payload_sha256", audit.PayloadSHA256), zap.Error(err))
		} else {
			audit.ArchiveKey = key
		}
	}

	if err := s.eventRepo.WithContext(ctx).Create(audit); err != nil {
		s.log.Warn("failed to record callback event",
			zap.String("provider", audit.Provider),
			zap.String("result", audit.Result),
			zap.Error(err),
		)
	}

	if result.Status != ResultApplied || s.publisher == nil {
		return
	}

	event := &pubsub.IntentEvent{
		IntentID:   result.IntentID,
		Provider:   result.Provider,
		State:      result.State,
		OccurredAt: s.now(),
	}
	if result.State == model.IntentCompleted {
		event.Type = pubsub.EventIntentCompleted
	} else {
		event.Type = pubsub.EventIntentFailed
	}
	if org != nil {
		event.OrganizationID = org.ID
		event.Plan = org.Plan
		event.SubscriptionStatus = org.SubscriptionStatus
		event.SubscriptionExpiresAt = org.SubscriptionExpiresAt
	} else if intent, err := s.ledger.Get(ctx, result.IntentID); err == nil {
		event.OrganizationID = intent.OrganizationID
		event.Plan = intent.Plan
	}

	if err := s.publisher.PublishIntentEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish intent event", zap.String("intent_id", result.IntentID), zap.Error(err))
	}
}
