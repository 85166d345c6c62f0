package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/internal/api/middleware"
	"github.com/qs3c/madrasah_billing_server/internal/model/dto"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/catalog"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/response"
	"github.com/qs3c/madrasah_billing_server/internal/service"
)

const (
	defaultPageSize = 20
)

type BillingHandler struct {
	catalog             *catalog.Catalog
	checkoutService     *service.CheckoutService
	ledger              *service.Ledger
	subscriptionService *service.SubscriptionService
	log                 *zap.Logger
}

func NewBillingHandler(
	catalog *catalog.Catalog,
	checkoutService *service.CheckoutService,
	ledger *service.Ledger,
	subscriptionService *service.SubscriptionService,
	log *zap.Logger,
) *BillingHandler {
	return &BillingHandler{
		catalog:             catalog,
		checkoutService:     checkoutService,
		ledger:              ledger,
		subscriptionService: subscriptionService,
		log:                 log,
	}
}

// ListPlans 套餐列表
// GET /api/v1/billing/plans
func (h *BillingHandler) ListPlans(c *gin.Context) {
	plans := h.catalog.List()
	items := make([]dto.PlanInfo, 0, len(plans))
	for _, p := range plans {
		items = append(items, dto.PlanInfo{
			ID:         p.ID,
			Name:       p.Name,
			PriceMinor: p.PriceMinor,
			Currency:   p.Currency,
		})
	}
	response.Success(c, items)
}

// Checkout 发起支付
// POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if req.OrganizationID != orgID {
		response.PermissionError(c, "只能为所属机构发起支付")
		return
	}

	result, err := h.checkoutService.InitiateCheckout(c.Request.Context(), orgID, req.Plan, req.Provider)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPlan):
			response.Error(c, response.CodeUnknownPlan, "")
		case errors.Is(err, service.ErrUnknownProvider):
			response.Error(c, response.CodeUnknownProvider, "")
		case errors.Is(err, service.ErrOrganizationNotFound):
			response.Error(c, response.CodeOrganizationNotFound, "")
		case errors.Is(err, service.ErrProviderUnavailable):
			response.ProviderError(c, "")
		default:
			h.log.Error("checkout failed",
				zap.String("trace_id", middleware.GetTraceID(c)),
				zap.Int64("organization_id", orgID),
				zap.Error(err),
			)
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, dto.CheckoutResponse{
		IntentID:        result.IntentID,
		Provider:        result.Provider,
		ProviderOrderID: result.ProviderOrderID,
		Amount:          result.Amount,
		Currency:        result.Currency,
		LaunchData:      result.LaunchData,
	})
}

// ListIntents 账单历史
// GET /api/v1/billing/intents?page=1&page_size=20
func (h *BillingHandler) ListIntents(c *gin.Context) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var query dto.ListIntentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.PageSize == 0 {
		query.PageSize = defaultPageSize
	}

	intents, total, err := h.ledger.ListByOrganization(c.Request.Context(), orgID, query.Page, query.PageSize)
	if err != nil {
		h.log.Error("list intents failed", zap.Int64("organization_id", orgID), zap.Error(err))
		response.ServerError(c, "")
		return
	}

	items := make([]*dto.IntentInfo, 0, len(intents))
	for i := range intents {
		items = append(items, dto.NewIntentInfo(&intents[i]))
	}
	response.SuccessPage(c, total, query.Page, query.PageSize, items)
}

// GetIntent 支付意图详情
// GET /api/v1/billing/intents/:id
func (h *BillingHandler) GetIntent(c *gin.Context) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	intent, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrIntentNotFound) {
			response.NotFoundError(c, "支付意图不存在")
			return
		}
		response.ServerError(c, "")
		return
	}

	// 其他机构的意图按不存在处理
	if intent.OrganizationID != orgID {
		response.NotFoundError(c, "支付意图不存在")
		return
	}

	response.Success(c, dto.NewIntentInfo(intent))
}

// GetSubscription 当前订阅
// GET /api/v1/billing/subscription
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	org, err := h.subscriptionService.GetSubscription(c.Request.Context(), orgID)
	if err != nil {
		if errors.Is(err, service.ErrOrganizationNotFound) {
			response.Error(c, response.CodeOrganizationNotFound, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.NewSubscriptionInfo(org))
}
