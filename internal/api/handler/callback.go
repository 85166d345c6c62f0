package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/internal/api/middleware"
	"github.com/qs3c/madrasah_billing_server/internal/model/dto"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/response"
	"github.com/qs3c/madrasah_billing_server/internal/service"
)

const maxCallbackBody = 1 << 20

type CallbackHandler struct {
	reconcileService *service.ReconcileService
	log              *zap.Logger
}

func NewCallbackHandler(reconcileService *service.ReconcileService, log *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		reconcileService: reconcileService,
		log:              log,
	}
}

// Handle 支付渠道回调
// POST /api/v1/billing/callback/:provider
func (h *CallbackHandler) Handle(c *gin.Context) {
	providerName := c.Param("provider")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		response.ParamError(c, "读取回调内容失败")
		return
	}

	signature := ""
	if header := h.reconcileService.SignatureHeader(providerName); header != "" {
		signature = c.GetHeader(header)
	}

	result, err := h.reconcileService.HandleCallback(c.Request.Context(), providerName, payload, signature)
	if err != nil {
		h.log.Error("callback handling failed",
			zap.String("trace_id", middleware.GetTraceID(c)),
			zap.String("provider", providerName),
			zap.Error(err),
		)
		response.ServerError(c, "")
		return
	}

	data := dto.CallbackResponse{
		Result:   string(result.Status),
		IntentID: result.IntentID,
		State:    result.State,
	}

	switch result.Status {
	case service.ResultRejectedSignature:
		response.ErrorWithStatus(c, http.StatusUnauthorized, response.CodeSignatureInvalid, "", data)
	case service.ResultRejectedUnknownOrder:
		response.ErrorWithStatus(c, http.StatusNotFound, response.CodeUnknownOrder, "", data)
	case service.ResultRejectedUnknownProvider:
		response.ErrorWithStatus(c, http.StatusNotFound, response.CodeUnknownProvider, "", data)
	default:
		// applied / duplicate / conflict / pending 都向渠道确认收到
		response.Success(c, data)
	}
}
