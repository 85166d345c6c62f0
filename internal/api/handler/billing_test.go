package handler

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/madrasah_billing_server/internal/model"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/response"
	"github.com/qs3c/madrasah_billing_server/internal/testutil"
)

func TestBillingHandler_ListPlans(t *testing.T) {
	handler, _, _ := setupBillingHandlers(t)

	router := gin.New()
	router.GET("/plans", handler.ListPlans)

	w := performRequest(router, "GET", "/plans", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)

	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 3)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "basic", first["id"])
	assert.Equal(t, float64(49900), first["price_minor"])
	assert.Equal(t, "INR", first["currency"])
}

func TestBillingHandler_Checkout(t *testing.T) {
	handler, _, ctx := setupBillingHandlers(t)
	org := testutil.TestOrganization(t, ctx.DB)

	newRouter := func(orgID int64) *gin.Engine {
		router := gin.New()
		router.Use(mockAuth(1, orgID))
		router.POST("/checkout", handler.Checkout)
		return router
	}

	t.Run("success", func(t *testing.T) {
		w := performRequest(newRouter(org.ID), "POST", "/checkout", map[string]interface{}{
			"organization_id": org.ID,
			"plan":            "pro",
			"provider":        "gateway_a",
		})
		resp := parseResponse(t, w)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, response.CodeSuccess, resp.Code)

		data := resp.Data.(map[string]interface{})
		assert.NotEmpty(t, data["intent_id"])
		assert.Equal(t, float64(99900), data["amount"])
		launch := data["launch_data"].(map[string]interface{})
		assert.Equal(t, data["provider_order_id"], launch["order_id"])
	})

	tests := []struct {
		name       string
		tokenOrg   int64
		body       map[string]interface{}
		wantStatus int
		wantCode   int
	}{
		{
			name:       "missing fields",
			tokenOrg:   org.ID,
			body:       map[string]interface{}{"organization_id": org.ID},
			wantStatus: http.StatusBadRequest,
			wantCode:   response.CodeParamError,
		},
		{
			name:       "organization mismatch",
			tokenOrg:   org.ID,
			body:       map[string]interface{}{"organization_id": org.ID + 1, "plan": "pro", "provider": "gateway_a"},
			wantStatus: http.StatusForbidden,
			wantCode:   response.CodePermissionDenied,
		},
		{
			name:       "unknown plan",
			tokenOrg:   org.ID,
			body:       map[string]interface{}{"organization_id": org.ID, "plan": "gold", "provider": "gateway_a"},
			wantStatus: http.StatusBadRequest,
			wantCode:   response.CodeUnknownPlan,
		},
		{
			name:       "unknown provider",
			tokenOrg:   org.ID,
			body:       map[string]interface{}{"organization_id": org.ID, "plan": "pro", "provider": "paypal"},
			wantStatus: http.StatusBadRequest,
			wantCode:   response.CodeUnknownProvider,
		},
		{
			name:       "organization not found",
			tokenOrg:   999,
			body:       map[string]interface{}{"organization_id": 999, "plan": "pro", "provider": "gateway_a"},
			wantStatus: http.StatusNotFound,
			wantCode:   response.CodeOrganizationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(newRouter(tt.tokenOrg), "POST", "/checkout", tt.body)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}

	t.Run("provider unavailable", func(t *testing.T) {
		atomic.StoreInt32(ctx.OrderStatus, http.StatusInternalServerError)
		defer atomic.StoreInt32(ctx.OrderStatus, 0)

		w := performRequest(newRouter(org.ID), "POST", "/checkout", map[string]interface{}{
			"organization_id": org.ID,
			"plan":            "pro",
			"provider":        "gateway_a",
		})
		resp := parseResponse(t, w)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, response.CodeProviderUnavailable, resp.Code)
	})
}

func TestBillingHandler_Checkout_Unauthorized(t *testing.T) {
	handler, _, _ := setupBillingHandlers(t)

	router := gin.New()
	router.POST("/checkout", handler.Checkout)

	w := performRequest(router, "POST", "/checkout", map[string]interface{}{"organization_id": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
}

func TestBillingHandler_Intents(t *testing.T) {
	handler, _, ctx := setupBillingHandlers(t)
	org := testutil.TestOrganization(t, ctx.DB)
	other := testutil.TestOrganization(t, ctx.DB)

	own := testutil.TestIntent(t, ctx.DB, org.ID)
	testutil.TestIntent(t, ctx.DB, org.ID, testutil.WithIntentState(model.IntentCompleted))
	foreign := testutil.TestIntent(t, ctx.DB, other.ID)

	router := gin.New()
	router.Use(mockAuth(1, org.ID))
	router.GET("/intents", handler.ListIntents)
	router.GET("/intents/:id", handler.GetIntent)

	t.Run("list", func(t *testing.T) {
		w := performRequest(router, "GET", "/intents?page=1&page_size=10", nil)
		resp := parseResponse(t, w)
		assert.Equal(t, http.StatusOK, w.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(2), data["total"])
		assert.Len(t, data["items"], 2)
	})

	t.Run("invalid page size", func(t *testing.T) {
		w := performRequest(router, "GET", "/intents?page_size=1000", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get own", func(t *testing.T) {
		w := performRequest(router, "GET", "/intents/"+own.ID, nil)
		resp := parseResponse(t, w)
		assert.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, own.ID, data["id"])
		assert.Equal(t, model.IntentPending, data["state"])
	})

	t.Run("other organization is hidden", func(t *testing.T) {
		w := performRequest(router, "GET", "/intents/"+foreign.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := performRequest(router, "GET", "/intents/does-not-exist", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBillingHandler_GetSubscription(t *testing.T) {
	handler, _, ctx := setupBillingHandlers(t)
	expiresAt := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	org := testutil.TestOrganization(t, ctx.DB, testutil.WithActiveSubscription("enterprise", expiresAt))

	router := gin.New()
	router.Use(mockAuth(1, org.ID))
	router.GET("/subscription", handler.GetSubscription)

	w := performRequest(router, "GET", "/subscription", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, model.SubscriptionActive, data["status"])
	assert.Equal(t, "enterprise", data["plan"])
	assert.Equal(t, expiresAt.Format(time.RFC3339), data["expires_at"])

	missing := gin.New()
	missing.Use(mockAuth(1, org.ID+100))
	missing.GET("/subscription", handler.GetSubscription)

	w = performRequest(missing, "GET", "/subscription", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeOrganizationNotFound, parseResponse(t, w).Code)
}
