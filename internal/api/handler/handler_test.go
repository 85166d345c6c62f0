package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/api/middleware"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/catalog"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/payment"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/response"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
	"github.com/qs3c/madrasah_billing_server/internal/service"
	"github.com/qs3c/madrasah_billing_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testContext 本地测试上下文
type testContext struct {
	DB          *gorm.DB
	Config      *config.Config
	Ledger      *service.Ledger
	OrderStatus *int32 // 渠道 A 订单接口返回的状态码，0 表示正常
}

// setupBillingHandlers 创建计费相关 handler，渠道 A 指向本地 stub
func setupBillingHandlers(t *testing.T) (*BillingHandler, *CallbackHandler, *testContext) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()

	var status int32
	var counter int64
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := atomic.LoadInt32(&status); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		n := atomic.AddInt64(&counter, 1)
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("order_%d", n)})
	}))
	t.Cleanup(stub.Close)
	cfg.Providers.GatewayA.BaseURL = stub.URL

	registry, err := payment.NewRegistryFromConfig(cfg.Providers, nil)
	require.NoError(t, err)
	plans, err := catalog.New(cfg.Billing)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	orgRepo := repository.NewOrganizationRepository(db)
	ledger := service.NewLedger(repository.NewPaymentIntentRepository(db))

	checkout := service.NewCheckoutService(plans, orgRepo, ledger, registry, nil, cfg, log)
	reconcile := service.NewReconcileService(db, registry, ledger, orgRepo,
		repository.NewCallbackEventRepository(db), nil, nil, nil, cfg, log)
	subscription := service.NewSubscriptionService(orgRepo, log)

	billing := NewBillingHandler(plans, checkout, ledger, subscription, log)
	callback := NewCallbackHandler(reconcile, log)

	return billing, callback, &testContext{
		DB:          db,
		Config:      cfg,
		Ledger:      ledger,
		OrderStatus: &status,
	}
}

// mockAuth 模拟已登录用户
func mockAuth(userID, orgID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Set(middleware.OrganizationIDKey, orgID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}
