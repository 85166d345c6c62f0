package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/catalog"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/payment"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/madrasah_billing_server/internal/repository"
	"github.com/qs3c/madrasah_billing_server/internal/testutil"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// gatewayStub 模拟渠道 A 的订单接口
type gatewayStub struct {
	server  *httptest.Server
	counter int64
	status  int32 // 非 0 时直接返回该状态码
}

func newGatewayStub(t *testing.T) *gatewayStub {
	t.Helper()

	stub := &gatewayStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := atomic.LoadInt32(&stub.status); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		n := atomic.AddInt64(&stub.counter, 1)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     fmt.Sprintf("order_%d", n),
			"status": "created",
		})
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (g *gatewayStub) calls() int64 {
	return atomic.LoadInt64(&g.counter)
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.IntentEvent
}

func (p *recordingPublisher) PublishIntentEvent(ctx context.Context, event *pubsub.IntentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []*pubsub.IntentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pubsub.IntentEvent(nil), p.events...)
}

// memoryArchiver 内存归档
type memoryArchiver struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *memoryArchiver) Store(provider, sum string, payload []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	key := provider + "/" + sum + ".json"
	a.objects[key] = payload
	return key, nil
}

type billingFixture struct {
	db        *gorm.DB
	cfg       *config.Config
	stub      *gatewayStub
	registry  *payment.Registry
	ledger    *Ledger
	orgRepo   *repository.OrganizationRepository
	eventRepo *repository.CallbackEventRepository
	checkout  *CheckoutService
	reconcile *ReconcileService
	publisher *recordingPublisher
	archiver  *memoryArchiver
}

func setupBilling(t *testing.T) *billingFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()
	stub := newGatewayStub(t)
	cfg.Providers.GatewayA.BaseURL = stub.server.URL

	registry, err := payment.NewRegistryFromConfig(cfg.Providers, nil)
	require.NoError(t, err)

	plans, err := catalog.New(cfg.Billing)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	intentRepo := repository.NewPaymentIntentRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	eventRepo := repository.NewCallbackEventRepository(db)
	ledger := NewLedger(intentRepo)
	publisher := &recordingPublisher{}
	archiver := &memoryArchiver{}

	checkout := NewCheckoutService(plans, orgRepo, ledger, registry, nil, cfg, log)
	reconcile := NewReconcileService(db, registry, ledger, orgRepo, eventRepo, nil, archiver, publisher, cfg, log)
	reconcile.now = func() time.Time { return fixedNow }

	return &billingFixture{
		db:        db,
		cfg:       cfg,
		stub:      stub,
		registry:  registry,
		ledger:    ledger,
		orgRepo:   orgRepo,
		eventRepo: eventRepo,
		checkout:  checkout,
		reconcile: reconcile,
		publisher: publisher,
		archiver:  archiver,
	}
}

// gatewayACallback 用渠道 A 的密钥签名回调
func gatewayACallback(t *testing.T, secret, orderID, paymentID, status string) ([]byte, string) {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"order_id":   orderID,
		"payment_id": paymentID,
		"status":     status,
	})
	require.NoError(t, err)
	return body, payment.GatewayASignature(secret, orderID, paymentID)
}
