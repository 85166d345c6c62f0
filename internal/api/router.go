package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/api/handler"
	"github.com/qs3c/madrasah_billing_server/internal/api/middleware"
)

type Router struct {
	billingHandler   *handler.BillingHandler
	callbackHandler  *handler.CallbackHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
	log              *zap.Logger
}

func NewRouter(
	billingHandler *handler.BillingHandler,
	callbackHandler *handler.CallbackHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
	log *zap.Logger,
) *Router {
	return &Router{
		billingHandler:   billingHandler,
		callbackHandler:  callbackHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
		log:              log,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.TraceID())
	engine.Use(middleware.AccessLog(r.log))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := engine.Group("/api/v1")
	billing := api.Group("/billing")
	{
		// 公开接口
		billing.GET("/plans", r.billingHandler.ListPlans)

		// 渠道回调，靠签名认证
		billing.POST("/callback/:provider", r.callbackHandler.Handle)

		// WebSocket，token 放在 query
		if r.websocketHandler != nil {
			billing.GET("/ws", middleware.QueryAuth(r.cfg.JWT.Secret), r.websocketHandler.Handle)
		}

		// 需要认证的接口
		authenticated := billing.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.POST("/checkout", r.billingHandler.Checkout)
			authenticated.GET("/intents", r.billingHandler.ListIntents)
			authenticated.GET("/intents/:id", r.billingHandler.GetIntent)
			authenticated.GET("/subscription", r.billingHandler.GetSubscription)
		}
	}

	return engine
}
