package server

import (
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/storecore/internal/auth"
	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
	"github.com/example/storecore/internal/infra/mq"
	"github.com/example/storecore/internal/infra/redis"
	"github.com/example/storecore/internal/metrics"
	"github.com/example/storecore/internal/middleware"
	"github.com/example/storecore/internal/processor"
	"github.com/example/storecore/internal/repository/mysql"
	"github.com/example/storecore/internal/service"
)

// RegisterRoutes 注册店面侧的 HTTP 路由：结算、支付、webhook、客户订单
func RegisterRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施（均为进程级单例）
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)
	metrics.Register(prometheus.DefaultRegisterer)

	// 仓储与服务
	orderRepo := mysql.NewOrderRepository(db)
	credRepo := mysql.NewCredentialRepository(db)
	dunningRepo := mysql.NewDunningRepository(db)
	customerRepo := mysql.NewCustomerRepository(db)

	resolver := service.NewCredentialResolver(credRepo, cfg)
	procClient := processor.NewHTTPClient(&cfg.Processor)
	fulfill := service.NewMQFulfillmentPublisher(mqConn)
	customerSvc := service.NewCustomerService(customerRepo, &cfg.JWT)
	checkoutSvc := service.NewCheckoutService(orderRepo, resolver, procClient, fulfill)
	orderSvc := service.NewOrderService(orderRepo)
	dunningSvc := service.NewDunningService(dunningRepo)
	webhookSvc := service.NewWebhookService(orderRepo, dunningSvc, resolver, redisClient,
		fulfill, time.Duration(cfg.Processor.SignatureTolerance)*time.Second)

	authRing := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	tokenCache := auth.NewTokenCache(redisClient, authRing, 10*time.Minute)

	app.Get("/metrics", iris.FromStd(promhttp.Handler()))

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"success": true})
	})

	// 客户注册/登录
	api.Post("/register", func(ctx iris.Context) {
		var req struct {
			TenantID string `json:"tenant_id"`
			Email    string `json:"email"`
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		c, err := customerSvc.Register(ctx.Request().Context(), req.TenantID, req.Email, req.Name, req.Password)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": c})
	})

	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			TenantID string `json:"tenant_id"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		token, err := customerSvc.Login(ctx.Request().Context(), req.TenantID, req.Email, req.Password)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": iris.Map{"token": token}})
	})

	// 结算：创建处理商会话
	api.Post("/checkout", func(ctx iris.Context) {
		var req struct {
			TenantID        string           `json:"tenant_id"`
			CustomerID      string           `json:"customer_id"`
			Email           string           `json:"email"`
			Items           []order.LineItem `json:"items"`
			ShippingAddress string           `json:"shipping_address"`
			BillingAddress  string           `json:"billing_address"`
			DeliveryMethod  string           `json:"delivery_method"`
			ShippingCost    int64            `json:"shipping_cost"`
			Currency        string           `json:"currency"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		res, err := checkoutSvc.CreateCheckout(ctx.Request().Context(), service.CheckoutRequest{
			TenantID:        req.TenantID,
			CustomerID:      req.CustomerID,
			CustomerEmail:   req.Email,
			Items:           req.Items,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			DeliveryMethod:  req.DeliveryMethod,
			ShippingCost:    req.ShippingCost,
			Currency:        req.Currency,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{
			"success":     true,
			"session_url": res.SessionURL,
			"order_id":    res.Order.ID,
		})
	})

	// 旧版 token 直接扣款
	api.Post("/payment", middleware.PaymentRateLimit(), func(ctx iris.Context) {
		var req struct {
			TenantID     string `json:"tenant_id"`
			OrderID      string `json:"order_id"`
			AmountCents  int64  `json:"amount_cents"`
			PaymentToken string `json:"payment_token"`
			Email        string `json:"email"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		res, err := checkoutSvc.CreateDirectCharge(ctx.Request().Context(),
			req.TenantID, req.OrderID, req.AmountCents, req.PaymentToken, req.Email)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{
			"success":   true,
			"charge_id": res.ChargeID,
			"order":     res.Order,
		})
	})

	// webhook：原始报文 + 签名头，验签之前不解析
	app.Post("/webhook", middleware.WebhookRateLimit(), func(ctx iris.Context) {
		body, err := ctx.GetBody()
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"error": "unable to read request body"})
			return
		}
		hint := ctx.GetHeader("X-Tenant-ID")
		if hint == "" {
			hint = ctx.URLParam("tenant")
		}
		sig := ctx.GetHeader("X-Processor-Signature")
		if err := webhookSvc.Handle(ctx.Request().Context(), hint, body, sig); err != nil {
			ctx.StopWithJSON(errs.HTTPStatus(err), iris.Map{"error": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"received": true})
	})

	// 人工重放：运维补跑从未送达的事件，幂等，仅管理员可用
	app.Post("/webhook/manual-trigger", requireAuth(cfg, tokenCache, true), func(ctx iris.Context) {
		var req struct {
			TenantID  string `json:"tenant_id"`
			SessionID string `json:"session_id"`
			OrderID   string `json:"order_id"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		applied, err := webhookSvc.ReplaySession(ctx.Request().Context(), req.TenantID,
			order.PaidRef{SessionID: req.SessionID, OrderID: req.OrderID})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "applied": applied})
	})

	// 需要登录的客户接口
	authAPI := api.Party("/", requireAuth(cfg, tokenCache, false))

	authAPI.Get("/orders/me", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		list, err := orderSvc.ListForCustomer(ctx.Request().Context(), claims.TenantID, service.Identity{
			CustomerID: claims.CustomerID,
			Email:      claims.Email,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": list})
	})

	authAPI.Post("/orders/{id:string}/request-cancellation", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		var req struct {
			Reason string `json:"reason"`
		}
		// 空 body 合法，reason 可选
		_ = ctx.ReadJSON(&req)
		o, err := orderSvc.RequestCancellation(ctx.Request().Context(),
			claims.TenantID, ctx.Params().Get("id"),
			service.Identity{CustomerID: claims.CustomerID, Email: claims.Email},
			req.Reason)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": o})
	})
}

// requireAuth 登录校验中间件，adminOnly 时还要求管理员身份
// 解析结果经 Redis 缓存，减少热点路径上的重复验签
func requireAuth(cfg *config.Config, cache *auth.TokenCache, adminOnly bool) iris.Handler {
	return func(ctx iris.Context) {
		token := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"success": false, "error": "missing token"})
			return
		}

		var claims *auth.Claims
		if cache != nil {
			if cached, ok, _ := cache.Get(ctx.Request().Context(), token); ok {
				claims = cached
			}
		}
		if claims == nil {
			parsed, err := auth.ParseToken(&cfg.JWT, token)
			if err != nil {
				ctx.StopWithJSON(401, iris.Map{"success": false, "error": "invalid token"})
				return
			}
			claims = parsed
			if cache != nil {
				_ = cache.Set(ctx.Request().Context(), token, claims)
			}
		}

		if adminOnly && !claims.IsAdmin {
			ctx.StopWithJSON(403, iris.Map{"success": false, "error": "admin access required"})
			return
		}

		ctx.Values().Set("claims", claims)
		ctx.Next()
	}
}

func claimsOf(ctx iris.Context) *auth.Claims {
	if v := ctx.Values().Get("claims"); v != nil {
		if c, ok := v.(*auth.Claims); ok {
			return c
		}
	}
	return &auth.Claims{}
}

// writeError 把业务错误映射为 {success:false, error} 响应
// 对外不暴露内部堆栈，状态码由错误分类决定
func writeError(ctx iris.Context, err error) {
	ctx.StopWithJSON(errs.HTTPStatus(err), iris.Map{
		"success": false,
		"error":   err.Error(),
	})
}
