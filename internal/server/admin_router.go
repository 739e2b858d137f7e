package server

import (
	"time"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/storecore/internal/auth"
	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
	"github.com/example/storecore/internal/infra/mq"
	"github.com/example/storecore/internal/infra/redis"
	"github.com/example/storecore/internal/repository/mysql"
	"github.com/example/storecore/internal/service"
)

// RegisterAdminRoutes 注册后台管理端的 HTTP 路由
// 端口通常是 8081，与前台店面服务分离；所有接口要求管理员身份，
// 且一律以管理员令牌中的 tenant_id 为作用域
func RegisterAdminRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	// 仓储与服务
	orderRepo := mysql.NewOrderRepository(db)
	credRepo := mysql.NewCredentialRepository(db)
	dunningRepo := mysql.NewDunningRepository(db)
	customerRepo := mysql.NewCustomerRepository(db)

	resolver := service.NewCredentialResolver(credRepo, cfg)
	customerSvc := service.NewCustomerService(customerRepo, &cfg.JWT)
	orderSvc := service.NewOrderService(orderRepo)
	dunningSvc := service.NewDunningService(dunningRepo)
	fulfill := service.NewMQFulfillmentPublisher(mqConn)
	webhookSvc := service.NewWebhookService(orderRepo, dunningSvc, resolver, redisClient,
		fulfill, time.Duration(cfg.Processor.SignatureTolerance)*time.Second)

	authRing := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	tokenCache := auth.NewTokenCache(redisClient, authRing, 10*time.Minute)

	app.Get("/metrics", iris.FromStd(promhttp.Handler()))

	api := app.Party("/api")

	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"success": true})
	})

	// 管理员登录（管理员也是 customers 表里的账号，带 is_admin 标记）
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

	adminAPI := api.Party("/", requireAuth(cfg, tokenCache, true))

	// ---------- 订单管理 ----------

	adminAPI.Get("/orders", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		limit := ctx.URLParamIntDefault("limit", 50)
		offset := ctx.URLParamIntDefault("offset", 0)
		list, err := orderSvc.List(ctx.Request().Context(), claims.TenantID, order.ListFilter{
			Status: order.Status(ctx.URLParam("status")),
			Search: ctx.URLParam("search"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": list})
	})

	adminAPI.Get("/orders/{id:string}", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		o, err := orderSvc.Get(ctx.Request().Context(), claims.TenantID, ctx.Params().Get("id"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": o})
	})

	adminAPI.Put("/orders/{id:string}", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		var req struct {
			Status          *string `json:"status"`
			ShippingAddress *string `json:"shipping_address"`
			BillingAddress  *string `json:"billing_address"`
			DeliveryMethod  *string `json:"delivery_method"`
			Total           *int64  `json:"total"`
			Note            string  `json:"note"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		upd := service.AdminUpdate{
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			DeliveryMethod:  req.DeliveryMethod,
			Total:           req.Total,
			Note:            req.Note,
		}
		if req.Status != nil {
			st := order.Status(*req.Status)
			upd.Status = &st
		}
		o, err := orderSvc.Update(ctx.Request().Context(), claims.TenantID, ctx.Params().Get("id"), upd)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": o})
	})

	adminAPI.Delete("/orders/{id:string}", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		if err := orderSvc.Delete(ctx.Request().Context(), claims.TenantID, ctx.Params().Get("id")); err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true})
	})

	// 批准取消：只改履约状态，是否需要人工退款单独提示，不自动动钱
	adminAPI.Post("/orders/{id:string}/approve-cancellation", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		res, err := orderSvc.ApproveCancellation(ctx.Request().Context(), claims.TenantID, ctx.Params().Get("id"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{
			"success":             true,
			"data":                res.Order,
			"needs_manual_refund": res.NeedsManualRefund,
		})
	})

	// 人工重放支付完成事件（与店面 /webhook/manual-trigger 同一逻辑）
	adminAPI.Post("/orders/replay", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		var req struct {
			SessionID string `json:"session_id"`
			OrderID   string `json:"order_id"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		applied, err := webhookSvc.ReplaySession(ctx.Request().Context(), claims.TenantID,
			order.PaidRef{SessionID: req.SessionID, OrderID: req.OrderID})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "applied": applied})
	})

	// ---------- 支付配置 ----------

	adminAPI.Get("/settings/payment-config", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		cred, err := resolver.View(ctx.Request().Context(), claims.TenantID)
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				ctx.JSON(iris.Map{"success": true, "data": nil})
				return
			}
			writeError(ctx, err)
			return
		}
		// 模型 json 标签已屏蔽全部私钥字段
		ctx.JSON(iris.Map{"success": true, "data": cred})
	})

	adminAPI.Post("/settings/payment-config", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		var req struct {
			TestPublicKey string `json:"test_public_key"`
			TestSecretKey string `json:"test_secret_key"`
			LivePublicKey string `json:"live_public_key"`
			LiveSecretKey string `json:"live_secret_key"`
			WebhookSecret string `json:"webhook_secret"`
			IsTestMode    bool   `json:"is_test_mode"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			writeError(ctx, errs.Validation("invalid request body: %v", err))
			return
		}
		err := resolver.Configure(ctx.Request().Context(), service.ConfigureRequest{
			TenantID:      claims.TenantID,
			TestPublicKey: req.TestPublicKey,
			TestSecretKey: req.TestSecretKey,
			LivePublicKey: req.LivePublicKey,
			LiveSecretKey: req.LiveSecretKey,
			WebhookSecret: req.WebhookSecret,
			IsTestMode:    req.IsTestMode,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true})
	})

	// ---------- 失败扣款 ----------

	adminAPI.Get("/failed-payments/site/{tenant:string}", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		tenantID := ctx.Params().Get("tenant")
		if tenantID != claims.TenantID {
			writeError(ctx, errs.Authorization("cannot read another tenant's records"))
			return
		}
		list, err := dunningSvc.ListForTenant(ctx.Request().Context(), tenantID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": list})
	})

	adminAPI.Get("/failed-payments/{customer:string}", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		list, err := dunningSvc.ListForCustomer(ctx.Request().Context(),
			claims.TenantID, ctx.Params().Get("customer"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": list})
	})

	adminAPI.Delete("/failed-payments/{customer:string}/{invoice:string}", func(ctx iris.Context) {
		claims := claimsOf(ctx)
		err := dunningSvc.Dismiss(ctx.Request().Context(), claims.TenantID,
			ctx.Params().Get("customer"), ctx.Params().Get("invoice"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"success": true})
	})
}
