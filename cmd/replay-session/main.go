package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/logger"
	"github.com/example/storecore/internal/repository/mysql"
	"github.com/example/storecore/internal/service"
)

// 运维工具：对处理商从未送达（或被网络吞掉）的支付完成事件，
// 按会话 ID 或订单 ID 强制补跑一次落账。幂等，重复执行无副作用。
//
//	replay-session -tenant <tenantID> -session cs_xxx
//	replay-session -tenant <tenantID> -order <orderID>
func main() {
	var (
		tenantID  = flag.String("tenant", "", "tenant id (required)")
		sessionID = flag.String("session", "", "processor checkout session id")
		orderID   = flag.String("order", "", "order id")
	)
	flag.Parse()

	if *tenantID == "" || (*sessionID == "" && *orderID == "") {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("STORECORE_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Env)

	db := mysql.Init(&cfg.MySQL)
	orderRepo := mysql.NewOrderRepository(db)
	credRepo := mysql.NewCredentialRepository(db)
	dunningRepo := mysql.NewDunningRepository(db)

	resolver := service.NewCredentialResolver(credRepo, cfg)
	dunningSvc := service.NewDunningService(dunningRepo)
	// 离线工具不连 Redis/MQ：去重由数据库条件更新兜底，履约消息靠再次重放补投
	webhookSvc := service.NewWebhookService(orderRepo, dunningSvc, resolver, nil,
		service.NopFulfillmentPublisher{}, time.Duration(cfg.Processor.SignatureTolerance)*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := webhookSvc.ReplaySession(ctx, *tenantID,
		order.PaidRef{SessionID: *sessionID, OrderID: *orderID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
	if applied {
		fmt.Println("payment applied")
	} else {
		fmt.Println("already applied, nothing to do")
	}
}
