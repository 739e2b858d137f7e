package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/infra/mq"
	"github.com/example/storecore/internal/logger"
	"github.com/example/storecore/internal/repository/mysql"
	"github.com/example/storecore/internal/service"
)

// 履约 worker：消费 order_paid_queue 的支付完成消息，
// 给订单追加履约备注。手动确认模式，处理失败的消息重新入队。
func main() {
	cfg, err := config.Load(os.Getenv("STORECORE_CONFIG_DIR"))
	if err != nil {
		panic(err)
	}
	logger.Init(cfg.Env)

	db := mysql.Init(&cfg.MySQL)
	mqConn := mq.Init(&cfg.RabbitMQ)
	orderRepo := mysql.NewOrderRepository(db)

	ch, err := mqConn.Channel()
	if err != nil {
		zap.L().Fatal("failed to open channel", zap.Error(err))
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(service.OrderPaidQueue, true, false, false, false, nil); err != nil {
		zap.L().Fatal("failed to declare queue", zap.Error(err))
	}

	// 手动确认模式（auto-ack=false）
	msgs, err := ch.Consume(service.OrderPaidQueue, "", false, false, false, false, nil)
	if err != nil {
		zap.L().Fatal("failed to consume", zap.Error(err))
	}

	zap.L().Info("fulfillment worker started, waiting for messages")

	for d := range msgs {
		var m service.OrderPaidMessage
		if err := json.Unmarshal(d.Body, &m); err != nil {
			zap.L().Warn("invalid message", zap.Error(err))
			// 消息格式错误，拒绝并丢弃
			_ = d.Nack(false, false)
			continue
		}
		handleMessage(context.Background(), orderRepo, &m, d)
	}
}

func handleMessage(ctx context.Context, orders order.Repository, m *service.OrderPaidMessage, d amqp.Delivery) {
	note := fmt.Sprintf("[%s] queued for fulfillment", time.Now().Format(time.RFC3339))
	if err := orders.AppendNote(ctx, m.TenantID, m.OrderID, note); err != nil {
		zap.L().Warn("append fulfillment note failed",
			zap.String("order_id", m.OrderID), zap.Error(err))
		// 数据库暂时不可用时重新入队，稍后再试
		_ = d.Nack(false, true)
		return
	}

	zap.L().Info("order queued for fulfillment",
		zap.String("tenant_id", m.TenantID),
		zap.String("order_id", m.OrderID),
		zap.String("charge_id", m.ChargeID))

	if err := d.Ack(false); err != nil {
		zap.L().Warn("failed to ack message", zap.Error(err))
	}
}
