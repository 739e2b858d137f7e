package service

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/storecore/internal/datamodels/order"
)

// OrderPaidQueue 履约消息队列名，发布端和 worker 消费端共用
const OrderPaidQueue = "order_paid_queue"

// OrderPaidMessage 支付完成后写入 MQ 的履约消息，
// 下游的发货/通知 worker 消费，与 webhook 请求解耦
type OrderPaidMessage struct {
	OrderID       string `json:"order_id"`
	TenantID      string `json:"tenant_id"`
	CustomerEmail string `json:"customer_email"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
	ChargeID      string `json:"charge_id"`
}

// FulfillmentPublisher 履约消息发布接口
type FulfillmentPublisher interface {
	PublishOrderPaid(ctx context.Context, o *order.Order) error
}

type mqFulfillmentPublisher struct {
	conn *amqp.Connection
}

// NewMQFulfillmentPublisher 基于 RabbitMQ 的履约消息发布器
func NewMQFulfillmentPublisher(conn *amqp.Connection) FulfillmentPublisher {
	return &mqFulfillmentPublisher{conn: conn}
}

func (p *mqFulfillmentPublisher) PublishOrderPaid(ctx context.Context, o *order.Order) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(OrderPaidQueue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(&OrderPaidMessage{
		OrderID:       o.ID,
		TenantID:      o.TenantID,
		CustomerEmail: o.CustomerEmail,
		Total:         o.Total,
		Currency:      o.Currency,
		ChargeID:      o.ProcessorChargeID,
	})
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		"",
		OrderPaidQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// NopFulfillmentPublisher 无 MQ 环境（本地开发、测试）下的空实现
type NopFulfillmentPublisher struct{}

func (NopFulfillmentPublisher) PublishOrderPaid(ctx context.Context, o *order.Order) error {
	return nil
}
