package notify

import (
	"context"
	"encoding/json"

	xerrors "ZKIPFS-Registry/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述事件交换机的连接参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// RabbitMQPublisher 将验证事件发布到 RabbitMQ topic 交换机，
// 单笔与批量事件分别使用 proof.verified 与 batch.completed 路由键。
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher 建立连接并声明交换机。
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "zkreg.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明事件交换机失败")
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishProofVerified 实现 Publisher 接口。
func (p *RabbitMQPublisher) PublishProofVerified(ctx context.Context, event ProofVerified) error {
	return p.publish(ctx, "proof.verified", event)
}

// PublishBatchCompleted 实现 Publisher 接口。
func (p *RabbitMQPublisher) PublishBatchCompleted(ctx context.Context, event BatchCompleted) error {
	return p.publish(ctx, "batch.completed", event)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, event any) error {
	if p == nil || p.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 发布器未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化事件失败")
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布事件失败")
	}
	return nil
}

// Close 关闭 RabbitMQ 连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ Publisher = (*RabbitMQPublisher)(nil)
