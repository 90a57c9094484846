package notify

import (
	"context"
	"encoding/json"

	xerrors "ZKIPFS-Registry/internal/errors"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 发布通道的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisPublisher 通过 Redis Pub/Sub 广播验证事件。
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher 创建发布器并探测连接。
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "zkreg:events"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// PublishProofVerified 实现 Publisher 接口。
func (p *RedisPublisher) PublishProofVerified(ctx context.Context, event ProofVerified) error {
	return p.publish(ctx, "proof_verified", event)
}

// PublishBatchCompleted 实现 Publisher 接口。
func (p *RedisPublisher) PublishBatchCompleted(ctx context.Context, event BatchCompleted) error {
	return p.publish(ctx, "batch_completed", event)
}

func (p *RedisPublisher) publish(ctx context.Context, kind string, event any) error {
	payload, err := json.Marshal(struct {
		Kind  string `json:"kind"`
		Event any    `json:"event"`
	}{Kind: kind, Event: event})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化事件失败")
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布事件失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var _ Publisher = (*RedisPublisher)(nil)
