package queue

import (
	"context"
	"encoding/json"
	"time"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/proof"

	"github.com/google/uuid"
)

// Envelope 是异步提交通道上的消息体，一条消息对应一次证明提交。
type Envelope struct {
	ID         string      `json:"id"`
	Submitter  string      `json:"submitter"`
	PaidAmount uint64      `json:"paid_amount"`
	Proof      proof.Proof `json:"proof"`
	EnqueuedAt int64       `json:"enqueued_at"`
}

// NewEnvelope 为一次提交生成消息体。
func NewEnvelope(submitter string, p *proof.Proof, paidAmount uint64) (*Envelope, error) {
	if p == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "proof 不能为空")
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Submitter:  submitter,
		PaidAmount: paidAmount,
		Proof:      *p.Clone(),
		EnqueuedAt: time.Now().Unix(),
	}, nil
}

// Encode 将消息体序列化为队列负载。
func (e *Envelope) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化提交消息失败")
	}
	return payload, nil
}

// DecodeEnvelope 解析队列负载。
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析提交消息失败")
	}
	return &envelope, nil
}

// Handler 处理来自消息队列的提交负载。
type Handler func(ctx context.Context, payload []byte) error

// Producer 负责向队列投递提交。
type Producer interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Consumer 负责从队列中消费提交。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
