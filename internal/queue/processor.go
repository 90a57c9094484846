package queue

import (
	"context"
	"log/slog"
	"time"

	xerrors "ZKIPFS-Registry/internal/errors"
	"ZKIPFS-Registry/internal/observability/alerting"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/pkg/logger"
)

// Submitter 定义处理器所需的注册中心能力。
type Submitter interface {
	Submit(ctx context.Context, p *proof.Proof, paidAmount uint64, submitter string) (*proof.VerificationResult, error)
}

// Processor 消费提交队列并交给注册中心验证。
type Processor struct {
	registry    Submitter
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = log
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(registry Submitter, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		registry:    registry,
		consumer:    consumer,
		workerCount: 1,
		logger:      logger.Named("queue"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动提交处理循环，直到上下文取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置提交消费者")
	}
	if p.registry == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置注册中心")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, payload []byte) error {
	envelope, err := DecodeEnvelope(payload)
	if err != nil {
		// 无法解析的消息直接丢弃，重投也不会成功。
		p.logger.Error("丢弃无法解析的提交消息", slog.Any("error", err))
		return nil
	}

	result, err := p.registry.Submit(ctx, &envelope.Proof, envelope.PaidAmount, envelope.Submitter)
	if err != nil {
		code := xerrors.CodeOf(err)
		if xerrors.RetryableError(err) {
			p.logger.Warn("提交处理失败, 等待重投",
				slog.String("envelope_id", envelope.ID),
				slog.String("submitter", envelope.Submitter),
				slog.String("error_code", string(code)),
			)
			return err
		}
		logger.Audit().Warn("异步提交被拒绝",
			slog.String("envelope_id", envelope.ID),
			slog.String("proof_id", envelope.Proof.ID),
			slog.String("submitter", envelope.Submitter),
			slog.String("error_code", string(code)),
			slog.String("error", err.Error()),
		)
		p.emitAlert(ctx, envelope, code, err)
		return nil
	}

	logger.Audit().Info("异步提交完成",
		slog.String("envelope_id", envelope.ID),
		slog.String("identity", result.Identity.Hex()),
		slog.Bool("is_valid", result.IsValid),
		slog.String("submitter", envelope.Submitter),
	)
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, envelope *Envelope, code xerrors.Code, cause error) {
	if p == nil || p.alerter == nil || !xerrors.ShouldAlert(cause) {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:      code,
		Message:   cause.Error(),
		Severity:  attrs.Severity,
		ProofID:   envelope.Proof.ID,
		Submitter: envelope.Submitter,
		Metadata: map[string]string{
			"envelope_id": envelope.ID,
		},
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("envelope_id", envelope.ID),
		)
	}
}
