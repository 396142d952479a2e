package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
)

// EventHandlers 受信イベントごとの処理関数
// 重複配信はハンドラー側が冪等に吸収する（エラーを返さない）
type EventHandlers struct {
	TradeCompleted func(ctx context.Context, event TradeCompletedEvent) error
	TierChanged    func(ctx context.Context, event TierChangedEvent) error
	TrialStarted   func(ctx context.Context, event TrialStartedEvent) error
}

// EventSubscriber JetStreamの受信サブジェクトを購読しハンドラーへ渡す
type EventSubscriber struct {
	js        jetstream.JetStream
	handlers  EventHandlers
	logger    *otelinfra.Logger
	tracer    trace.Tracer
	consumers []jetstream.ConsumeContext
}

// NewEventSubscriber 新しいEventSubscriberを作成
func NewEventSubscriber(js jetstream.JetStream, handlers EventHandlers, logger *otelinfra.Logger) *EventSubscriber {
	return &EventSubscriber{
		js:       js,
		handlers: handlers,
		logger:   logger,
		tracer:   otel.Tracer("event-subscriber"),
	}
}

// Subscribe すべての受信サブジェクトに対して永続コンシューマーを作成する
// 明示ACK、最大5回まで再配信
func (s *EventSubscriber) Subscribe(ctx context.Context) error {
	subjects := []struct {
		subject      string
		consumerName string
		handle       func(ctx context.Context, data []byte) error
	}{
		{SubjectTradeCompleted, "press-pass-trades", s.handleTradeCompleted},
		{SubjectTierChanged, "press-pass-tiers", s.handleTierChanged},
		{SubjectTrialStarted, "press-pass-trials", s.handleTrialStarted},
	}

	for _, sub := range subjects {
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamInbound, jetstream.ConsumerConfig{
			Durable:       sub.consumerName,
			FilterSubject: sub.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			s.logger.Error(ctx, "failed to create consumer", err, map[string]interface{}{
				"consumer": sub.consumerName,
			})
			return err
		}

		handle := sub.handle
		subject := sub.subject
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			msgCtx, span := s.tracer.Start(context.Background(), "EventSubscriber.handle")
			defer span.End()

			if err := handle(msgCtx, msg.Data()); err != nil {
				span.RecordError(err)
				s.logger.Warn(msgCtx, "event handling failed, will retry", map[string]interface{}{
					"subject": subject,
					"error":   err.Error(),
				})
				msg.Nak()
				return
			}
			msg.Ack()
		})
		if err != nil {
			return err
		}

		s.consumers = append(s.consumers, consumerContext)
		s.logger.Info(ctx, "subscribed", map[string]interface{}{
			"subject":  sub.subject,
			"consumer": sub.consumerName,
		})
	}

	return nil
}

// Stop すべてのコンシューマーを停止する
func (s *EventSubscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
}

func (s *EventSubscriber) handleTradeCompleted(ctx context.Context, data []byte) error {
	var event TradeCompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// 不正なペイロードは再配信しても成功しないため捨てる
		s.logger.Warn(ctx, "dropping malformed trade event", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return s.handlers.TradeCompleted(ctx, event)
}

func (s *EventSubscriber) handleTierChanged(ctx context.Context, data []byte) error {
	var event TierChangedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn(ctx, "dropping malformed tier event", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return s.handlers.TierChanged(ctx, event)
}

func (s *EventSubscriber) handleTrialStarted(ctx context.Context, data []byte) error {
	var event TrialStartedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn(ctx, "dropping malformed trial event", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return s.handlers.TrialStarted(ctx, event)
}
