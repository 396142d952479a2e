package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventPublisher 処理済みイベントをJetStreamへ配信する
type EventPublisher struct {
	js     jetstream.JetStream
	tracer trace.Tracer
}

// NewEventPublisher 新しいEventPublisherを作成
func NewEventPublisher(js jetstream.JetStream) *EventPublisher {
	return &EventPublisher{
		js:     js,
		tracer: otel.Tracer("event-publisher"),
	}
}

// PublishResetWarning リセット警告イベントを配信
func (p *EventPublisher) PublishResetWarning(ctx context.Context, event ResetWarningEvent) error {
	return p.publish(ctx, SubjectResetWarning, event)
}

// PublishNightlyResetSummary 夜間リセットサマリーイベントを配信
func (p *EventPublisher) PublishNightlyResetSummary(ctx context.Context, event NightlyResetSummaryEvent) error {
	return p.publish(ctx, SubjectNightlyResetSummary, event)
}

// PublishConversionFinalized コンバージョン確定イベントを配信
func (p *EventPublisher) PublishConversionFinalized(ctx context.Context, event ConversionFinalizedEvent) error {
	return p.publish(ctx, SubjectConversionFinalized, event)
}

// NoopPublisher NATS無効時に使うプレースホルダー
type NoopPublisher struct{}

// PublishResetWarning 何もしない
func (NoopPublisher) PublishResetWarning(ctx context.Context, event ResetWarningEvent) error {
	return nil
}

// PublishNightlyResetSummary 何もしない
func (NoopPublisher) PublishNightlyResetSummary(ctx context.Context, event NightlyResetSummaryEvent) error {
	return nil
}

// PublishConversionFinalized 何もしない
func (NoopPublisher) PublishConversionFinalized(ctx context.Context, event ConversionFinalizedEvent) error {
	return nil
}

func (p *EventPublisher) publish(ctx context.Context, subject string, event interface{}) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.publish")
	defer span.End()

	span.SetAttributes(attribute.String("messaging.subject", subject))

	data, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	span.SetStatus(otelcodes.Ok, "event published")
	return nil
}
