package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
)

// ストリーム名
const (
	StreamInbound  = "PRESS_PASS_INBOUND"
	StreamOutbound = "PRESS_PASS_EVENTS"
)

// Connect NATSへ接続しJetStreamコンテキストを返す
func Connect(url string, logger *otelinfra.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(context.Background(), "NATS disconnected", map[string]interface{}{
				"error": fmt.Sprintf("%v", err),
			})
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info(context.Background(), "NATS reconnected", nil)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return nc, js, nil
}

// EnsureStreams 必要なJetStreamストリームを作成する
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      StreamInbound,
			Subjects:  []string{"press_pass.trades.>", "press_pass.tiers.>", "press_pass.trials.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      StreamOutbound,
			Subjects:  []string{"press_pass.events.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}

	return nil
}
