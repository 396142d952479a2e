package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/shadowstat"
)

// ProcessedTradeRepository MySQL実装のProcessedTradeRepository
// trade_idの主キーが同一トレードの再処理を防ぐ
type ProcessedTradeRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewProcessedTradeRepository 新しいProcessedTradeRepositoryを作成
func NewProcessedTradeRepository(db *DB) *ProcessedTradeRepository {
	return &ProcessedTradeRepository{
		db:     db,
		tracer: otel.Tracer("processed-trade-repository"),
	}
}

// Mark トレードを処理済みとして記録する
func (r *ProcessedTradeRepository) Mark(ctx context.Context, tx *sql.Tx, tradeID, userID string) error {
	ctx, span := r.tracer.Start(ctx, "ProcessedTradeRepository.Mark")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.trade_id", tradeID),
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "processed_trades"),
	)

	query := `
		INSERT INTO processed_trades (trade_id, user_id, processed_at)
		VALUES (?, ?, NOW())
	`

	_, err := r.db.pick(tx).ExecContext(ctx, query, tradeID, userID)
	if err != nil {
		if isDuplicateEntry(err) {
			span.SetStatus(otelcodes.Ok, "trade already processed")
			return shadowstat.ErrDuplicateTrade
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to mark trade processed: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "trade marked processed")
	return nil
}
