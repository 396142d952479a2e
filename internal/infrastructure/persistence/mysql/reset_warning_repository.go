package mysql

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ResetWarningRepository MySQL実装のWarningLogRepository
// (user_id, warn_date, threshold_minutes)の複合主キーが重複送信を防ぐ
type ResetWarningRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewResetWarningRepository 新しいResetWarningRepositoryを作成
func NewResetWarningRepository(db *DB) *ResetWarningRepository {
	return &ResetWarningRepository{
		db:     db,
		tracer: otel.Tracer("reset-warning-repository"),
	}
}

// MarkWarned 警告送信を記録する
func (r *ResetWarningRepository) MarkWarned(ctx context.Context, userID string, warnDate time.Time, thresholdMinutes int) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "ResetWarningRepository.MarkWarned")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.warn_date", warnDate.Format("2006-01-02")),
		attribute.Int("db.threshold_minutes", thresholdMinutes),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "reset_warnings"),
	)

	query := `
		INSERT INTO reset_warnings (user_id, warn_date, threshold_minutes, created_at)
		VALUES (?, ?, ?, NOW())
	`

	_, err := r.db.pick(nil).ExecContext(ctx, query, userID, warnDate.Format("2006-01-02"), thresholdMinutes)
	if err != nil {
		if isDuplicateEntry(err) {
			span.SetStatus(otelcodes.Ok, "already warned")
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, fmt.Errorf("failed to mark warning: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "warning marked")
	return true, nil
}

// Unmark 警告送信の記録を取り消す
func (r *ResetWarningRepository) Unmark(ctx context.Context, userID string, warnDate time.Time, thresholdMinutes int) error {
	ctx, span := r.tracer.Start(ctx, "ResetWarningRepository.Unmark")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.warn_date", warnDate.Format("2006-01-02")),
		attribute.Int("db.threshold_minutes", thresholdMinutes),
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.table", "reset_warnings"),
	)

	query := `
		DELETE FROM reset_warnings
		WHERE user_id = ? AND warn_date = ? AND threshold_minutes = ?
	`

	_, err := r.db.pick(nil).ExecContext(ctx, query, userID, warnDate.Format("2006-01-02"), thresholdMinutes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to unmark warning: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "warning unmarked")
	return nil
}
