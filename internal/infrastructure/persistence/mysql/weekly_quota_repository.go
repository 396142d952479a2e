package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/quota"
)

// WeeklyQuotaRepository MySQL実装のWeeklyQuotaRepository
type WeeklyQuotaRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewWeeklyQuotaRepository 新しいWeeklyQuotaRepositoryを作成
func NewWeeklyQuotaRepository(db *DB) *WeeklyQuotaRepository {
	return &WeeklyQuotaRepository{
		db:     db,
		tracer: otel.Tracer("weekly-quota-repository"),
	}
}

// EnsureWeek 週の行が存在することを保証する
func (r *WeeklyQuotaRepository) EnsureWeek(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) error {
	ctx, span := r.tracer.Start(ctx, "WeeklyQuotaRepository.EnsureWeek")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.week_start", weekStartDate.Format("2006-01-02")),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "weekly_quotas"),
	)

	query := `
		INSERT IGNORE INTO weekly_quotas (week_start_date, accounts_created, limit_reached, created_at, updated_at)
		VALUES (?, 0, FALSE, NOW(), NOW())
	`

	_, err := r.db.pick(tx).ExecContext(ctx, query, weekStartDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to ensure weekly quota row: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "weekly quota row ensured")
	return nil
}

// IncrementIfBelowCap accounts_created < cap の場合のみアトミックに+1する
// 条件付きUPDATEはInnoDBの行ロック下で評価されるため、同時サインアップでも
// カウンターがcapを超えることはない
func (r *WeeklyQuotaRepository) IncrementIfBelowCap(ctx context.Context, tx *sql.Tx, weekStartDate time.Time, cap int) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "WeeklyQuotaRepository.IncrementIfBelowCap")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.week_start", weekStartDate.Format("2006-01-02")),
		attribute.Int("db.cap", cap),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "weekly_quotas"),
	)

	query := `
		UPDATE weekly_quotas
		SET accounts_created = accounts_created + 1, updated_at = NOW()
		WHERE week_start_date = ? AND accounts_created < ?
	`

	result, err := r.db.pick(tx).ExecContext(ctx, query, weekStartDate, cap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, fmt.Errorf("failed to increment weekly quota: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	span.SetAttributes(attribute.Bool("db.incremented", rowsAffected > 0))
	span.SetStatus(otelcodes.Ok, "weekly quota increment attempted")
	return rowsAffected > 0, nil
}

// MarkLimitReached limit_reachedフラグを立てる
func (r *WeeklyQuotaRepository) MarkLimitReached(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) error {
	ctx, span := r.tracer.Start(ctx, "WeeklyQuotaRepository.MarkLimitReached")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.week_start", weekStartDate.Format("2006-01-02")),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "weekly_quotas"),
	)

	query := `
		UPDATE weekly_quotas
		SET limit_reached = TRUE, updated_at = NOW()
		WHERE week_start_date = ?
	`

	_, err := r.db.pick(tx).ExecContext(ctx, query, weekStartDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to mark limit reached: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "limit reached marked")
	return nil
}

// FindByWeekStart 週開始日でカウンターを取得
func (r *WeeklyQuotaRepository) FindByWeekStart(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) (*quota.WeeklyQuota, error) {
	ctx, span := r.tracer.Start(ctx, "WeeklyQuotaRepository.FindByWeekStart")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.week_start", weekStartDate.Format("2006-01-02")),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "weekly_quotas"),
	)

	query := `
		SELECT week_start_date, accounts_created, limit_reached
		FROM weekly_quotas
		WHERE week_start_date = ?
	`

	var start time.Time
	var accountsCreated int
	var limitReached bool
	err := r.db.pick(tx).QueryRowContext(ctx, query, weekStartDate).Scan(&start, &accountsCreated, &limitReached)
	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "weekly quota not found")
		return nil, quota.ErrQuotaNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find weekly quota: %w", err)
	}

	q, err := quota.NewWeeklyQuota(start, accountsCreated, limitReached)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to reconstruct weekly quota: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "weekly quota found")
	return q, nil
}
