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

	"press-pass-server/internal/domain/conversion"
)

// ConversionRecordRepository MySQL実装のConversionRecordRepository
type ConversionRecordRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewConversionRecordRepository 新しいConversionRecordRepositoryを作成
func NewConversionRecordRepository(db *DB) *ConversionRecordRepository {
	return &ConversionRecordRepository{
		db:     db,
		tracer: otel.Tracer("conversion-record-repository"),
	}
}

// FindByUserID ユーザーIDで記録を取得
func (r *ConversionRecordRepository) FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*conversion.ConversionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "ConversionRecordRepository.FindByUserID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "conversion_records"),
	)

	query := `
		SELECT user_id, press_pass_start_date, press_pass_end_date,
			enlisted_after, enlisted_date, enlisted_tier,
			time_to_enlist_days, xp_preserved, source, campaign, version
		FROM conversion_records
		WHERE user_id = ?
	`

	record, err := r.scanRecord(r.db.pick(tx).QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "conversion record not found")
		return nil, conversion.ErrRecordNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find conversion record: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "conversion record found")
	return record, nil
}

// Create 新しい記録を作成
// 主キー衝突はErrDuplicateRecordを返す（trial_started重複配信の検出に使う）
func (r *ConversionRecordRepository) Create(ctx context.Context, tx *sql.Tx, record *conversion.ConversionRecord) error {
	ctx, span := r.tracer.Start(ctx, "ConversionRecordRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", record.UserID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "conversion_records"),
	)

	query := `
		INSERT INTO conversion_records (
			user_id, press_pass_start_date, press_pass_end_date,
			enlisted_after, enlisted_date, enlisted_tier,
			time_to_enlist_days, xp_preserved, source, campaign,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`

	_, err := r.db.pick(tx).ExecContext(ctx, query,
		record.UserID(),
		record.PressPassStartDate(),
		record.PressPassEndDate(),
		record.EnlistedAfter(),
		record.EnlistedDate(),
		tierString(record.EnlistedTier()),
		record.TimeToEnlistDays(),
		record.XPPreserved(),
		record.Source(),
		record.Campaign(),
		record.Version(),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			span.SetStatus(otelcodes.Ok, "duplicate conversion record")
			return conversion.ErrDuplicateRecord
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to create conversion record: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "conversion record created")
	return nil
}

// Save 記録を保存（楽観的ロック対応）
func (r *ConversionRecordRepository) Save(ctx context.Context, tx *sql.Tx, record *conversion.ConversionRecord) error {
	ctx, span := r.tracer.Start(ctx, "ConversionRecordRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", record.UserID()),
		attribute.Int("db.version", record.Version()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "conversion_records"),
	)

	query := `
		UPDATE conversion_records
		SET press_pass_end_date = ?, enlisted_after = ?, enlisted_date = ?,
			enlisted_tier = ?, time_to_enlist_days = ?, xp_preserved = ?,
			version = ?, updated_at = NOW()
		WHERE user_id = ? AND version = ?
	`

	result, err := r.db.pick(tx).ExecContext(ctx, query,
		record.PressPassEndDate(),
		record.EnlistedAfter(),
		record.EnlistedDate(),
		tierString(record.EnlistedTier()),
		record.TimeToEnlistDays(),
		record.XPPreserved(),
		record.Version(),
		record.UserID(),
		record.Version()-1,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save conversion record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Error, "concurrency conflict")
		return conversion.ErrConcurrencyConflict
	}

	span.SetStatus(otelcodes.Ok, "conversion record saved")
	return nil
}

// MarkExpiredBefore 指定日時より前に開始し未確定のままの記録を一括で期限切れにする
func (r *ConversionRecordRepository) MarkExpiredBefore(ctx context.Context, tx *sql.Tx, startedBefore, endedAt time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ConversionRecordRepository.MarkExpiredBefore")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "conversion_records"),
	)

	query := `
		UPDATE conversion_records
		SET press_pass_end_date = ?, version = version + 1, updated_at = NOW()
		WHERE press_pass_start_date < ?
			AND enlisted_after = FALSE
			AND press_pass_end_date IS NULL
	`

	result, err := r.db.pick(tx).ExecContext(ctx, query, endedAt, startedBefore)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("failed to mark expired records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	span.SetAttributes(attribute.Int64("db.rows", rowsAffected))
	span.SetStatus(otelcodes.Ok, "expired records marked")
	return rowsAffected, nil
}

// CountFunnel ファネル集計を取得
func (r *ConversionRecordRepository) CountFunnel(ctx context.Context) (*conversion.FunnelStats, error) {
	ctx, span := r.tracer.Start(ctx, "ConversionRecordRepository.CountFunnel")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "conversion_records"),
	)

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN enlisted_after = FALSE AND press_pass_end_date IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN enlisted_after = TRUE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN enlisted_after = FALSE AND press_pass_end_date IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN enlisted_after = TRUE THEN time_to_enlist_days END), 0)
		FROM conversion_records
	`

	var stats conversion.FunnelStats
	err := r.db.pick(nil).QueryRowContext(ctx, query).Scan(
		&stats.TrialActive,
		&stats.Converted,
		&stats.ExpiredUnconverted,
		&stats.AvgTimeToEnlist,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to count funnel: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "funnel counted")
	return &stats, nil
}

// CountConvertedInRange 期間内に転換した件数を取得
func (r *ConversionRecordRepository) CountConvertedInRange(ctx context.Context, from, to time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ConversionRecordRepository.CountConvertedInRange")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "conversion_records"),
	)

	query := `
		SELECT COUNT(*)
		FROM conversion_records
		WHERE enlisted_after = TRUE AND enlisted_date >= ? AND enlisted_date < ?
	`

	var count int64
	err := r.db.pick(nil).QueryRowContext(ctx, query, from, to).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "conversions counted")
	return count, nil
}

// scanRecord 1行をConversionRecordエンティティに復元する
func (r *ConversionRecordRepository) scanRecord(row rowScanner) (*conversion.ConversionRecord, error) {
	var userID, source, campaign string
	var startDate time.Time
	var endDate, enlistedDate sql.NullTime
	var enlistedAfter bool
	var enlistedTier sql.NullString
	var timeToEnlistDays sql.NullInt64
	var xpPreserved sql.NullInt64
	var version int

	err := row.Scan(
		&userID,
		&startDate,
		&endDate,
		&enlistedAfter,
		&enlistedDate,
		&enlistedTier,
		&timeToEnlistDays,
		&xpPreserved,
		&source,
		&campaign,
		&version,
	)
	if err != nil {
		return nil, err
	}

	var endPtr, enlistedPtr *time.Time
	if endDate.Valid {
		t := endDate.Time
		endPtr = &t
	}
	if enlistedDate.Valid {
		t := enlistedDate.Time
		enlistedPtr = &t
	}

	var tierPtr *conversion.Tier
	if enlistedTier.Valid && enlistedTier.String != "" {
		tier, err := conversion.NewTier(enlistedTier.String)
		if err != nil {
			return nil, fmt.Errorf("invalid tier: %w", err)
		}
		tierPtr = &tier
	}

	var daysPtr *int
	if timeToEnlistDays.Valid {
		d := int(timeToEnlistDays.Int64)
		daysPtr = &d
	}

	var xpPtr *int64
	if xpPreserved.Valid {
		xp := xpPreserved.Int64
		xpPtr = &xp
	}

	return conversion.Reconstruct(
		userID,
		startDate,
		endPtr,
		enlistedAfter,
		enlistedPtr,
		tierPtr,
		daysPtr,
		xpPtr,
		source,
		campaign,
		version,
	), nil
}

// tierString NULL許容カラム向けにTierポインタを*stringへ変換する
func tierString(t *conversion.Tier) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}
