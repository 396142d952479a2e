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

	"press-pass-server/internal/domain/shadowstat"
)

// ShadowStatRepository MySQL実装のShadowStatRepository
type ShadowStatRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewShadowStatRepository 新しいShadowStatRepositoryを作成
func NewShadowStatRepository(db *DB) *ShadowStatRepository {
	return &ShadowStatRepository{
		db:     db,
		tracer: otel.Tracer("shadow-stat-repository"),
	}
}

// FindByUserID ユーザーIDでシャドウ統計を取得
func (r *ShadowStatRepository) FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*shadowstat.ShadowStat, error) {
	ctx, span := r.tracer.Start(ctx, "ShadowStatRepository.FindByUserID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "shadow_stats"),
	)

	query := `
		SELECT user_id, xp_earned_today, trades_executed_today,
			wins_today, losses_today, total_resets, last_reset_at, version
		FROM shadow_stats
		WHERE user_id = ?
	`

	stat, err := r.scanStat(r.db.pick(tx).QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "shadow stat not found")
		return nil, shadowstat.ErrShadowStatNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find shadow stat: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "shadow stat found")
	return stat, nil
}

// FindAllWithXPToday xp_earned_today > 0 の行をすべて取得
func (r *ShadowStatRepository) FindAllWithXPToday(ctx context.Context, tx *sql.Tx) ([]*shadowstat.ShadowStat, error) {
	ctx, span := r.tracer.Start(ctx, "ShadowStatRepository.FindAllWithXPToday")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "shadow_stats"),
	)

	query := `
		SELECT user_id, xp_earned_today, trades_executed_today,
			wins_today, losses_today, total_resets, last_reset_at, version
		FROM shadow_stats
		WHERE xp_earned_today > 0
		ORDER BY user_id
	`

	rows, err := r.db.pick(tx).QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list shadow stats: %w", err)
	}
	defer rows.Close()

	var stats []*shadowstat.ShadowStat
	for rows.Next() {
		stat, err := r.scanStat(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan shadow stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate shadow stats: %w", err)
	}

	span.SetAttributes(attribute.Int("db.rows", len(stats)))
	span.SetStatus(otelcodes.Ok, "shadow stats listed")
	return stats, nil
}

// Save シャドウ統計を保存（楽観的ロック対応）
func (r *ShadowStatRepository) Save(ctx context.Context, tx *sql.Tx, stat *shadowstat.ShadowStat) error {
	ctx, span := r.tracer.Start(ctx, "ShadowStatRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", stat.UserID()),
		attribute.Int("db.version", stat.Version()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "shadow_stats"),
	)

	query := `
		UPDATE shadow_stats
		SET xp_earned_today = ?, trades_executed_today = ?,
			wins_today = ?, losses_today = ?, total_resets = ?,
			last_reset_at = ?, version = ?, updated_at = NOW()
		WHERE user_id = ? AND version = ?
	`

	// エンティティはミューテーション時にversionを先にインクリメント済み
	result, err := r.db.pick(tx).ExecContext(ctx, query,
		stat.XPEarnedToday(),
		stat.TradesExecutedToday(),
		stat.WinsToday(),
		stat.LossesToday(),
		stat.TotalResets(),
		stat.LastResetAt(),
		stat.Version(),
		stat.UserID(),
		stat.Version()-1,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save shadow stat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Error, "concurrency conflict")
		return shadowstat.ErrConcurrencyConflict
	}

	span.SetStatus(otelcodes.Ok, "shadow stat saved")
	return nil
}

// Create 新しいシャドウ統計を作成
func (r *ShadowStatRepository) Create(ctx context.Context, tx *sql.Tx, stat *shadowstat.ShadowStat) error {
	ctx, span := r.tracer.Start(ctx, "ShadowStatRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", stat.UserID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "shadow_stats"),
	)

	query := `
		INSERT INTO shadow_stats (
			user_id, xp_earned_today, trades_executed_today,
			wins_today, losses_today, total_resets, last_reset_at,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`

	_, err := r.db.pick(tx).ExecContext(ctx, query,
		stat.UserID(),
		stat.XPEarnedToday(),
		stat.TradesExecutedToday(),
		stat.WinsToday(),
		stat.LossesToday(),
		stat.TotalResets(),
		stat.LastResetAt(),
		stat.Version(),
	)
	if err != nil {
		// 同一ユーザーの初回イベントが並行して走った場合。
		// リトライすれば確定済みの行が見つかる
		if isDuplicateEntry(err) {
			span.SetStatus(otelcodes.Error, "concurrent shadow stat create")
			return shadowstat.ErrConcurrencyConflict
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to create shadow stat: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "shadow stat created")
	return nil
}

// scanStat 1行をShadowStatエンティティに復元する
func (r *ShadowStatRepository) scanStat(row rowScanner) (*shadowstat.ShadowStat, error) {
	var userID string
	var xpEarnedToday int64
	var tradesExecutedToday, winsToday, lossesToday, totalResets, version int
	var lastResetAt sql.NullTime

	err := row.Scan(
		&userID,
		&xpEarnedToday,
		&tradesExecutedToday,
		&winsToday,
		&lossesToday,
		&totalResets,
		&lastResetAt,
		&version,
	)
	if err != nil {
		return nil, err
	}

	var resetAt *time.Time
	if lastResetAt.Valid {
		t := lastResetAt.Time
		resetAt = &t
	}

	stat, err := shadowstat.NewShadowStat(userID, xpEarnedToday, tradesExecutedToday, winsToday, lossesToday, totalResets, resetAt, version)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct shadow stat: %w", err)
	}
	return stat, nil
}
