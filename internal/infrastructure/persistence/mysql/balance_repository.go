package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/ledger"
)

// BalanceRepository MySQL実装のBalanceRepository
type BalanceRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewBalanceRepository 新しいBalanceRepositoryを作成
func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{
		db:     db,
		tracer: otel.Tracer("balance-repository"),
	}
}

// FindByUserID ユーザーIDで残高を取得
func (r *BalanceRepository) FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*ledger.Balance, error) {
	ctx, span := r.tracer.Start(ctx, "BalanceRepository.FindByUserID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "xp_balances"),
	)

	query := `
		SELECT user_id, current_balance, lifetime_earned, lifetime_spent, prestige_level, version
		FROM xp_balances
		WHERE user_id = ?
	`

	var dbUserID string
	var currentBalance, lifetimeEarned, lifetimeSpent int64
	var prestigeLevel, version int

	err := r.db.pick(tx).QueryRowContext(ctx, query, userID).Scan(
		&dbUserID,
		&currentBalance,
		&lifetimeEarned,
		&lifetimeSpent,
		&prestigeLevel,
		&version,
	)

	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "balance not found")
		return nil, ledger.ErrBalanceNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find balance: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("db.current_balance", currentBalance),
		attribute.Int("db.version", version),
	)
	span.SetStatus(otelcodes.Ok, "balance found")

	b, err := ledger.NewBalance(dbUserID, currentBalance, lifetimeEarned, lifetimeSpent, prestigeLevel, version)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct balance entity: %w", err)
	}

	return b, nil
}

// Save 残高を保存（更新、楽観的ロック対応）
// エンティティ側でversionがインクリメント済みのため、WHERE句はversion-1と比較する
func (r *BalanceRepository) Save(ctx context.Context, tx *sql.Tx, b *ledger.Balance) error {
	ctx, span := r.tracer.Start(ctx, "BalanceRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", b.UserID()),
		attribute.Int64("db.current_balance", b.CurrentBalance()),
		attribute.Int("db.version", b.Version()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "xp_balances"),
	)

	query := `
		UPDATE xp_balances
		SET current_balance = ?, lifetime_earned = ?, lifetime_spent = ?,
			prestige_level = ?, version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?
	`

	result, err := r.db.pick(tx).ExecContext(ctx, query,
		b.CurrentBalance(),
		b.LifetimeEarned(),
		b.LifetimeSpent(),
		b.PrestigeLevel(),
		b.Version(),
		b.UserID(),
		b.Version()-1,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Error, "optimistic lock conflict")
		return ledger.ErrConcurrencyConflict
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	span.SetStatus(otelcodes.Ok, "balance saved")
	return nil
}

// Create 新しい残高を作成（初回のXP獲得イベントで呼ばれる）
func (r *BalanceRepository) Create(ctx context.Context, tx *sql.Tx, b *ledger.Balance) error {
	ctx, span := r.tracer.Start(ctx, "BalanceRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", b.UserID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "xp_balances"),
	)

	query := `
		INSERT INTO xp_balances (user_id, current_balance, lifetime_earned, lifetime_spent, prestige_level, version)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.pick(tx).ExecContext(ctx, query,
		b.UserID(),
		b.CurrentBalance(),
		b.LifetimeEarned(),
		b.LifetimeSpent(),
		b.PrestigeLevel(),
		b.Version(),
	)

	if err != nil {
		// 同一ユーザーの初回イベントが並行して走った場合。
		// リトライすれば確定済みの行が見つかる
		if isDuplicateEntry(err) {
			span.SetStatus(otelcodes.Error, "concurrent balance create")
			return ledger.ErrConcurrencyConflict
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to create balance: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "balance created")
	return nil
}
