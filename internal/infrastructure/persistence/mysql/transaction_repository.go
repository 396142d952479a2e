package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/transaction"
)

// mysqlErrDuplicateEntry MySQLの一意制約違反エラーコード
const mysqlErrDuplicateEntry = 1062

// TransactionRepository MySQL実装のTransactionRepository
// xp_transactionsは追記専用: UPDATE/DELETEは発行しない
type TransactionRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewTransactionRepository 新しいTransactionRepositoryを作成
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		tracer: otel.Tracer("transaction-repository"),
	}
}

// Save トランザクションを保存
// 主キー衝突はErrDuplicateTransactionを返す（トレードIDの重複配信検出に使う）
func (r *TransactionRepository) Save(ctx context.Context, tx *sql.Tx, t *transaction.Transaction) error {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.transaction_id", t.TransactionID()),
		attribute.String("db.user_id", t.UserID()),
		attribute.String("db.kind", t.Kind().String()),
		attribute.Int64("db.amount", t.Amount()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "xp_transactions"),
	)

	query := `
		INSERT INTO xp_transactions (
			transaction_id, user_id, kind, amount,
			balance_before, balance_after, description, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var metadataJSON []byte
	var err error
	if t.Metadata() != nil {
		metadataJSON, err = json.Marshal(t.Metadata())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = r.db.pick(tx).ExecContext(ctx, query,
		t.TransactionID(),
		t.UserID(),
		t.Kind().String(),
		t.Amount(),
		t.BalanceBefore(),
		t.BalanceAfter(),
		t.Description(),
		string(metadataJSON),
		t.CreatedAt(),
	)

	if err != nil {
		if isDuplicateEntry(err) {
			span.SetStatus(otelcodes.Ok, "duplicate transaction")
			return transaction.ErrDuplicateTransaction
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "transaction saved")
	return nil
}

// FindByTransactionID トランザクションIDでトランザクションを取得
func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*transaction.Transaction, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.FindByTransactionID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.transaction_id", transactionID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "xp_transactions"),
	)

	query := `
		SELECT transaction_id, user_id, kind, amount,
			balance_before, balance_after, description, metadata, created_at
		FROM xp_transactions
		WHERE transaction_id = ?
	`

	t, err := r.scanOne(r.db.pick(nil).QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "transaction not found")
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "transaction found")
	return t, nil
}

// FindByUserID ユーザーIDでトランザクション履歴を取得（新しい順）
func (r *TransactionRepository) FindByUserID(ctx context.Context, userID string, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.FindByUserID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.Int("db.limit", filter.Limit),
		attribute.Int("db.offset", filter.Offset),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "xp_transactions"),
	)

	var conditions []string
	var args []interface{}

	conditions = append(conditions, "user_id = ?")
	args = append(args, userID)

	if filter.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind.String())
	}
	if filter.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf(`
		SELECT transaction_id, user_id, kind, amount,
			balance_before, balance_after, description, metadata, created_at
		FROM xp_transactions
		WHERE %s
		ORDER BY created_at DESC, transaction_id DESC
		LIMIT ? OFFSET ?
	`, strings.Join(conditions, " AND "))
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.pick(nil).QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	span.SetAttributes(attribute.Int("db.rows", len(transactions)))
	span.SetStatus(otelcodes.Ok, "transactions listed")
	return transactions, nil
}

// SumByKindForRange 期間内の種別ごとの件数と合計を集計
func (r *TransactionRepository) SumByKindForRange(ctx context.Context, from, to time.Time) ([]transaction.KindSum, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.SumByKindForRange")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "xp_transactions"),
	)

	query := `
		SELECT kind, COUNT(*), COALESCE(SUM(amount), 0)
		FROM xp_transactions
		WHERE created_at >= ? AND created_at < ?
		GROUP BY kind
	`

	rows, err := r.db.pick(nil).QueryContext(ctx, query, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	var sums []transaction.KindSum
	for rows.Next() {
		var kindStr string
		var sum transaction.KindSum
		if err := rows.Scan(&kindStr, &sum.Count, &sum.Total); err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan kind sum: %w", err)
		}
		kind, err := transaction.NewTransactionKind(kindStr)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction kind: %w", err)
		}
		sum.Kind = kind
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate kind sums: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "transactions summed")
	return sums, nil
}

// rowScanner *sql.Rowと*sql.Rowsの共通インターフェース
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOne 1行をTransactionエンティティに復元する
func (r *TransactionRepository) scanOne(row rowScanner) (*transaction.Transaction, error) {
	var transactionID, userID, kindStr, description string
	var amount, balanceBefore, balanceAfter int64
	var metadataJSON sql.NullString
	var createdAt time.Time

	err := row.Scan(
		&transactionID,
		&userID,
		&kindStr,
		&amount,
		&balanceBefore,
		&balanceAfter,
		&description,
		&metadataJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	kind, err := transaction.NewTransactionKind(kindStr)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction kind: %w", err)
	}

	var metadata map[string]interface{}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return transaction.Reconstruct(
		transactionID,
		userID,
		kind,
		amount,
		balanceBefore,
		balanceAfter,
		description,
		metadata,
		createdAt,
	), nil
}

// isDuplicateEntry MySQLの一意制約違反かどうかを判定する
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return false
}
