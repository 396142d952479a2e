package mysql

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/joblog"
)

// JobExecutionRepository MySQL実装のJobExecutionRepository
// ジョブログは必ずプールへ直接書く（バッチ本体のロールバックに巻き込まない）
type JobExecutionRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewJobExecutionRepository 新しいJobExecutionRepositoryを作成
func NewJobExecutionRepository(db *DB) *JobExecutionRepository {
	return &JobExecutionRepository{
		db:     db,
		tracer: otel.Tracer("job-execution-repository"),
	}
}

// Save ジョブ実行記録を保存
func (r *JobExecutionRepository) Save(ctx context.Context, execution *joblog.JobExecution) error {
	ctx, span := r.tracer.Start(ctx, "JobExecutionRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.job_name", execution.JobName()),
		attribute.Bool("db.success", execution.Success()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "job_executions"),
	)

	query := `
		INSERT INTO job_executions (job_name, executed_at, success, records_affected, error_message)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.pick(nil).ExecContext(ctx, query,
		execution.JobName(),
		execution.ExecutedAt(),
		execution.Success(),
		execution.RecordsAffected(),
		execution.ErrorMessage(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save job execution: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "job execution saved")
	return nil
}

// FindByJobName ジョブ名と期間で実行記録を検索（新しい順）
func (r *JobExecutionRepository) FindByJobName(ctx context.Context, jobName string, from, to time.Time, limit int) ([]*joblog.JobExecution, error) {
	ctx, span := r.tracer.Start(ctx, "JobExecutionRepository.FindByJobName")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.job_name", jobName),
		attribute.Int("db.limit", limit),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "job_executions"),
	)

	query := `
		SELECT job_name, executed_at, success, records_affected, error_message
		FROM job_executions
		WHERE job_name = ? AND executed_at >= ? AND executed_at < ?
		ORDER BY executed_at DESC
		LIMIT ?
	`

	rows, err := r.db.pick(nil).QueryContext(ctx, query, jobName, from, to, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list job executions: %w", err)
	}
	defer rows.Close()

	var executions []*joblog.JobExecution
	for rows.Next() {
		var name, errorMessage string
		var executedAt time.Time
		var success bool
		var recordsAffected int
		if err := rows.Scan(&name, &executedAt, &success, &recordsAffected, &errorMessage); err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan job execution: %w", err)
		}
		execution, err := joblog.NewJobExecution(name, executedAt, success, recordsAffected, errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct job execution: %w", err)
		}
		executions = append(executions, execution)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate job executions: %w", err)
	}

	span.SetAttributes(attribute.Int("db.rows", len(executions)))
	span.SetStatus(otelcodes.Ok, "job executions listed")
	return executions, nil
}

// CountSuccessForDay 指定ジョブが指定UTC日に成功した回数を返す
func (r *JobExecutionRepository) CountSuccessForDay(ctx context.Context, jobName string, day time.Time) (int, error) {
	ctx, span := r.tracer.Start(ctx, "JobExecutionRepository.CountSuccessForDay")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.job_name", jobName),
		attribute.String("db.day", day.Format("2006-01-02")),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "job_executions"),
	)

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT COUNT(*)
		FROM job_executions
		WHERE job_name = ? AND success = TRUE AND executed_at >= ? AND executed_at < ?
	`

	var count int
	err := r.db.pick(nil).QueryRowContext(ctx, query, jobName, dayStart, dayEnd).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("failed to count job successes: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "job successes counted")
	return count, nil
}
