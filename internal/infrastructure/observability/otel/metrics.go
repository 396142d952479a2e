package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics メトリクス定義
type Metrics struct {
	// XPトランザクション数
	XPTransactionCount metric.Int64Counter

	// XP残高の分布
	XPBalance metric.Int64Gauge

	// リセットで消失したXP量
	XPBurnedTotal metric.Int64Counter

	// リセット警告の送信数
	ResetWarningCount metric.Int64Counter

	// コンバージョン確定数
	ConversionCount metric.Int64Counter

	// 週次クォータによる拒否数
	QuotaRejectionCount metric.Int64Counter

	// バッチジョブの実行時間
	JobDuration metric.Float64Histogram

	// リクエスト数
	RequestCount metric.Int64Counter

	// レスポンス時間
	ResponseTime metric.Float64Histogram

	// エラー率
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	xpTransactionCount, err := meter.Int64Counter(
		"xp_transactions_total",
		metric.WithDescription("Total number of XP ledger transactions"),
	)
	if err != nil {
		return nil, err
	}

	xpBalance, err := meter.Int64Gauge(
		"xp_balance",
		metric.WithDescription("XP balance"),
	)
	if err != nil {
		return nil, err
	}

	xpBurnedTotal, err := meter.Int64Counter(
		"xp_burned_total",
		metric.WithDescription("Total XP removed by nightly resets"),
	)
	if err != nil {
		return nil, err
	}

	resetWarningCount, err := meter.Int64Counter(
		"reset_warnings_total",
		metric.WithDescription("Total number of reset warnings published"),
	)
	if err != nil {
		return nil, err
	}

	conversionCount, err := meter.Int64Counter(
		"conversions_total",
		metric.WithDescription("Total number of finalized conversions"),
	)
	if err != nil {
		return nil, err
	}

	quotaRejectionCount, err := meter.Int64Counter(
		"quota_rejections_total",
		metric.WithDescription("Total number of signups rejected by the weekly quota"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Batch job duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	requestCount, err := meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of requests"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"response_time_seconds",
		metric.WithDescription("Response time in seconds"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		XPTransactionCount:  xpTransactionCount,
		XPBalance:           xpBalance,
		XPBurnedTotal:       xpBurnedTotal,
		ResetWarningCount:   resetWarningCount,
		ConversionCount:     conversionCount,
		QuotaRejectionCount: quotaRejectionCount,
		JobDuration:         jobDuration,
		RequestCount:        requestCount,
		ResponseTime:        responseTime,
		ErrorCount:          errorCount,
	}, nil
}

// RecordXPTransaction XPトランザクションを記録
func (m *Metrics) RecordXPTransaction(ctx context.Context, kind string) {
	m.XPTransactionCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
		),
	)
}

// RecordXPBalance XP残高を記録
func (m *Metrics) RecordXPBalance(ctx context.Context, userID string, balance int64) {
	m.XPBalance.Record(ctx, balance,
		metric.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
}

// RecordXPBurned リセットで消失したXPを記録
func (m *Metrics) RecordXPBurned(ctx context.Context, amount int64) {
	m.XPBurnedTotal.Add(ctx, amount)
}

// RecordResetWarning リセット警告の送信を記録
func (m *Metrics) RecordResetWarning(ctx context.Context, thresholdMinutes int) {
	m.ResetWarningCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int("threshold_minutes", thresholdMinutes),
		),
	)
}

// RecordConversion コンバージョン確定を記録
func (m *Metrics) RecordConversion(ctx context.Context, tier string) {
	m.ConversionCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
		),
	)
}

// RecordQuotaRejection クォータによるサインアップ拒否を記録
func (m *Metrics) RecordQuotaRejection(ctx context.Context) {
	m.QuotaRejectionCount.Add(ctx, 1)
}

// RecordJobDuration バッチジョブの実行時間を記録
func (m *Metrics) RecordJobDuration(ctx context.Context, jobName string, seconds float64, success bool) {
	m.JobDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("job_name", jobName),
			attribute.Bool("success", success),
		),
	)
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.ResponseTime.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error_type", errorType),
		),
	)
}
