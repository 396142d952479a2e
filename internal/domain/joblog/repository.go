package joblog

import (
	"context"
	"time"
)

// JobExecutionRepository ジョブ実行ログリポジトリインターフェース
// ジョブログはバッチ本体のトランザクションの外で書かれる
// （バッチがロールバックされても失敗の記録は残さなければならない）
type JobExecutionRepository interface {
	// Save ジョブ実行記録を保存
	Save(ctx context.Context, execution *JobExecution) error

	// FindByJobName ジョブ名と期間で実行記録を検索（新しい順）
	FindByJobName(ctx context.Context, jobName string, from, to time.Time, limit int) ([]*JobExecution, error)

	// CountSuccessForDay 指定ジョブが指定UTC日に成功した回数を返す
	CountSuccessForDay(ctx context.Context, jobName string, day time.Time) (int, error)
}
