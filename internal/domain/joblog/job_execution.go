package joblog

import (
	"errors"
	"time"
)

var (
	// ErrInvalidJobName ジョブ名が無効
	ErrInvalidJobName = errors.New("invalid job name")
)

// ジョブ名（job_executionsテーブルのjob_name値）
const (
	JobNameNightlyReset = "nightly_reset"
	JobNameResetWarning = "reset_warning"
	JobNameExpirySweep  = "expiry_sweep"
)

// JobExecution スケジュールジョブ1回分の実行記録エンティティ
// 成功・失敗を問わず毎回1行書かれる運用監査ログ
type JobExecution struct {
	jobName         string
	executedAt      time.Time
	success         bool
	recordsAffected int
	errorMessage    string
}

// NewJobExecution 新しいJobExecutionを作成
func NewJobExecution(jobName string, executedAt time.Time, success bool, recordsAffected int, errorMessage string) (*JobExecution, error) {
	if jobName == "" {
		return nil, ErrInvalidJobName
	}
	return &JobExecution{
		jobName:         jobName,
		executedAt:      executedAt,
		success:         success,
		recordsAffected: recordsAffected,
		errorMessage:    errorMessage,
	}, nil
}

// JobName ジョブ名を返す
func (j *JobExecution) JobName() string {
	return j.jobName
}

// ExecutedAt 実行日時を返す
func (j *JobExecution) ExecutedAt() time.Time {
	return j.executedAt
}

// Success 成功したかどうかを返す
func (j *JobExecution) Success() bool {
	return j.success
}

// RecordsAffected 処理した行数を返す
func (j *JobExecution) RecordsAffected() int {
	return j.recordsAffected
}

// ErrorMessage エラーメッセージを返す（成功時は空文字）
func (j *JobExecution) ErrorMessage() string {
	return j.errorMessage
}
