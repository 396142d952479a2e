// Package scheduler 日次バッチ（警告・リセット・期限切れスイープ）の起動を担う
package scheduler

import (
	"context"
	"fmt"
	"time"

	"press-pass-server/internal/application/conversion"
	"press-pass-server/internal/application/reset"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
)

// Scheduler 一定間隔で時刻を確認し、期限が来たジョブを実行する
// ジョブ自体がDBレベルで冪等なので、再起動や多重実行で壊れることはない。
// プロセス内のdoneマークは同一時刻帯での無駄な再実行を抑えるだけに使う
type Scheduler struct {
	resetService      *reset.ResetApplicationService
	conversionService *conversion.ConversionApplicationService
	logger            *otelinfra.Logger

	interval       time.Duration
	resetHourUTC   int
	warnThresholds []int // リセット前の残り分数（降順で指定する）

	now  func() time.Time
	done map[string]bool
}

// NewScheduler 新しいSchedulerを作成
func NewScheduler(
	resetService *reset.ResetApplicationService,
	conversionService *conversion.ConversionApplicationService,
	logger *otelinfra.Logger,
	interval time.Duration,
	resetHourUTC int,
	warnThresholds []int,
) *Scheduler {
	return &Scheduler{
		resetService:      resetService,
		conversionService: conversionService,
		logger:            logger,
		interval:          interval,
		resetHourUTC:      resetHourUTC,
		warnThresholds:    warnThresholds,
		now:               time.Now,
		done:              make(map[string]bool),
	}
}

// SetClock テスト用に現在時刻の供給元を差し替える
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run コンテキストがキャンセルされるまでティックを回し続ける
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{
		"interval":       s.interval.String(),
		"reset_hour_utc": s.resetHourUTC,
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Scheduler stopped", nil)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick 1回分の時刻確認と実行
func (s *Scheduler) tick(ctx context.Context) {
	nowUTC := s.now().UTC()

	// 次のリセット時刻（現在時刻より後の最初のresetHourUTC）
	nextReset := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), s.resetHourUTC, 0, 0, 0, time.UTC)
	if !nextReset.After(nowUTC) {
		nextReset = nextReset.Add(24 * time.Hour)
	}

	// リセット前の警告
	for _, threshold := range s.warnThresholds {
		warnAt := nextReset.Add(-time.Duration(threshold) * time.Minute)
		if nowUTC.Before(warnAt) {
			continue
		}
		key := fmt.Sprintf("warn_%d_%s", threshold, nextReset.Format("2006-01-02"))
		if s.done[key] {
			continue
		}
		if _, err := s.resetService.Warn(ctx, &reset.WarnRequest{ThresholdMinutes: threshold}); err != nil {
			// 失敗したら次のティックでやり直す
			s.logger.Error(ctx, "Warn job failed", err, map[string]interface{}{
				"threshold_minutes": threshold,
			})
			continue
		}
		s.done[key] = true
	}

	// リセット本体（当日のresetHourUTCを過ぎていれば実行）
	todayReset := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), s.resetHourUTC, 0, 0, 0, time.UTC)
	if !nowUTC.Before(todayReset) {
		resetKey := "reset_" + todayReset.Format("2006-01-02")
		if !s.done[resetKey] {
			if _, err := s.resetService.NightlyReset(ctx); err != nil {
				s.logger.Error(ctx, "Nightly reset job failed", err, nil)
			} else {
				s.done[resetKey] = true
			}
		}

		sweepKey := "sweep_" + todayReset.Format("2006-01-02")
		if !s.done[sweepKey] {
			if _, err := s.conversionService.SweepExpired(ctx); err != nil {
				s.logger.Error(ctx, "Expiry sweep job failed", err, nil)
			} else {
				s.done[sweepKey] = true
			}
		}
	}

	// 古いマークの掃除
	if len(s.done) > 64 {
		s.done = make(map[string]bool)
	}
}
