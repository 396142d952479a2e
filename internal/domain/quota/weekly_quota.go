package quota

import (
	"errors"
	"time"
)

var (
	// ErrInvalidWeekStart 週開始日が無効（ISO週の月曜日でない）
	ErrInvalidWeekStart = errors.New("invalid week start date")
	// ErrCounterOutOfRange カウンターが範囲外
	ErrCounterOutOfRange = errors.New("counter out of range")
)

// DefaultWeeklyCap 週あたりのPress Pass新規作成上限
const DefaultWeeklyCap = 200

// WeeklyQuota ISO週ごとのPress Pass新規作成カウンターエンティティ
// 週の最初のサインアップ試行時に遅延作成される
type WeeklyQuota struct {
	weekStartDate   time.Time
	accountsCreated int
	limitReached    bool
}

// NewWeeklyQuota 新しいWeeklyQuotaエンティティを作成
func NewWeeklyQuota(weekStartDate time.Time, accountsCreated int, limitReached bool) (*WeeklyQuota, error) {
	if !weekStartDate.Equal(WeekStart(weekStartDate)) {
		return nil, ErrInvalidWeekStart
	}
	if accountsCreated < 0 {
		return nil, ErrCounterOutOfRange
	}
	return &WeeklyQuota{
		weekStartDate:   weekStartDate,
		accountsCreated: accountsCreated,
		limitReached:    limitReached,
	}, nil
}

// WeekStartDate 週開始日を返す
func (q *WeeklyQuota) WeekStartDate() time.Time {
	return q.weekStartDate
}

// AccountsCreated 週内の作成数を返す
func (q *WeeklyQuota) AccountsCreated() int {
	return q.accountsCreated
}

// LimitReached 上限到達済みかどうかを返す
func (q *WeeklyQuota) LimitReached() bool {
	return q.limitReached
}

// WeekStart 指定時刻が属するISO週の開始日（月曜0時UTC）を返す
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	// ISO週は月曜始まり。time.Weekdayは日曜=0
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// MustNewWeeklyQuota テスト用ヘルパー: NewWeeklyQuotaを呼び出し、エラーが発生した場合はpanicする
func MustNewWeeklyQuota(weekStartDate time.Time, accountsCreated int, limitReached bool) *WeeklyQuota {
	q, err := NewWeeklyQuota(weekStartDate, accountsCreated, limitReached)
	if err != nil {
		panic(err)
	}
	return q
}
