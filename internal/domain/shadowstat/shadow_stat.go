package shadowstat

import (
	"errors"
	"regexp"
	"time"
)

var (
	// ErrInvalidUserID ユーザーIDが無効
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidXPDelta XP増分が無効（負値）
	ErrInvalidXPDelta = errors.New("invalid xp delta")
	// ErrCounterOutOfRange カウンターが範囲外
	ErrCounterOutOfRange = errors.New("counter out of range")
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// ShadowStat Press Passユーザーの当日カウンターエンティティ
// 日次リセットで当日分はゼロに戻るが、totalResetsは生涯カウンターとして残る
type ShadowStat struct {
	userID              string
	xpEarnedToday       int64
	tradesExecutedToday int
	winsToday           int
	lossesToday         int
	totalResets         int
	lastResetAt         *time.Time
	version             int // 楽観的ロック用
}

// NewShadowStat 新しいShadowStatエンティティを作成
func NewShadowStat(userID string, xpEarnedToday int64, tradesExecutedToday, winsToday, lossesToday, totalResets int, lastResetAt *time.Time, version int) (*ShadowStat, error) {
	if !userIDRegex.MatchString(userID) {
		return nil, ErrInvalidUserID
	}
	if xpEarnedToday < 0 || tradesExecutedToday < 0 || winsToday < 0 || lossesToday < 0 || totalResets < 0 {
		return nil, ErrCounterOutOfRange
	}
	return &ShadowStat{
		userID:              userID,
		xpEarnedToday:       xpEarnedToday,
		tradesExecutedToday: tradesExecutedToday,
		winsToday:           winsToday,
		lossesToday:         lossesToday,
		totalResets:         totalResets,
		lastResetAt:         lastResetAt,
		version:             version,
	}, nil
}

// NewZeroShadowStat 初回トレード用にゼロカウンターのShadowStatを作成
func NewZeroShadowStat(userID string) (*ShadowStat, error) {
	return NewShadowStat(userID, 0, 0, 0, 0, 0, nil, 0)
}

// UserID ユーザーIDを返す
func (s *ShadowStat) UserID() string {
	return s.userID
}

// XPEarnedToday 当日獲得XPを返す
func (s *ShadowStat) XPEarnedToday() int64 {
	return s.xpEarnedToday
}

// TradesExecutedToday 当日トレード数を返す
func (s *ShadowStat) TradesExecutedToday() int {
	return s.tradesExecutedToday
}

// WinsToday 当日勝ちトレード数を返す
func (s *ShadowStat) WinsToday() int {
	return s.winsToday
}

// LossesToday 当日負けトレード数を返す
func (s *ShadowStat) LossesToday() int {
	return s.lossesToday
}

// TotalResets 累計リセット回数を返す（生涯カウンター）
func (s *ShadowStat) TotalResets() int {
	return s.totalResets
}

// LastResetAt 最終リセット日時を返す
func (s *ShadowStat) LastResetAt() *time.Time {
	return s.lastResetAt
}

// Version バージョンを返す（楽観的ロック用）
func (s *ShadowStat) Version() int {
	return s.version
}

// RecordTrade トレード完了を記録する
// xpDeltaは0を許容する（XPを生まない負けトレードもトレード数には数える）
func (s *ShadowStat) RecordTrade(xpDelta int64, isWin bool) error {
	if xpDelta < 0 {
		return ErrInvalidXPDelta
	}
	s.xpEarnedToday += xpDelta
	s.tradesExecutedToday++
	if isWin {
		s.winsToday++
	} else {
		s.lossesToday++
	}
	s.version++
	return nil
}

// Reset 当日カウンターをゼロに戻し、リセット回数を刻む
func (s *ShadowStat) Reset(at time.Time) {
	s.xpEarnedToday = 0
	s.tradesExecutedToday = 0
	s.winsToday = 0
	s.lossesToday = 0
	s.totalResets++
	s.lastResetAt = &at
	s.version++
}

// MustNewShadowStat テスト用ヘルパー: NewShadowStatを呼び出し、エラーが発生した場合はpanicする
func MustNewShadowStat(userID string, xpEarnedToday int64, tradesExecutedToday, winsToday, lossesToday, totalResets int, lastResetAt *time.Time, version int) *ShadowStat {
	s, err := NewShadowStat(userID, xpEarnedToday, tradesExecutedToday, winsToday, lossesToday, totalResets, lastResetAt, version)
	if err != nil {
		panic(err)
	}
	return s
}
