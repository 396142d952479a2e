package conversion

import (
	"errors"
	"regexp"
	"time"
)

var (
	// ErrInvalidUserID ユーザーIDが無効
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidTier ティアが無効
	ErrInvalidTier = errors.New("invalid tier")
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// ConversionRecord Press Passユーザーのライフサイクル記録エンティティ
// トライアル開始時に作成され、ちょうど一度だけ確定される:
// ティア昇格 (enlistedAfter=true) または期限切れスイープ (endDateのみ)
type ConversionRecord struct {
	userID             string
	pressPassStartDate time.Time
	pressPassEndDate   *time.Time
	enlistedAfter      bool
	enlistedDate       *time.Time
	enlistedTier       *Tier
	timeToEnlistDays   *int
	xpPreserved        *int64
	source             string
	campaign           string
	version            int // 楽観的ロック用
}

// NewConversionRecord トライアル開始時の新しいConversionRecordを作成
func NewConversionRecord(userID string, startDate time.Time, source, campaign string) (*ConversionRecord, error) {
	if !userIDRegex.MatchString(userID) {
		return nil, ErrInvalidUserID
	}
	return &ConversionRecord{
		userID:             userID,
		pressPassStartDate: startDate,
		source:             source,
		campaign:           campaign,
	}, nil
}

// Reconstruct 永続化済みの行からConversionRecordを復元する（リポジトリ用）
func Reconstruct(
	userID string,
	startDate time.Time,
	endDate *time.Time,
	enlistedAfter bool,
	enlistedDate *time.Time,
	enlistedTier *Tier,
	timeToEnlistDays *int,
	xpPreserved *int64,
	source, campaign string,
	version int,
) *ConversionRecord {
	return &ConversionRecord{
		userID:             userID,
		pressPassStartDate: startDate,
		pressPassEndDate:   endDate,
		enlistedAfter:      enlistedAfter,
		enlistedDate:       enlistedDate,
		enlistedTier:       enlistedTier,
		timeToEnlistDays:   timeToEnlistDays,
		xpPreserved:        xpPreserved,
		source:             source,
		campaign:           campaign,
		version:            version,
	}
}

// UserID ユーザーIDを返す
func (r *ConversionRecord) UserID() string {
	return r.userID
}

// PressPassStartDate トライアル開始日時を返す
func (r *ConversionRecord) PressPassStartDate() time.Time {
	return r.pressPassStartDate
}

// PressPassEndDate トライアル終了日時を返す（未確定ならnil)
func (r *ConversionRecord) PressPassEndDate() *time.Time {
	return r.pressPassEndDate
}

// EnlistedAfter 有料ティアへ転換したかどうかを返す
func (r *ConversionRecord) EnlistedAfter() bool {
	return r.enlistedAfter
}

// EnlistedDate 転換日時を返す
func (r *ConversionRecord) EnlistedDate() *time.Time {
	return r.enlistedDate
}

// EnlistedTier 転換先ティアを返す
func (r *ConversionRecord) EnlistedTier() *Tier {
	return r.enlistedTier
}

// TimeToEnlistDays 転換までの日数を返す
func (r *ConversionRecord) TimeToEnlistDays() *int {
	return r.timeToEnlistDays
}

// XPPreserved 転換時に保全されたXPを返す
func (r *ConversionRecord) XPPreserved() *int64 {
	return r.xpPreserved
}

// Source 流入元を返す
func (r *ConversionRecord) Source() string {
	return r.source
}

// Campaign キャンペーンを返す
func (r *ConversionRecord) Campaign() string {
	return r.campaign
}

// Version バージョンを返す（楽観的ロック用）
func (r *ConversionRecord) Version() int {
	return r.version
}

// IsFinalized 確定済み（転換または期限切れ）かどうかを返す
func (r *ConversionRecord) IsFinalized() bool {
	return r.enlistedAfter || r.pressPassEndDate != nil
}

// Finalize 有料ティアへの転換で記録を確定する
// 確定済みの記録に対してはErrAlreadyFinalized（呼び出し側で重複配信として無視する）
// 一度enlistedAfterがtrueになった記録が巻き戻ることはない
func (r *ConversionRecord) Finalize(tier Tier, xpPreserved int64, at time.Time) error {
	if r.IsFinalized() {
		return ErrAlreadyFinalized
	}
	if !tier.Valid() || tier.IsTrial() {
		return ErrInvalidTier
	}
	days := int(at.Sub(r.pressPassStartDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	r.enlistedAfter = true
	r.enlistedDate = &at
	r.enlistedTier = &tier
	r.timeToEnlistDays = &days
	r.xpPreserved = &xpPreserved
	r.pressPassEndDate = &at
	r.version++
	return nil
}

// Expire 転換しないままトライアル期限切れとして記録を確定する
// enlistedAfterはfalseのまま — これが「期限切れ・未転換」と「進行中」を区別する
func (r *ConversionRecord) Expire(at time.Time) error {
	if r.IsFinalized() {
		return ErrAlreadyFinalized
	}
	r.pressPassEndDate = &at
	r.version++
	return nil
}

// MustNewConversionRecord テスト用ヘルパー: NewConversionRecordを呼び出し、エラーが発生した場合はpanicする
func MustNewConversionRecord(userID string, startDate time.Time, source, campaign string) *ConversionRecord {
	r, err := NewConversionRecord(userID, startDate, source, campaign)
	if err != nil {
		panic(err)
	}
	return r
}
