package conversion

import (
	"fmt"
)

// Tier アカウントティアを表す値オブジェクト
type Tier string

const (
	TierPressPass Tier = "PRESS_PASS" // 無料トライアル
	TierNibbler   Tier = "NIBBLER"
	TierFang      Tier = "FANG"
	TierCommander Tier = "COMMANDER"
	TierApex      Tier = "APEX"
)

// NewTier 新しいTierを作成
func NewTier(s string) (Tier, error) {
	switch s {
	case "PRESS_PASS", "NIBBLER", "FANG", "COMMANDER", "APEX":
		return Tier(s), nil
	default:
		return "", fmt.Errorf("invalid tier: %s", s)
	}
}

// String 文字列表現を返す
func (t Tier) String() string {
	return string(t)
}

// IsTrial トライアルティアかどうかを返す
func (t Tier) IsTrial() bool {
	return t == TierPressPass
}

// Valid 有効なティアかどうかを返す
func (t Tier) Valid() bool {
	switch t {
	case TierPressPass, TierNibbler, TierFang, TierCommander, TierApex:
		return true
	default:
		return false
	}
}
