package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	Id                     uint            `json:"id" gorm:"primarykey"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	ExternalId             string          `json:"external_id" gorm:"uniqueIndex;size:64;not null"`
	Name                   string          `json:"name"`
	RefCode                string          `json:"ref_code" gorm:"uniqueIndex;size:16;not null"`
	IsBlocked              bool            `json:"is_blocked"`
	IsAdmin                bool            `json:"is_admin"`
	ReferrerId             *uint           `json:"referrer_id" gorm:"index"`
	Rank                   *string         `json:"rank"`
	TotalNetwork           int64           `json:"total_network"`   // descendants up to max depth
	TotalReferrals         int64           `json:"total_referrals"` // level 1 only
	TotalTeamVolume        decimal.Decimal `json:"total_team_volume" gorm:"type:numeric(38,9);not null;default:0"`
	HasMadeFirstDeposit    bool            `json:"has_made_first_deposit"`
	UsedSpeedBoost         bool            `json:"used_speed_boost"`
	LastRankEarningAddedAt time.Time       `json:"last_rank_earning_added_at"`
}

// UserData is the profile shape returned to clients.
type UserData struct {
	User    User            `json:"user"`
	Wallet  Wallet          `json:"wallet"`
	Staking StakingPosition `json:"staking"`
	State   string          `json:"stake_state"`
}
