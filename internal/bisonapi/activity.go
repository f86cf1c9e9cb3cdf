package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActivityWelcome       = "welcome"
	ActivityDeposit       = "deposit"
	ActivityInterest      = "interest"
	ActivityWithdrawal    = "withdrawal"
	ActivityRestake       = "restake"
	ActivityTokenPurchase = "token_purchase"
	ActivityPoolTopUp     = "pool_top_up"
	ActivityPoolPayout    = "pool_payout"
	ActivityReferral      = "referral"
	ActivityReferralBonus = "referral_bonus"
	ActivityFastBonus     = "fast_bonus"
	ActivityRank          = "rank"
)

// Activity is the append-only log written together with every balance change.
type Activity struct {
	Id        uint            `json:"id" gorm:"primarykey"`
	CreatedAt time.Time       `json:"created_at" gorm:"index"`
	UserId    uint            `json:"user_id" gorm:"index;not null"`
	Kind      string          `json:"kind" gorm:"size:32;not null"`
	Detail    string          `json:"detail"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(38,9);not null;default:0"`
}
