package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet keeps every monetary counter of a user. Amounts are in the staked asset.
type Wallet struct {
	Id                       uint            `json:"id" gorm:"primarykey"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
	UserId                   uint            `json:"user_id" gorm:"uniqueIndex;not null"`
	Address                  string          `json:"address" gorm:"index;not null"`
	Credential               string          `json:"-" gorm:"not null"` // sealed private key
	Balance                  decimal.Decimal `json:"balance" gorm:"type:numeric(38,9);not null;default:0"`
	PendingBalance           decimal.Decimal `json:"pending_balance" gorm:"type:numeric(38,9);not null;default:0"`
	TotalDeposit             decimal.Decimal `json:"total_deposit" gorm:"type:numeric(38,9);not null;default:0"`
	TotalWithdrawn           decimal.Decimal `json:"total_withdrawn" gorm:"type:numeric(38,9);not null;default:0"`
	Earnings                 decimal.Decimal `json:"earnings" gorm:"type:numeric(38,9);not null;default:0"`
	AvailableReferralEarning decimal.Decimal `json:"available_referral_earning" gorm:"type:numeric(38,9);not null;default:0"`
	TotalReferralEarnings    decimal.Decimal `json:"total_referral_earnings" gorm:"type:numeric(38,9);not null;default:0"`
	TotalReferralBonus       decimal.Decimal `json:"total_referral_bonus" gorm:"type:numeric(38,9);not null;default:0"`
	TotalRankBonus           decimal.Decimal `json:"total_rank_bonus" gorm:"type:numeric(38,9);not null;default:0"`
	ExpectedRankBonus        decimal.Decimal `json:"expected_rank_bonus" gorm:"type:numeric(38,9);not null;default:0"`
	WeeklyRankEarnings       decimal.Decimal `json:"weekly_rank_earnings" gorm:"type:numeric(38,9);not null;default:0"`
	TotalFastBonus           decimal.Decimal `json:"total_fast_bonus" gorm:"type:numeric(38,9);not null;default:0"`
	TotalTokenPurchased      decimal.Decimal `json:"total_token_purchased" gorm:"type:numeric(38,9);not null;default:0"`
	TotalInterest            decimal.Decimal `json:"total_interest" gorm:"type:numeric(38,9);not null;default:0"`
}
