package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenMeter is the platform collection singleton. Amounts are in the staked asset,
// TotalTokensIssued is in platform token units.
type TokenMeter struct {
	Id                   uint            `json:"id" gorm:"primarykey"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	TokenAddress         string          `json:"token_address"`
	TokenPrice           decimal.Decimal `json:"token_price" gorm:"type:numeric(38,9);not null;default:0"` // in reference currency
	TotalAmountCollected decimal.Decimal `json:"total_amount_collected" gorm:"type:numeric(38,9);not null;default:0"`
	TotalTokensIssued    decimal.Decimal `json:"total_tokens_issued" gorm:"type:numeric(38,9);not null;default:0"`
	TotalDeposited       decimal.Decimal `json:"total_deposited" gorm:"type:numeric(38,9);not null;default:0"`
	TotalWithdrawn       decimal.Decimal `json:"total_withdrawn" gorm:"type:numeric(38,9);not null;default:0"`
	TotalSentToPool      decimal.Decimal `json:"total_sent_to_pool" gorm:"type:numeric(38,9);not null;default:0"`
}

// Tokens converts an asset amount into token units at the given asset/reference rate.
func (m *TokenMeter) Tokens(amount, rate decimal.Decimal) decimal.Decimal {
	if m.TokenPrice.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.Mul(rate).Div(m.TokenPrice).RoundDown(9)
}
