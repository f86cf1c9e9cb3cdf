package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

func TestRank(t *testing.T) {
	tiers := bisonapi.DefaultAppConfig().Settings.Ranks
	tests := []struct {
		name    string
		volume  string
		deposit string
		refs    int64
		rate    string
		bonus   string
		rank    string
	}{
		{"leader", "1000", "50", 3, "1", "25", "Leader"},
		{"volume too low", "999", "50", 3, "1", "0", ""},
		{"not enough referrals", "1000", "50", 2, "1", "0", ""},
		{"converted by rate", "500", "25", 3, "2", "25", "Leader"},
		{"deposit at upper bound", "1000", "100", 3, "1", "0", ""},
		{"king", "5000", "100", 5, "1", "100", "Bison King"},
		{"supreme", "2000000", "200000", 10, "1", "7000", "Supreme Bison"},
		{"supreme threshold", "1000000", "150000", 10, "1", "7000", "Supreme Bison"},
		{"between legend and supreme", "1000000", "20000", 10, "1", "0", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bonus, rank := Rank(decimal.RequireFromString(tt.volume), decimal.RequireFromString(tt.deposit), tt.refs, decimal.RequireFromString(tt.rate), tiers)
			requireDec(t, tt.bonus, bonus)
			if tt.rank == "" {
				assert.Nil(t, rank)
				return
			}
			require.NotNil(t, rank)
			assert.Equal(t, tt.rank, *rank)
		})
	}
}

func TestCreditRankWholeWeeks(t *testing.T) {
	h := newHarness(t)
	u := h.register("u", "")
	joined := h.user(u.Id).LastRankEarningAddedAt
	h.update(func(tx store.Tx) error {
		usr, err := tx.UserById(u.Id, true)
		if err != nil {
			return err
		}
		usr.TotalTeamVolume = decimal.NewFromInt(1000)
		usr.TotalReferrals = 3
		if err := tx.SaveUser(usr); err != nil {
			return err
		}
		w, err := tx.WalletByUser(u.Id, true)
		if err != nil {
			return err
		}
		w.TotalDeposit = decimal.NewFromInt(50)
		return tx.SaveWallet(w)
	})

	h.clock.advance(15 * 24 * time.Hour)
	require.NoError(t, h.engine.CreditRank(h.ctx, u.Id, decimal.NewFromInt(1)))
	p := h.profile(u.Id)
	require.NotNil(t, p.User.Rank)
	assert.Equal(t, "Leader", *p.User.Rank)
	requireDec(t, "25", p.Wallet.WeeklyRankEarnings)
	requireDec(t, "50", p.Wallet.Earnings)
	requireDec(t, "50", p.Wallet.TotalRankBonus)
	assert.Equal(t, joined.Add(14*24*time.Hour), p.User.LastRankEarningAddedAt)

	require.NoError(t, h.engine.CreditRank(h.ctx, u.Id, decimal.NewFromInt(1)))
	requireDec(t, "50", h.profile(u.Id).Wallet.Earnings)

	h.clock.advance(6 * 24 * time.Hour)
	res, err := h.engine.CreditRanks(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	requireDec(t, "75", h.profile(u.Id).Wallet.Earnings)
}

func TestCreditRankUsesTotalDeposit(t *testing.T) {
	h := newHarness(t)
	u := h.register("u", "")
	h.update(func(tx store.Tx) error {
		usr, err := tx.UserById(u.Id, true)
		if err != nil {
			return err
		}
		usr.TotalTeamVolume = decimal.NewFromInt(1000)
		usr.TotalReferrals = 3
		if err := tx.SaveUser(usr); err != nil {
			return err
		}
		w, err := tx.WalletByUser(u.Id, true)
		if err != nil {
			return err
		}
		w.TotalDeposit = decimal.NewFromInt(55)
		if err := tx.SaveWallet(w); err != nil {
			return err
		}
		// the staked principal is net of the diversion and below the Leader floor
		p, err := tx.StakingByUser(u.Id, true)
		if err != nil {
			return err
		}
		p.Deposit = decimal.RequireFromString("49.5")
		return tx.SaveStaking(p)
	})

	require.NoError(t, h.engine.CreditRank(h.ctx, u.Id, decimal.NewFromInt(1)))
	r := h.user(u.Id).Rank
	require.NotNil(t, r)
	assert.Equal(t, "Leader", *r)
}
