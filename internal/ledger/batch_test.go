package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachUser(t *testing.T) {
	h := newHarness(t)
	a := h.register("a", "")
	b := h.register("b", "")
	c := h.register("c", "")

	var seen []uint
	res, err := h.engine.ForEachUser(h.ctx, "test", func(_ context.Context, id uint) error {
		seen = append(seen, id)
		if id == b.Id {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{a.Id, b.Id, c.Id}, seen)
	assert.Equal(t, BatchResult{Processed: 2, Failed: 1}, res)

	seen = nil
	_, err = h.engine.ForEachUser(h.ctx, "test", func(_ context.Context, id uint) error {
		seen = append(seen, id)
		if id == b.Id {
			return invariant("test", "broken")
		}
		return nil
	})
	assert.True(t, IsFatal(err))
	assert.Equal(t, []uint{a.Id, b.Id}, seen)
	assert.Len(t, h.alerts.msgs, 1)
}

func TestSyncBalancesSkipsEmptyWallets(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	a := h.register("a", "")
	b := h.register("b", "")
	h.wallet.setBalance(h.profile(b.Id).Wallet.Address, "5.01")

	res, err := h.engine.SyncBalances(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.True(t, h.profile(a.Id).Staking.Deposit.IsZero())
	requireDec(t, "4.5", h.profile(b.Id).Staking.Deposit)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	a := h.register("a", "")
	h.register("b", a.RefCode)
	h.register("c", a.RefCode)

	s, err := h.engine.Stats(h.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Users)
	assert.EqualValues(t, 2, s.ReferredUsers)
	requireDec(t, "2", s.AverageDailyReferrals)
	require.NotNil(t, s.Meter)
}
