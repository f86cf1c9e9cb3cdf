package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

func TestRegisterBuildsUpline(t *testing.T) {
	h := newHarness(t)
	a := h.register("a", "")
	b := h.register("b", a.RefCode)
	c := h.register("c", "b") // by external id

	require.NotNil(t, c.ReferrerId)
	assert.Equal(t, b.Id, *c.ReferrerId)

	ra, err := h.engine.Referrals(h.ctx, a.Id, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ra.TotalCounter)
	assert.EqualValues(t, 1, ra.ByLevel[1])
	assert.EqualValues(t, 1, ra.ByLevel[2])

	level2, err := h.engine.Referrals(h.ctx, a.Id, 2)
	require.NoError(t, err)
	require.Len(t, level2.Edges, 1)
	assert.Equal(t, c.Id, level2.Edges[0].DescendantId)
	assert.Equal(t, "c", level2.Edges[0].DescendantName)
	level1, err := h.engine.Referrals(h.ctx, a.Id, 1)
	require.NoError(t, err)
	require.Len(t, level1.Edges, 1)
	assert.Equal(t, "b", level1.Edges[0].DescendantName)

	ua := h.user(a.Id)
	assert.EqualValues(t, 2, ua.TotalNetwork)
	assert.EqualValues(t, 1, ua.TotalReferrals)
	ub := h.user(b.Id)
	assert.EqualValues(t, 1, ub.TotalNetwork)
	assert.EqualValues(t, 1, ub.TotalReferrals)

	assert.Len(t, h.activities(a.Id, bisonapi.ActivityReferral), 1)
	assert.Len(t, h.activities(c.Id, bisonapi.ActivityWelcome), 1)

	pool, err := h.engine.ActivePool(h.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pool.TotalReferrals)
	h.update(func(tx store.Tx) error {
		s, err := tx.Share(pool.Id, a.Id, false)
		require.NoError(t, err)
		assert.EqualValues(t, 1, s.ReferralsAdded)
		return nil
	})
}

func TestRegisterStopsAtMaxDepth(t *testing.T) {
	h := newHarness(t)
	users := []*bisonapi.User{h.register("u0", "")}
	for i := 1; i <= 6; i++ {
		users = append(users, h.register(string(rune('a'+i)), users[i-1].RefCode))
	}
	ref, err := h.engine.Referrals(h.ctx, users[0].Id, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, ref.TotalCounter)
	_, ok := ref.ByLevel[6]
	assert.False(t, ok)
	assert.EqualValues(t, 5, h.user(users[0].Id).TotalNetwork)
}

func TestRegisterUnknownReferrer(t *testing.T) {
	h := newHarness(t)
	u, err := h.engine.Register(h.ctx, RegisterInput{ExternalId: "x", Referrer: "nobody"})
	require.ErrorIs(t, err, ErrReferrerNotFound)
	require.NotNil(t, u)
	assert.Nil(t, u.ReferrerId)

	p := h.profile(u.Id)
	assert.Equal(t, "inactive", p.State)
	requireDec(t, "0.01", p.Staking.Roi)
}

func TestRegisterExistingUserLogsIn(t *testing.T) {
	h := newHarness(t)
	a := h.register("a", "")
	accounts := h.wallet.n
	again, err := h.engine.Register(h.ctx, RegisterInput{ExternalId: "a"})
	require.NoError(t, err)
	assert.Equal(t, a.Id, again.Id)
	assert.Equal(t, accounts, h.wallet.n, "a login creates no custodial account")

	require.NoError(t, h.engine.SetBlocked(h.ctx, a.Id, true))
	_, err = h.engine.Register(h.ctx, RegisterInput{ExternalId: "a"})
	assert.ErrorIs(t, err, ErrUserBlocked)
}

func TestRegisterDetectsCycle(t *testing.T) {
	h := newHarness(t)
	a := h.register("a", "")
	b := h.register("b", a.RefCode)
	h.update(func(tx store.Tx) error {
		u, err := tx.UserById(a.Id, true)
		if err != nil {
			return err
		}
		u.ReferrerId = &b.Id
		return tx.SaveUser(u)
	})
	_, err := h.engine.Register(h.ctx, RegisterInput{ExternalId: "c", Referrer: b.RefCode})
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	_, err = h.engine.UserByExternalId(h.ctx, "c")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFastBonus(t *testing.T) {
	h := newHarness(t)
	a := h.register("a", "")
	h.register("b", a.RefCode)
	h.register("c", a.RefCode)
	assert.False(t, h.user(a.Id).UsedSpeedBoost)

	h.register("d", a.RefCode)
	assert.True(t, h.user(a.Id).UsedSpeedBoost)
	p := h.profile(a.Id)
	requireDec(t, "3", p.Wallet.Balance)
	requireDec(t, "3", p.Wallet.TotalFastBonus)

	h.register("e", a.RefCode)
	requireDec(t, "3", h.profile(a.Id).Wallet.TotalFastBonus)
	assert.Len(t, h.activities(a.Id, bisonapi.ActivityFastBonus), 1)
}

func TestFastBonusWindowExpired(t *testing.T) {
	h := newHarness(t)
	a := h.register("a", "")
	h.register("b", a.RefCode)
	h.register("c", a.RefCode)
	h.clock.advance(25 * time.Hour)
	h.register("d", a.RefCode)

	assert.False(t, h.user(a.Id).UsedSpeedBoost)
	assert.True(t, h.profile(a.Id).Wallet.TotalFastBonus.IsZero())
}
