package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

// lockRecorder keeps the rows each transaction locked, in order.
type lockRecorder struct {
	inner store.Store
	mu    sync.Mutex
	txs   [][]string
}

func (r *lockRecorder) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	rt := &recordingTx{}
	err := r.inner.Transaction(ctx, func(tx store.Tx) error {
		rt.Tx, rt.rows = tx, nil
		return fn(rt)
	})
	if len(rt.rows) > 0 {
		r.mu.Lock()
		r.txs = append(r.txs, rt.rows)
		r.mu.Unlock()
	}
	return err
}

type recordingTx struct {
	store.Tx
	rows []string
}

func (t *recordingTx) record(lock bool, row string) {
	if !lock {
		return
	}
	for _, r := range t.rows {
		if r == row {
			return
		}
	}
	t.rows = append(t.rows, row)
}

func (t *recordingTx) UserById(id uint, lock bool) (*bisonapi.User, error) {
	t.record(lock, fmt.Sprintf("user:%d", id))
	return t.Tx.UserById(id, lock)
}

func (t *recordingTx) WalletByUser(userId uint, lock bool) (*bisonapi.Wallet, error) {
	t.record(lock, fmt.Sprintf("wallet:%d", userId))
	return t.Tx.WalletByUser(userId, lock)
}

func (t *recordingTx) StakingByUser(userId uint, lock bool) (*bisonapi.StakingPosition, error) {
	t.record(lock, fmt.Sprintf("staking:%d", userId))
	return t.Tx.StakingByUser(userId, lock)
}

func (t *recordingTx) Meter(lock bool) (*bisonapi.TokenMeter, error) {
	t.record(lock, "meter")
	return t.Tx.Meter(lock)
}

func (t *recordingTx) ActivePool(now time.Time, lock bool) (*bisonapi.MatrixPool, error) {
	t.record(lock, "pool")
	return t.Tx.ActivePool(now, lock)
}

func (t *recordingTx) PoolById(id uint, lock bool) (*bisonapi.MatrixPool, error) {
	t.record(lock, "pool")
	return t.Tx.PoolById(id, lock)
}

func (t *recordingTx) Share(poolId, userId uint, lock bool) (*bisonapi.MatrixPoolShare, error) {
	t.record(lock, "share")
	return t.Tx.Share(poolId, userId, lock)
}

var lockRank = map[string]int{"user": 0, "wallet": 1, "staking": 2, "meter": 3, "pool": 4, "share": 5}

// requireLockOrder checks user, wallet, staking per user and the shared rows after every user row.
func requireLockOrder(t *testing.T, rows []string) {
	t.Helper()
	perUser := map[string]int{}
	shared := -1
	for _, row := range rows {
		kind, id, _ := strings.Cut(row, ":")
		r := lockRank[kind]
		if r >= lockRank["meter"] {
			require.GreaterOrEqualf(t, r, shared, "%s locked out of order in %v", row, rows)
			shared = r
			continue
		}
		require.Equalf(t, -1, shared, "%s locked after a shared row in %v", row, rows)
		if prev, ok := perUser[id]; ok {
			require.GreaterOrEqualf(t, r, prev, "%s locked out of order in %v", row, rows)
		}
		perUser[id] = r
	}
}

func TestLedgerLocksRowsInOneOrder(t *testing.T) {
	h := newHarness(t)
	rec := &lockRecorder{inner: h.store}
	h.engine.store = rec

	h.configureMeter("1")
	a := h.register("a", "")
	u := h.register("u", a.RefCode)
	h.wallet.setBalance(h.profile(u.Id).Wallet.Address, "10.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)

	h.clock.advance(8 * 24 * time.Hour)
	require.NoError(t, h.engine.Accrue(h.ctx, u.Id))
	require.NoError(t, h.engine.CreditRank(h.ctx, a.Id, decimal.NewFromInt(1)))

	h.wallet.setBalance(platformAddr, "100")
	_, err = h.engine.Withdraw(h.ctx, a.Id, "0xdest")
	require.NoError(t, err)

	n, err := h.engine.PayoutEndedPools(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotEmpty(t, rec.txs)
	for _, rows := range rec.txs {
		requireLockOrder(t, rows)
	}
	row := func(kind string, id uint) string { return fmt.Sprintf("%s:%d", kind, id) }
	assert.Contains(t, rec.txs, []string{row("user", u.Id), row("wallet", u.Id), row("staking", u.Id), row("user", a.Id), row("wallet", a.Id), "meter"})
	assert.Contains(t, rec.txs, []string{row("wallet", u.Id), row("staking", u.Id)})
	assert.Contains(t, rec.txs, []string{row("user", a.Id), row("wallet", a.Id), row("staking", a.Id), "meter", "pool"})
}
