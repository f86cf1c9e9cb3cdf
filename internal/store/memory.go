package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"suibison/internal/bisonapi"
)

// Memory is an in-process Store. Transactions are serialized and work on a copy that
// replaces the live data only when fn succeeds.
type Memory struct {
	Now func() time.Time

	mu   sync.Mutex
	data *memData
}

type pair [2]uint

type memData struct {
	seq        uint
	users      map[uint]bisonapi.User
	wallets    map[uint]bisonapi.Wallet          // by user id
	stakings   map[uint]bisonapi.StakingPosition // by user id
	edges      map[pair]bisonapi.ReferralEdge
	activities []bisonapi.Activity
	pools      map[uint]bisonapi.MatrixPool
	shares     map[pair]bisonapi.MatrixPoolShare
	meter      *bisonapi.TokenMeter
	transfers  map[uint]bisonapi.Transfer
}

func NewMemory() *Memory {
	return &Memory{
		Now: time.Now,
		data: &memData{
			users:     map[uint]bisonapi.User{},
			wallets:   map[uint]bisonapi.Wallet{},
			stakings:  map[uint]bisonapi.StakingPosition{},
			edges:     map[pair]bisonapi.ReferralEdge{},
			pools:     map[uint]bisonapi.MatrixPool{},
			shares:    map[pair]bisonapi.MatrixPoolShare{},
			transfers: map[uint]bisonapi.Transfer{},
		},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	c := &memData{
		seq:        d.seq,
		users:      cloneMap(d.users),
		wallets:    cloneMap(d.wallets),
		stakings:   cloneMap(d.stakings),
		edges:      cloneMap(d.edges),
		activities: append([]bisonapi.Activity(nil), d.activities...),
		pools:      cloneMap(d.pools),
		shares:     cloneMap(d.shares),
		transfers:  cloneMap(d.transfers),
	}
	if d.meter != nil {
		m := *d.meter
		c.meter = &m
	}
	return c
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.data.clone()
	if err := fn(&memTx{d: work, now: m.Now}); err != nil {
		return err
	}
	m.data = work
	return nil
}

type memTx struct {
	d   *memData
	now func() time.Time
}

func (t *memTx) nextId() uint {
	t.d.seq++
	return t.d.seq
}

func (t *memTx) stamp(created, updated *time.Time) {
	now := t.now()
	if created != nil && created.IsZero() {
		*created = now
	}
	*updated = now
}

func (t *memTx) UserById(id uint, _ bool) (*bisonapi.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) UserByExternalId(externalId string) (*bisonapi.User, error) {
	for _, u := range t.d.users {
		if u.ExternalId == externalId {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UserByRefCode(code string) (*bisonapi.User, error) {
	for _, u := range t.d.users {
		if u.RefCode == code {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CreateUser(u *bisonapi.User) error {
	for _, other := range t.d.users {
		if other.ExternalId == u.ExternalId || other.RefCode == u.RefCode {
			return ErrDuplicate
		}
	}
	u.Id = t.nextId()
	t.stamp(&u.CreatedAt, &u.UpdatedAt)
	t.d.users[u.Id] = *u
	return nil
}

func (t *memTx) SaveUser(u *bisonapi.User) error {
	t.stamp(nil, &u.UpdatedAt)
	t.d.users[u.Id] = *u
	return nil
}

func (t *memTx) UserIds(afterId uint, limit int) ([]uint, error) {
	var ids []uint
	for id := range t.d.users {
		if id > afterId {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (t *memTx) WalletByUser(userId uint, _ bool) (*bisonapi.Wallet, error) {
	w, ok := t.d.wallets[userId]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (t *memTx) CreateWallet(w *bisonapi.Wallet) error {
	if _, ok := t.d.wallets[w.UserId]; ok {
		return ErrDuplicate
	}
	w.Id = t.nextId()
	t.stamp(&w.CreatedAt, &w.UpdatedAt)
	t.d.wallets[w.UserId] = *w
	return nil
}

func (t *memTx) SaveWallet(w *bisonapi.Wallet) error {
	t.stamp(nil, &w.UpdatedAt)
	t.d.wallets[w.UserId] = *w
	return nil
}

func (t *memTx) StakingByUser(userId uint, _ bool) (*bisonapi.StakingPosition, error) {
	p, ok := t.d.stakings[userId]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) CreateStaking(p *bisonapi.StakingPosition) error {
	if _, ok := t.d.stakings[p.UserId]; ok {
		return ErrDuplicate
	}
	p.Id = t.nextId()
	t.stamp(&p.CreatedAt, &p.UpdatedAt)
	t.d.stakings[p.UserId] = *p
	return nil
}

func (t *memTx) SaveStaking(p *bisonapi.StakingPosition) error {
	t.stamp(nil, &p.UpdatedAt)
	t.d.stakings[p.UserId] = *p
	return nil
}

func (t *memTx) CreateEdge(e *bisonapi.ReferralEdge) error {
	k := pair{e.AncestorId, e.DescendantId}
	if _, ok := t.d.edges[k]; ok {
		return ErrDuplicate
	}
	t.stamp(&e.CreatedAt, &e.UpdatedAt)
	t.d.edges[k] = *e
	return nil
}

func (t *memTx) Edge(ancestorId, descendantId uint, _ bool) (*bisonapi.ReferralEdge, error) {
	e, ok := t.d.edges[pair{ancestorId, descendantId}]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memTx) SaveEdge(e *bisonapi.ReferralEdge) error {
	t.stamp(nil, &e.UpdatedAt)
	t.d.edges[pair{e.AncestorId, e.DescendantId}] = *e
	return nil
}

func (t *memTx) EdgesByAncestor(ancestorId uint, level int) ([]bisonapi.ReferralEdge, error) {
	var out []bisonapi.ReferralEdge
	for _, e := range t.d.edges {
		if e.AncestorId == ancestorId && (level == 0 || e.Level == level) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].DescendantId < out[j].DescendantId
	})
	return out, nil
}

func (t *memTx) AddActivity(a *bisonapi.Activity) error {
	a.Id = t.nextId()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now()
	}
	t.d.activities = append(t.d.activities, *a)
	return nil
}

func (t *memTx) ActivitiesByUser(userId uint, limit int) ([]bisonapi.Activity, error) {
	var out []bisonapi.Activity
	for i := len(t.d.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if t.d.activities[i].UserId == userId {
			out = append(out, t.d.activities[i])
		}
	}
	return out, nil
}

func (t *memTx) LockPools() error {
	return nil
}

func (t *memTx) ActivePool(now time.Time, _ bool) (*bisonapi.MatrixPool, error) {
	var best *bisonapi.MatrixPool
	for _, p := range t.d.pools {
		p := p
		if !p.Active(now) {
			continue
		}
		if best == nil || p.EndDate.After(best.EndDate) {
			best = &p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (t *memTx) PoolById(id uint, _ bool) (*bisonapi.MatrixPool, error) {
	p, ok := t.d.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) CreatePool(p *bisonapi.MatrixPool) error {
	p.Id = t.nextId()
	t.stamp(&p.CreatedAt, &p.UpdatedAt)
	t.d.pools[p.Id] = *p
	return nil
}

func (t *memTx) SavePool(p *bisonapi.MatrixPool) error {
	t.stamp(nil, &p.UpdatedAt)
	t.d.pools[p.Id] = *p
	return nil
}

func (t *memTx) UnpaidPoolsEndedBefore(before time.Time) ([]bisonapi.MatrixPool, error) {
	var out []bisonapi.MatrixPool
	for _, p := range t.d.pools {
		if p.EndDate.Before(before) && p.PaidAt == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (t *memTx) Share(poolId, userId uint, _ bool) (*bisonapi.MatrixPoolShare, error) {
	s, ok := t.d.shares[pair{poolId, userId}]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) SharesByPool(poolId uint) ([]bisonapi.MatrixPoolShare, error) {
	var out []bisonapi.MatrixPoolShare
	for _, s := range t.d.shares {
		if s.PoolId == poolId {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (t *memTx) CreateShare(s *bisonapi.MatrixPoolShare) error {
	k := pair{s.PoolId, s.UserId}
	if _, ok := t.d.shares[k]; ok {
		return ErrDuplicate
	}
	s.Id = t.nextId()
	t.stamp(&s.CreatedAt, &s.UpdatedAt)
	t.d.shares[k] = *s
	return nil
}

func (t *memTx) SaveShare(s *bisonapi.MatrixPoolShare) error {
	t.stamp(nil, &s.UpdatedAt)
	t.d.shares[pair{s.PoolId, s.UserId}] = *s
	return nil
}

func (t *memTx) Meter(_ bool) (*bisonapi.TokenMeter, error) {
	if t.d.meter == nil {
		return nil, ErrNotFound
	}
	m := *t.d.meter
	return &m, nil
}

func (t *memTx) CreateMeter(m *bisonapi.TokenMeter) error {
	if t.d.meter != nil {
		return ErrDuplicate
	}
	m.Id = t.nextId()
	t.stamp(&m.CreatedAt, &m.UpdatedAt)
	c := *m
	t.d.meter = &c
	return nil
}

func (t *memTx) SaveMeter(m *bisonapi.TokenMeter) error {
	t.stamp(nil, &m.UpdatedAt)
	c := *m
	t.d.meter = &c
	return nil
}

func (t *memTx) CreateTransfer(tr *bisonapi.Transfer) error {
	for _, other := range t.d.transfers {
		if other.Reference == tr.Reference {
			return ErrDuplicate
		}
	}
	tr.Id = t.nextId()
	t.stamp(&tr.CreatedAt, &tr.UpdatedAt)
	t.d.transfers[tr.Id] = *tr
	return nil
}

func (t *memTx) TransferById(id uint, _ bool) (*bisonapi.Transfer, error) {
	tr, ok := t.d.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tr, nil
}

func (t *memTx) SaveTransfer(tr *bisonapi.Transfer) error {
	t.stamp(nil, &tr.UpdatedAt)
	t.d.transfers[tr.Id] = *tr
	return nil
}

func (t *memTx) sortedTransfers() []bisonapi.Transfer {
	out := make([]bisonapi.Transfer, 0, len(t.d.transfers))
	for _, tr := range t.d.transfers {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (t *memTx) OpenTransfer(userId uint, kind string) (*bisonapi.Transfer, error) {
	for _, tr := range t.sortedTransfers() {
		if tr.UserId == userId && tr.Kind == kind && tr.Open() {
			return &tr, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) DueTransfers(now, staleBefore time.Time, limit int) ([]bisonapi.Transfer, error) {
	var out []bisonapi.Transfer
	for _, tr := range t.sortedTransfers() {
		if len(out) >= limit {
			break
		}
		retry := tr.Status == bisonapi.TransferRetry && (tr.NextAttemptAt == nil || !tr.NextAttemptAt.After(now))
		stale := tr.Status == bisonapi.TransferNew && tr.UpdatedAt.Before(staleBefore)
		if retry || stale {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (t *memTx) Totals() (*Totals, error) {
	out := &Totals{TotalStaked: decimal.Zero, TotalPoolGenerated: decimal.Zero}
	days := map[string]bool{}
	for _, u := range t.d.users {
		out.Users++
		if u.ReferrerId != nil {
			out.ReferredUsers++
			days[u.CreatedAt.UTC().Format("2006-01-02")] = true
		}
	}
	out.ReferralDays = int64(len(days))
	for _, w := range t.d.wallets {
		out.TotalStaked = out.TotalStaked.Add(w.TotalDeposit)
	}
	for _, p := range t.d.pools {
		out.TotalPoolGenerated = out.TotalPoolGenerated.Add(p.RaisedPoolAmount)
	}
	return out, nil
}

var (
	_ Store = (*Memory)(nil)
	_ Tx    = (*memTx)(nil)
)
