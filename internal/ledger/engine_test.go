package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"suibison/internal/app"
	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

var (
	testSecret   = []byte("test-secret")
	platformAddr = "0xplatform"
	platformKey  = "platform-key"
)

type fakeWallet struct {
	mu       sync.Mutex
	n        int
	owners   map[string]string // credential -> address
	balances map[string]decimal.Decimal
	fail     error
	sent     int
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		owners:   map[string]string{platformKey: platformAddr},
		balances: map[string]decimal.Decimal{},
	}
}

func (f *fakeWallet) NewAccount() (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	address := fmt.Sprintf("0xaddr%d", f.n)
	credential := fmt.Sprintf("key%d", f.n)
	f.owners[credential] = address
	return address, credential, nil
}

func (f *fakeWallet) ValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x")
}

func (f *fakeWallet) GetBalance(_ context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeWallet) Transfer(_ context.Context, credential, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	from, ok := f.owners[credential]
	if !ok {
		return "", errors.New("unknown credential")
	}
	if f.balances[from].LessThan(amount) {
		return "", errors.New("insufficient gas coins")
	}
	f.balances[from] = f.balances[from].Sub(amount)
	f.balances[to] = f.balances[to].Add(amount)
	f.sent++
	return fmt.Sprintf("tx%d", f.sent), nil
}

func (f *fakeWallet) setBalance(address, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = decimal.RequireFromString(amount)
}

func (f *fakeWallet) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

type fixedRate struct {
	rate decimal.Decimal
	err  error
}

func (r *fixedRate) Rate(context.Context) (decimal.Decimal, error) {
	return r.rate, r.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	engine *Engine
	store  *store.Memory
	wallet *fakeWallet
	rate   *fixedRate
	alerts *recordingNotifier
	clock  *clock
}

func newHarness(t *testing.T, tune ...func(s *bisonapi.AppSettings)) *harness {
	t.Helper()
	sealed, err := app.Seal(platformKey, testSecret)
	require.NoError(t, err)

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  store.NewMemory(),
		wallet: newFakeWallet(),
		rate:   &fixedRate{rate: decimal.NewFromInt(1)},
		alerts: &recordingNotifier{},
		clock:  &clock{t: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)},
	}
	h.store.Now = h.clock.now

	settings := bisonapi.DefaultAppConfig().Settings
	for _, fn := range tune {
		fn(&settings)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	h.engine = New(Options{
		Store:           h.store,
		Wallet:          h.wallet,
		Rates:           h.rate,
		Alerts:          h.alerts,
		Settings:        settings,
		Secret:          testSecret,
		PlatformAddress: platformAddr,
		PlatformKey:     sealed,
		Log:             log,
		Now:             h.clock.now,
	})
	return h
}

func (h *harness) register(externalId, referrer string) *bisonapi.User {
	h.t.Helper()
	u, err := h.engine.Register(h.ctx, RegisterInput{ExternalId: externalId, Name: externalId, Referrer: referrer})
	require.NoError(h.t, err)
	return u
}

func (h *harness) profile(userId uint) *bisonapi.UserData {
	h.t.Helper()
	p, err := h.engine.Profile(h.ctx, userId)
	require.NoError(h.t, err)
	return p
}

func (h *harness) user(userId uint) *bisonapi.User {
	h.t.Helper()
	u, err := h.engine.User(h.ctx, userId)
	require.NoError(h.t, err)
	return u
}

func (h *harness) configureMeter(price string) {
	h.t.Helper()
	_, err := h.engine.ConfigureMeter(h.ctx, "0xtoken", decimal.RequireFromString(price))
	require.NoError(h.t, err)
}

func (h *harness) update(fn func(tx store.Tx) error) {
	h.t.Helper()
	require.NoError(h.t, h.store.Transaction(h.ctx, fn))
}

func (h *harness) setEarnings(userId uint, amount string) {
	h.update(func(tx store.Tx) error {
		w, err := tx.WalletByUser(userId, true)
		if err != nil {
			return err
		}
		w.Earnings = decimal.RequireFromString(amount)
		return tx.SaveWallet(w)
	})
}

func (h *harness) activities(userId uint, kind string) []bisonapi.Activity {
	h.t.Helper()
	acts, err := h.engine.Activities(h.ctx, userId, 500)
	require.NoError(h.t, err)
	var out []bisonapi.Activity
	for _, a := range acts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}
