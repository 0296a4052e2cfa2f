package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/billwallet/internal/config"
	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/metrics"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
	"github.com/fastprodman/billwallet/internal/repos/ledger/memory"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// fakeProvider answers Purchase with a fixed outcome and Requery from a
// queue whose last element repeats.
type fakeProvider struct {
	name string

	mu          sync.Mutex
	purchaseOut gateway.Outcome
	purchaseErr error
	requeries   []gateway.Outcome
	purchases   []gateway.Request
	requeried   []string
	onPurchase  func()
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Purchase(_ context.Context, req gateway.Request) (gateway.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.purchases = append(p.purchases, req)

	if p.onPurchase != nil {
		p.onPurchase()
	}

	return p.purchaseOut, p.purchaseErr
}

func (p *fakeProvider) Requery(_ context.Context, ref string) (gateway.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requeried = append(p.requeried, ref)

	if len(p.requeries) == 0 {
		return gateway.Outcome{Class: gateway.Pending, Code: gateway.CodePending}, nil
	}

	out := p.requeries[0]
	if len(p.requeries) > 1 {
		p.requeries = p.requeries[1:]
	}

	return out, nil
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) Emit(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.got = append(r.got, n)

	return nil
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]notify.Notification(nil), r.got...)
}

// flakyStore fails the next n units of work.
type flakyStore struct {
	ledger.Store

	mu    sync.Mutex
	fails int
	calls int
}

var errStoreDown = errors.New("connection reset by peer")

func (f *flakyStore) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()

	if fail {
		return errStoreDown
	}

	return f.Store.InTx(ctx, fn)
}

func (f *flakyStore) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fails = n
}

type fixture struct {
	svc      *Service
	mem      *memory.Store
	store    *flakyStore
	clock    *clock
	provider *fakeProvider
	notes    *recorder
	alerts   *recorder
	sleeps   []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:    &clock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)},
		provider: &fakeProvider{name: "vtpass"},
		notes:    &recorder{},
		alerts:   &recorder{},
	}

	f.mem = memory.New(memory.WithClock(f.clock.Now))
	f.store = &flakyStore{Store: f.mem}

	f.svc = New(Deps{
		Store:     f.store,
		Providers: gateway.NewRegistry(f.provider),
		Notifier:  f.notes,
		Alerts:    f.alerts,
		Metrics:   metrics.New(prometheus.NewRegistry()),
	}, Config{
		Settlement: config.SettlementConfig{
			RetryAttempts: 4,
			RetryInitial:  100 * time.Millisecond,
			RetryMax:      250 * time.Millisecond,
			PollAttempts:  2,
			PollInterval:  time.Second,
		},
		Sweep: config.SweepConfig{
			StaleAfter:    2 * time.Minute,
			MaxPendingAge: time.Hour,
			BatchSize:     100,
			Concurrency:   4,
		},
		DefaultLimit: 1_000_000,
	})

	var mu sync.Mutex
	f.svc.now = f.clock.Now
	f.svc.pinCost = bcrypt.MinCost
	f.svc.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		f.sleeps = append(f.sleeps, d)
		mu.Unlock()

		return ctx.Err()
	}

	return f
}

func (f *fixture) wallet(t *testing.T, balance int64) string {
	t.Helper()

	owner := uuid.NewString()
	f.mem.SeedWallet(models.Wallet{OwnerID: owner, Balance: balance, Limit: 1_000_000})

	return owner
}

func (f *fixture) balance(t *testing.T, owner string) int64 {
	t.Helper()

	w, err := f.mem.Wallet(t.Context(), owner)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}

	return w.Balance
}

func (f *fixture) status(t *testing.T, ref string) models.Status {
	t.Helper()

	txn, err := f.mem.Transaction(t.Context(), ref)
	if err != nil {
		t.Fatalf("transaction %s: %v", ref, err)
	}

	return txn.Status
}

// assertConsistent checks that the balance equals the seeded amount plus the
// effect of every ledger entry of the owner.
func (f *fixture) assertConsistent(t *testing.T, owner string, seeded int64) {
	t.Helper()

	list, err := f.mem.Transactions(t.Context(), owner, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := seeded
	for _, txn := range list {
		want += txn.BalanceDelta()
	}

	if got := f.balance(t, owner); got != want {
		t.Fatalf("balance %d does not match ledger (%d)", got, want)
	}
}

var (
	success = gateway.Outcome{Class: gateway.Success, Code: "000", Description: "TRANSACTION SUCCESSFUL"}
	failed  = gateway.Outcome{Class: gateway.Failed, Code: "016", Description: "TRANSACTION FAILED"}
	pending = gateway.Outcome{Class: gateway.Pending, Code: "099", Description: "TRANSACTION IS PROCESSING"}
)
