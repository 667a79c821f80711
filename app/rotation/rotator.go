package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

const touchTimeout = 5 * time.Second

type configStore interface {
	Load(ctx context.Context) (*entity.CheckoutConfig, error)
	CompareAndSave(ctx context.Context, patch *entity.ConfigPatch, loadedUpdatedAt int64) (bool, error)
}

type ActiveAccount struct {
	Account         entity.Account
	Client          provider.PaymentClient
	DefaultCurrency string
}

type Status struct {
	Account      entity.Account
	Slot         int
	TotalSlots   int
	NextRotation time.Time
}

type Options struct {
	Window     time.Duration
	TouchAfter time.Duration
	Now        func() time.Time
	// RunAsync schedules the last-used write; it must not block the caller.
	RunAsync func(func())
}

type Rotator struct {
	store      configStore
	clients    provider.ClientFactory
	window     time.Duration
	touchAfter time.Duration
	now        func() time.Time
	runAsync   func(func())
	logger     logrus.FieldLogger
}

func NewRotator(store configStore, clients provider.ClientFactory, opts Options) *Rotator {
	r := &Rotator{
		store:      store,
		clients:    clients,
		window:     opts.Window,
		touchAfter: opts.TouchAfter,
		now:        opts.Now,
		runAsync:   opts.RunAsync,
		logger:     factory.NewModuleLogger("account-rotator"),
	}
	if r.window <= 0 {
		r.window = DefaultWindow
	}
	if r.touchAfter <= 0 {
		r.touchAfter = DefaultTouchAfter
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.runAsync == nil {
		r.runAsync = func(fn func()) { go fn() }
	}
	return r
}

func (r *Rotator) Window() time.Duration {
	return r.window
}

// Active returns the account serving the current window with a client bound to its secret key.
func (r *Rotator) Active(ctx context.Context) (*ActiveAccount, error) {
	cfg, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if cfg == nil {
		return nil, ErrNoActiveAccount
	}

	now := r.now()
	selection, err := Select(cfg.Accounts, now, r.window)
	if err != nil {
		return nil, err
	}

	account := selection.Account
	metrics.RecordRotationSelection(account.Label)

	if now.UnixMilli()-account.LastUsedAt > r.touchAfter.Milliseconds() {
		label := account.Label
		r.runAsync(func() {
			r.touch(label, now)
		})
	}

	return &ActiveAccount{
		Account:         account,
		Client:          r.clients.ForAccount(account),
		DefaultCurrency: cfg.DefaultCurrency,
	}, nil
}

// Status reports the current selection without side effects.
func (r *Rotator) Status(ctx context.Context) (*Status, error) {
	cfg, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if cfg == nil {
		return nil, ErrNoActiveAccount
	}

	selection, err := Select(cfg.Accounts, r.now(), r.window)
	if err != nil {
		return nil, err
	}

	return &Status{
		Account:      selection.Account,
		Slot:         selection.Index + 1,
		TotalSlots:   selection.Total,
		NextRotation: selection.NextRotation,
	}, nil
}

func (r *Rotator) touch(label string, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	cfg, err := r.store.Load(ctx)
	if err != nil || cfg == nil {
		r.logger.WithError(err).WithField("account", label).Warn("last-used update skipped")
		return
	}

	accounts := entity.CloneAccounts(cfg.Accounts)
	changed := false
	for i := range accounts {
		if accounts[i].Label != label {
			continue
		}
		if now.UnixMilli()-accounts[i].LastUsedAt > r.touchAfter.Milliseconds() {
			accounts[i].LastUsedAt = now.UnixMilli()
			changed = true
		}
		break
	}
	if !changed {
		return
	}

	// the accounts array is written whole, so it only lands on the config it was read from.
	written, err := r.store.CompareAndSave(ctx, &entity.ConfigPatch{Accounts: accounts}, cfg.UpdatedAt)
	if err != nil {
		r.logger.WithError(err).WithField("account", label).Warn("last-used update failed")
		return
	}
	if !written {
		r.logger.WithField("account", label).Debug("last-used update skipped, config changed")
	}
}
