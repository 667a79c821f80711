package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/storefront"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type memConfigStore struct {
	mu      sync.Mutex
	cfg     *entity.CheckoutConfig
	saves   int
	loadErr error
}

func (s *memConfigStore) Load(_ context.Context) (*entity.CheckoutConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.cfg == nil {
		return nil, nil
	}
	copyCfg := *s.cfg
	copyCfg.Accounts = entity.CloneAccounts(s.cfg.Accounts)
	return &copyCfg, nil
}

func (s *memConfigStore) Save(_ context.Context, patch *entity.ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		s.cfg = &entity.CheckoutConfig{}
	}
	patch.Apply(s.cfg)
	s.cfg.UpdatedAt++
	s.saves++
	return nil
}

func (s *memConfigStore) CompareAndSave(_ context.Context, patch *entity.ConfigPatch, loadedUpdatedAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil || s.cfg.UpdatedAt != loadedUpdatedAt {
		return false, nil
	}
	patch.Apply(s.cfg)
	s.cfg.UpdatedAt++
	return true, nil
}

type memSessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*entity.Session
	updates   int
	casCalls  int
	getErr    error
	updateErr func(patch *entity.SessionPatch) error
}

func newMemSessionStore(items ...*entity.Session) *memSessionStore {
	store := &memSessionStore{sessions: map[string]*entity.Session{}}
	for _, item := range items {
		copyItem := *item
		store.sessions[item.ID] = &copyItem
	}
	return store
}

func (s *memSessionStore) Get(_ context.Context, id string) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	item, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (s *memSessionStore) Update(_ context.Context, id string, patch *entity.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		if err := s.updateErr(patch); err != nil {
			return err
		}
	}
	item, ok := s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	patch.Apply(item)
	s.updates++
	return nil
}

func (s *memSessionStore) CompareAndUpdate(_ context.Context, id string, guard entity.SessionGuard, patch *entity.SessionPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls++
	item, ok := s.sessions[id]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if !guard.Holds(item) {
		return false, nil
	}
	patch.Apply(item)
	return true, nil
}

func (s *memSessionStore) ListUnlinkedPaid(_ context.Context, claimFreeBefore time.Time, limit int32) ([]*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guard := entity.SessionGuard{OrderUnlinked: true, ClaimFreeBefore: &claimFreeBefore}
	items := make([]*entity.Session, 0)
	for _, item := range s.sessions {
		if item.PaymentStatus != entity.PaymentStatusSucceeded && item.PaymentStatus != entity.PaymentStatusOrderFailed {
			continue
		}
		if item.PaymentIntentID == "" || !guard.Holds(item) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if int32(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *memSessionStore) session(id string) *entity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.sessions[id]
	if item == nil {
		return nil
	}
	copyItem := *item
	return &copyItem
}

type memTransactionStore struct {
	mu        sync.Mutex
	items     []*entity.Transaction
	appendErr error
}

func (s *memTransactionStore) Append(_ context.Context, txn *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	for _, item := range s.items {
		if item.PaymentIntentID == txn.PaymentIntentID {
			return repository.ErrTransactionAlreadyExists
		}
	}
	copyItem := *txn
	s.items = append(s.items, &copyItem)
	return nil
}

func (s *memTransactionStore) ListByDate(_ context.Context, date string, limit int32) ([]*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range s.items {
		if item.Date == date {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if int32(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *memTransactionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// fakePaymentClient simulates one provider account: customers are unique per email.
type fakePaymentClient struct {
	mu              sync.Mutex
	label           string
	customers       map[string]string
	createdCustomer int
	intents         []*provider.PaymentIntentInput
	findErr         error
	createErr       error
	intentErr       error
}

func (c *fakePaymentClient) FindCustomerByEmail(_ context.Context, email string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return "", c.findErr
	}
	return c.customers[email], nil
}

func (c *fakePaymentClient) CreateCustomer(_ context.Context, input *provider.CustomerInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	if c.customers == nil {
		c.customers = map[string]string{}
	}
	if id, ok := c.customers[input.Email]; ok {
		return id, nil
	}
	c.createdCustomer++
	id := "cus_" + c.label + "_" + input.Email
	c.customers[input.Email] = id
	return id, nil
}

func (c *fakePaymentClient) CreatePaymentIntent(_ context.Context, input *provider.PaymentIntentInput) (*provider.PaymentIntentOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intentErr != nil {
		return nil, c.intentErr
	}
	c.intents = append(c.intents, input)
	id := "pi_" + c.label
	return &provider.PaymentIntentOutput{
		ID:           id,
		ClientSecret: id + "_secret",
		AmountCents:  input.AmountCents,
		Currency:     input.Currency,
	}, nil
}

type fakeClientFactory struct {
	clients map[string]*fakePaymentClient
}

func newFakeClientFactory() *fakeClientFactory {
	return &fakeClientFactory{clients: map[string]*fakePaymentClient{}}
}

func (f *fakeClientFactory) ForAccount(account entity.Account) provider.PaymentClient {
	return f.client(account.Label)
}

func (f *fakeClientFactory) client(label string) *fakePaymentClient {
	if c, ok := f.clients[label]; ok {
		return c
	}
	c := &fakePaymentClient{label: label, customers: map[string]string{}}
	f.clients[label] = c
	return c
}

// fakeVerifier accepts a signature of the form "v1=<secret>" and records every secret tried.
type fakeVerifier struct {
	mu    sync.Mutex
	event *provider.WebhookEvent
	tried []string
}

func (v *fakeVerifier) Verify(_ []byte, signature string, secret string) (*provider.WebhookEvent, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tried = append(v.tried, secret)
	if signature != "v1="+secret {
		return nil, provider.ErrSignatureMismatch
	}
	copyEvent := *v.event
	return &copyEvent, nil
}

type fakeOrders struct {
	mu          sync.Mutex
	createCalls int
	inputs      []storefront.OrderInput
	clearCalls  []string
	createFunc  func(input storefront.OrderInput) (*storefront.OrderResult, error)
	clearErr    error
}

func (o *fakeOrders) CreateOrder(_ context.Context, input storefront.OrderInput) (*storefront.OrderResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.createCalls++
	o.inputs = append(o.inputs, input)
	if o.createFunc != nil {
		return o.createFunc(input)
	}
	return &storefront.OrderResult{OrderID: "gid://shopify/Order/1001", OrderNumber: "#1001"}, nil
}

func (o *fakeOrders) ClearCart(_ context.Context, _ entity.ShopifySettings, cartID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearCalls = append(o.clearCalls, cartID)
	return o.clearErr
}

type fakePublisher struct {
	published []*entity.Transaction
	err       error
}

func (p *fakePublisher) PublishOrderMaterialized(_ context.Context, txn *entity.Transaction) error {
	p.published = append(p.published, txn)
	return p.err
}

type fakeCustomerCache struct {
	items  map[string]string
	getErr error
}

func (c *fakeCustomerCache) Get(_ context.Context, label, email string) (string, error) {
	if c.getErr != nil {
		return "", c.getErr
	}
	return c.items[label+"|"+email], nil
}

func (c *fakeCustomerCache) Set(_ context.Context, label, email, customerID string) error {
	if c.items == nil {
		c.items = map[string]string{}
	}
	c.items[label+"|"+email] = customerID
	return nil
}

type fixedRandom int

func (r fixedRandom) Intn(n int) int {
	return int(r) % n
}

type harness struct {
	svc          *CheckoutService
	configs      *memConfigStore
	sessions     *memSessionStore
	transactions *memTransactionStore
	clients      *fakeClientFactory
	verifier     *fakeVerifier
	orders       *fakeOrders
	publisher    *fakePublisher
	now          time.Time
}

var errStoreDown = errors.New("store unavailable")

// windowTime returns an instant inside rotation window idx.
func windowTime(idx int64) time.Time {
	return time.UnixMilli(idx*rotation.DefaultWindow.Milliseconds() + 1000).UTC()
}

func testAccounts() []entity.Account {
	return []entity.Account{
		{Label: "A", SecretKey: "sk_a", PublishableKey: "pk_a", WebhookSecret: "whsec_a", Active: true, Order: 0, MerchantSite: "https://a.example.com", ProductTitles: []string{"Alpha"}},
		{Label: "B", SecretKey: "sk_b", PublishableKey: "pk_b", WebhookSecret: "whsec_b", Active: true, Order: 1, MerchantSite: "https://b.example.com"},
	}
}

func newHarness(now time.Time, accounts []entity.Account, sessions ...*entity.Session) *harness {
	h := &harness{
		configs: &memConfigStore{cfg: &entity.CheckoutConfig{
			Accounts:        accounts,
			DefaultCurrency: "eur",
			Shopify:         entity.ShopifySettings{ShopDomain: "shop.myshopify.com", AdminToken: "shpat"},
		}},
		sessions:     newMemSessionStore(sessions...),
		transactions: &memTransactionStore{},
		clients:      newFakeClientFactory(),
		verifier:     &fakeVerifier{},
		orders:       &fakeOrders{},
		publisher:    &fakePublisher{},
		now:          now,
	}

	clock := func() time.Time { return h.now }
	rotator := rotation.NewRotator(h.configs, h.clients, rotation.Options{
		Now:      clock,
		RunAsync: func(fn func()) { fn() },
	})

	h.svc = NewCheckoutService(Dependencies{
		Rotator:      rotator,
		Configs:      h.configs,
		Sessions:     h.sessions,
		Transactions: h.transactions,
		Verifier:     h.verifier,
		Orders:       h.orders,
		Publisher:    h.publisher,
		Random:       fixedRandom(0),
		Now:          clock,
	}, config.CheckoutConfig{
		DefaultCurrency:    "EUR",
		DefaultCountry:     "IT",
		MinimumAmountCents: 50,
		DefaultDecoyTitle:  "NFR Product",
		DescriptorFallback: "NFR",
		OrderClaimTTL:      2 * time.Minute,
		CartClearTimeout:   time.Second,
	}, config.JobsConfig{BatchSize: 10})

	return h
}
