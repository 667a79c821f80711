package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/storefront"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

const (
	defaultMinimumAmountCents = int64(50)
	defaultCurrency           = "EUR"
	defaultCountry            = "IT"
	defaultDecoyTitle         = "NFR Product"
	defaultDescriptorFallback = "NFR"
	defaultOrderClaimTTL      = 2 * time.Minute
	defaultCartClearTimeout   = 3 * time.Second
	defaultBatchSize          = int32(50)
	statsTransactionLimit     = int32(100)
	maxOrderErrorLength       = 500
)

type accountRotator interface {
	Active(ctx context.Context) (*rotation.ActiveAccount, error)
	Status(ctx context.Context) (*rotation.Status, error)
	Window() time.Duration
}

type configStore interface {
	Load(ctx context.Context) (*entity.CheckoutConfig, error)
	Save(ctx context.Context, patch *entity.ConfigPatch) error
	CompareAndSave(ctx context.Context, patch *entity.ConfigPatch, loadedUpdatedAt int64) (bool, error)
}

type sessionStore interface {
	Get(ctx context.Context, id string) (*entity.Session, error)
	Update(ctx context.Context, id string, patch *entity.SessionPatch) error
	CompareAndUpdate(ctx context.Context, id string, guard entity.SessionGuard, patch *entity.SessionPatch) (bool, error)
	ListUnlinkedPaid(ctx context.Context, claimFreeBefore time.Time, limit int32) ([]*entity.Session, error)
}

type transactionStore interface {
	Append(ctx context.Context, txn *entity.Transaction) error
	ListByDate(ctx context.Context, date string, limit int32) ([]*entity.Transaction, error)
}

type customerCache interface {
	Get(ctx context.Context, accountLabel, email string) (string, error)
	Set(ctx context.Context, accountLabel, email, customerID string) error
}

type orderMaterializer interface {
	CreateOrder(ctx context.Context, input storefront.OrderInput) (*storefront.OrderResult, error)
	ClearCart(ctx context.Context, shop entity.ShopifySettings, cartID string) error
}

type orderPublisher interface {
	PublishOrderMaterialized(ctx context.Context, txn *entity.Transaction) error
}

// Dependencies lists the collaborators of CheckoutService. Customers and Publisher are optional.
type Dependencies struct {
	Rotator      accountRotator
	Configs      configStore
	Sessions     sessionStore
	Transactions transactionStore
	Verifier     provider.WebhookVerifier
	Orders       orderMaterializer
	Customers    customerCache
	Publisher    orderPublisher
	Random       provider.RandomSource
	Now          func() time.Time
}

type CheckoutService struct {
	rotator      accountRotator
	configs      configStore
	sessions     sessionStore
	transactions transactionStore
	verifier     provider.WebhookVerifier
	orders       orderMaterializer
	customers    customerCache
	publisher    orderPublisher
	random       provider.RandomSource
	now          func() time.Time
	checkoutCfg  config.CheckoutConfig
	batchSize    int32
	logger       logrus.FieldLogger
}

func NewCheckoutService(deps Dependencies, checkoutCfg config.CheckoutConfig, jobsCfg config.JobsConfig) *CheckoutService {
	s := &CheckoutService{
		rotator:      deps.Rotator,
		configs:      deps.Configs,
		sessions:     deps.Sessions,
		transactions: deps.Transactions,
		verifier:     deps.Verifier,
		orders:       deps.Orders,
		customers:    deps.Customers,
		publisher:    deps.Publisher,
		random:       deps.Random,
		now:          deps.Now,
		checkoutCfg:  checkoutCfg,
		batchSize:    jobsCfg.BatchSize,
		logger:       factory.NewModuleLogger("checkout-service"),
	}
	if s.random == nil {
		s.random = globalRandom{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	return s
}

func (s *CheckoutService) minimumAmount() int64 {
	if s.checkoutCfg.MinimumAmountCents > 0 {
		return s.checkoutCfg.MinimumAmountCents
	}
	return defaultMinimumAmountCents
}

func (s *CheckoutService) orderClaimTTL() time.Duration {
	if s.checkoutCfg.OrderClaimTTL > 0 {
		return s.checkoutCfg.OrderClaimTTL
	}
	return defaultOrderClaimTTL
}

func (s *CheckoutService) cartClearTimeout() time.Duration {
	if s.checkoutCfg.CartClearTimeout > 0 {
		return s.checkoutCfg.CartClearTimeout
	}
	return defaultCartClearTimeout
}

func (s *CheckoutService) loadConfig(ctx context.Context) (*entity.CheckoutConfig, error) {
	cfg, err := s.configs.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &entity.CheckoutConfig{}, nil
	}
	return cfg, nil
}

type globalRandom struct{}

func (globalRandom) Intn(n int) int {
	return rand.Intn(n)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func stringPtr(v string) *string {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
