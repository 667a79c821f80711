package cmd

import (
	"context"
	"database/sql"
	"io"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/cache"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/events"
	checkoutfirestore "github.com/vibast-solutions/ms-go-checkout/app/firestore"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/storefront"
	"github.com/vibast-solutions/ms-go-checkout/app/tracing"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type orderPublisher interface {
	PublishOrderMaterialized(ctx context.Context, txn *entity.Transaction) error
	io.Closer
}

type closer struct {
	name  string
	close func() error
}

func mustCreateCheckoutService() (*config.Config, *service.CheckoutService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx := context.Background()
	var closers []closer

	shutdownTracing, err := tracing.Init(cfg.App.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize tracing")
	}
	closers = append(closers, closer{name: "tracing", close: func() error { return shutdownTracing(context.Background()) }})

	deps := service.Dependencies{}
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		client, err := checkoutfirestore.NewClient(ctx, checkoutfirestore.ClientConfig{
			ProjectID:       cfg.Firestore.ProjectID,
			CredentialsFile: cfg.Firestore.CredentialsFile,
			EmulatorHost:    cfg.Firestore.EmulatorHost,
		})
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Firestore")
		}
		closers = append(closers, closer{name: "firestore", close: client.Close})

		deps.Configs = checkoutfirestore.NewConfigStore(client)
		deps.Sessions = checkoutfirestore.NewSessionStore(client)
		deps.Transactions = checkoutfirestore.NewTransactionStore(client)
	default:
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}

		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := db.Ping(); err != nil {
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to ping database")
		}
		closers = append(closers, closer{name: "database", close: db.Close})

		deps.Configs = repository.NewConfigRepository(db)
		deps.Sessions = repository.NewSessionRepository(db)
		deps.Transactions = repository.NewTransactionRepository(db)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		closers = append(closers, closer{name: "redis", close: rdb.Close})
		deps.Customers = cache.NewCustomerCache(rdb, cfg.Redis.CustomerTTL)
	}

	var publisher orderPublisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize Kafka producer")
		}
		publisher = events.NewKafkaPublisher(producer, cfg.Kafka.OrderTopic)
	}
	closers = append(closers, closer{name: "publisher", close: publisher.Close})
	deps.Publisher = publisher

	stripeFactory := provider.NewStripeFactory(provider.StripeConfig{
		APIBaseURL:                cfg.Stripe.APIBaseURL,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
	})
	deps.Verifier = provider.NewStripeVerifier(cfg.Stripe.SignatureToleranceSeconds)
	deps.Rotator = rotation.NewRotator(deps.Configs, stripeFactory, rotation.Options{
		Window:     cfg.Checkout.RotationWindow,
		TouchAfter: cfg.Checkout.LastUsedStaleAfter,
	})
	deps.Orders = storefront.NewShopifyClient(storefront.ShopifyConfig{
		ShopDomain:      cfg.Shopify.ShopDomain,
		AdminToken:      cfg.Shopify.AdminToken,
		StorefrontToken: cfg.Shopify.StorefrontToken,
		APIVersion:      cfg.Shopify.APIVersion,
		Timeout:         cfg.Shopify.HTTPTimeout,
	})

	checkoutService := service.NewCheckoutService(deps, cfg.Checkout, cfg.Jobs)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(); err != nil {
				logrus.WithError(err).WithField("resource", closers[i].name).Warn("Failed to close resource")
			}
		}
	}

	return cfg, checkoutService, cleanup
}
