package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverMySQL     = "mysql"
	StoreDriverFirestore = "firestore"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Store             StoreConfig
	MySQL             MySQLConfig
	Firestore         FirestoreConfig
	Redis             RedisConfig
	Kafka             KafkaConfig
	Tracing           TracingConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Stripe            StripeConfig
	Shopify           ShopifyConfig
	Checkout          CheckoutConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName    string
	APIKey         string
	AdminSecretKey string
	AllowedOrigins []string
}

type ServerConfig struct {
	Host string
	Port string
}

type StoreConfig struct {
	Driver string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	EmulatorHost    string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	CustomerTTL time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	OrderTopic string
}

type TracingConfig struct {
	JaegerEndpoint string
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type StripeConfig struct {
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type ShopifyConfig struct {
	ShopDomain      string
	AdminToken      string
	StorefrontToken string
	APIVersion      string
	HTTPTimeout     time.Duration
}

type CheckoutConfig struct {
	DefaultCurrency     string
	DefaultCountry      string
	MinimumAmountCents  int64
	RotationWindow      time.Duration
	LastUsedStaleAfter  time.Duration
	Require3DS          bool
	DefaultDecoyTitle   string
	DescriptorFallback  string
	OrderClaimTTL       time.Duration
	CartClearTimeout    time.Duration
	IntentRatePerMinute int
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	BatchSize         int32
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMySQL))
	mysqlDSN := os.Getenv("MYSQL_DSN")
	projectID := os.Getenv("FIRESTORE_PROJECT_ID")

	switch driver {
	case StoreDriverMySQL:
		if mysqlDSN == "" {
			return nil, errors.New("MYSQL_DSN environment variable is required")
		}
	case StoreDriverFirestore:
		if projectID == "" {
			return nil, errors.New("FIRESTORE_PROJECT_ID environment variable is required")
		}
	default:
		return nil, errors.New("STORE_DRIVER must be mysql or firestore")
	}

	return &Config{
		App: AppConfig{
			ServiceName:    getEnv("APP_SERVICE_NAME", "checkout-service"),
			APIKey:         getEnv("APP_API_KEY", ""),
			AdminSecretKey: getEnv("ADMIN_SECRET_KEY", ""),
			AllowedOrigins: getListEnv("HTTP_ALLOWED_ORIGINS", []string{"*"}),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Store: StoreConfig{
			Driver: driver,
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Firestore: FirestoreConfig{
			ProjectID:       projectID,
			CredentialsFile: getEnv("FIRESTORE_CREDENTIALS_FILE", ""),
			EmulatorHost:    getEnv("FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getIntEnv("REDIS_DB", 0),
			CustomerTTL: getMinutesEnv("REDIS_CUSTOMER_TTL_MINUTES", 30*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:    getListEnv("KAFKA_BROKERS", nil),
			OrderTopic: getEnv("KAFKA_ORDER_TOPIC", "checkout.order.materialized"),
		},
		Tracing: TracingConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Stripe: StripeConfig{
			APIBaseURL:                getEnv("STRIPE_API_BASE_URL", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 5*time.Second),
		},
		Shopify: ShopifyConfig{
			ShopDomain:      getEnv("SHOPIFY_SHOP_DOMAIN", ""),
			AdminToken:      getEnv("SHOPIFY_ADMIN_TOKEN", ""),
			StorefrontToken: getEnv("SHOPIFY_STOREFRONT_TOKEN", ""),
			APIVersion:      getEnv("SHOPIFY_API_VERSION", "2024-10"),
			HTTPTimeout:     getSecondsEnv("SHOPIFY_HTTP_TIMEOUT_SECONDS", 5*time.Second),
		},
		Checkout: CheckoutConfig{
			DefaultCurrency:     strings.ToUpper(getEnv("CHECKOUT_DEFAULT_CURRENCY", "EUR")),
			DefaultCountry:      strings.ToUpper(getEnv("CHECKOUT_DEFAULT_COUNTRY", "IT")),
			MinimumAmountCents:  int64(getIntEnv("CHECKOUT_MINIMUM_AMOUNT_CENTS", 50)),
			RotationWindow:      getMinutesEnv("CHECKOUT_ROTATION_WINDOW_MINUTES", 6*time.Hour),
			LastUsedStaleAfter:  getMinutesEnv("CHECKOUT_LAST_USED_STALE_MINUTES", time.Hour),
			Require3DS:          getBoolEnv("CHECKOUT_REQUIRE_3DS", false),
			DefaultDecoyTitle:   getEnv("CHECKOUT_DEFAULT_PRODUCT_TITLE", "NFR Product"),
			DescriptorFallback:  getEnv("CHECKOUT_DESCRIPTOR_FALLBACK", "NFR"),
			OrderClaimTTL:       getSecondsEnv("CHECKOUT_ORDER_CLAIM_TTL_SECONDS", 2*time.Minute),
			CartClearTimeout:    getSecondsEnv("CHECKOUT_CART_CLEAR_TIMEOUT_SECONDS", 3*time.Second),
			IntentRatePerMinute: getIntEnv("CHECKOUT_INTENT_RATE_PER_MINUTE", 60),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("CHECKOUT_RECONCILE_INTERVAL_MINUTES", 5*time.Minute),
			BatchSize:         int32(getIntEnv("CHECKOUT_JOB_BATCH_SIZE", 50)),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
