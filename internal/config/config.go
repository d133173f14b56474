package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-esewa-storefront/internal/esewa"
)

// Config is the process configuration read from the environment.
// AWS_REGION and AWS_ENDPOINT_OVERRIDE are read by the aws package.
type Config struct {
	HTTPAddr    string
	RunLocal    bool
	ServiceName string
	Env         string

	ProductsTable    string
	CategoriesTable  string
	OrdersTable      string
	PaymentsTable    string
	UsersTable       string
	IdempotencyTable string
	IdempotencyTTL   time.Duration

	EventsQueueURL string
	RedisAddr      string
	CacheTTL       time.Duration

	FrontendURL string
	AdminAPIKey string
	TokenTTL    time.Duration

	Esewa esewa.Config

	ReserveStock bool
	VerifyTotals bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	MetricsNamespace string

	DynamoEndpoint string
	AWSMaxAttempts int
}

// LoadDotEnv loads .env into the environment when present. Existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

func Load() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		RunLocal:    getbool("RUN_LOCAL", false),
		ServiceName: getenv("SERVICE_NAME", "storefront-api"),
		Env:         getenv("ENV", "local"),

		ProductsTable:    getenv("PRODUCTS_TABLE", "products"),
		CategoriesTable:  getenv("CATEGORIES_TABLE", "categories"),
		OrdersTable:      getenv("ORDERS_TABLE", "orders"),
		PaymentsTable:    getenv("PAYMENTS_TABLE", "payments"),
		UsersTable:       getenv("USERS_TABLE", "users"),
		IdempotencyTable: getenv("IDEMPOTENCY_TABLE", "idempotency"),
		IdempotencyTTL:   getduration("IDEMPOTENCY_TTL", 48*time.Hour),

		EventsQueueURL: getenv("EVENTS_QUEUE_URL", ""),
		RedisAddr:      getenv("REDIS_ADDR", ""),
		CacheTTL:       getduration("CACHE_TTL", 5*time.Minute),

		FrontendURL: getenv("FRONTEND_URL", "http://localhost:5173"),
		AdminAPIKey: getenv("ADMIN_API_KEY", ""),
		TokenTTL:    getduration("TOKEN_TTL", time.Hour),

		Esewa: esewa.Config{
			SecretKey:   getenv("ESEWA_SECRET_KEY", esewa.DefaultSecretKey),
			ProductCode: getenv("ESEWA_PRODUCT_CODE", esewa.DefaultProductCode),
			FormURL:     getenv("ESEWA_FORM_URL", esewa.DefaultFormURL),
			StatusURL:   getenv("ESEWA_STATUS_URL", esewa.DefaultStatusURL),
			SuccessURL:  getenv("ESEWA_SUCCESS_URL", ""),
			FailureURL:  getenv("ESEWA_FAILURE_URL", ""),
			Timeout:     getduration("ESEWA_TIMEOUT", 10*time.Second),
		},

		ReserveStock: getbool("ORDER_RESERVE_STOCK", false),
		VerifyTotals: getbool("ORDER_VERIFY_TOTALS", false),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getint("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "no-reply@storefront.local"),

		MetricsNamespace: getenv("METRICS_NAMESPACE", "storefront"),

		DynamoEndpoint: getenv("DYNAMODB_ENDPOINT", ""),
		AWSMaxAttempts: getint("AWS_MAX_ATTEMPTS", 0),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return b
}

func getint(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}

// getduration accepts Go durations ("90s") or plain seconds.
func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
