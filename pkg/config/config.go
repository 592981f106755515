package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	PayMongo     PayMongoConfig
	Sendgrid     SendgridConfig
	Outbox       OutboxConfig
	Fulfillment  FulfillmentConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"THREADLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"THREADLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"THREADLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"THREADLINE_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"THREADLINE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"THREADLINE_SERVICE_KIND" default:"api"`
	// MetricsPort exposes /metrics from the background workers. Empty disables it.
	MetricsPort string `envconfig:"THREADLINE_METRICS_PORT"`
}

type DBConfig struct {
	DSN    string `envconfig:"THREADLINE_DB_DSN"`
	Driver string `envconfig:"THREADLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"THREADLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"THREADLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"THREADLINE_DB_USER"`
	LegacyPassword string `envconfig:"THREADLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"THREADLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"THREADLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"THREADLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"THREADLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"THREADLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"THREADLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"THREADLINE_DB_LOCK_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"THREADLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"THREADLINE_REDIS_ADDR"`
	Password     string        `envconfig:"THREADLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"THREADLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"THREADLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"THREADLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"THREADLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"THREADLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"THREADLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the storefront's auth service.
type JWTConfig struct {
	Secret            string `envconfig:"THREADLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"THREADLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"THREADLINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"THREADLINE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"THREADLINE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"THREADLINE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"THREADLINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"THREADLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"THREADLINE_GCS_BUCKET_NAME" required:"true"`
	DownloadURLExpiry time.Duration `envconfig:"THREADLINE_GCS_DOWNLOAD_URL_EXPIRY" default:"15m"`
	MaxUploadMB       int           `envconfig:"THREADLINE_MAX_UPLOAD_MB" default:"20"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"THREADLINE_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription       string `envconfig:"THREADLINE_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"THREADLINE_PUBSUB_NOTIFICATION_TOPIC" default:"tl-notification-events"`
	NotificationSubscription string `envconfig:"THREADLINE_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"THREADLINE_BIGQUERY_DATASET" default:"threadline"`
	OrderEventsTable string `envconfig:"THREADLINE_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type PayMongoConfig struct {
	BaseURL       string        `envconfig:"THREADLINE_PAYMONGO_BASE_URL" default:"https://api.paymongo.com/v1"`
	SecretKey     string        `envconfig:"THREADLINE_PAYMONGO_SECRET_KEY"`
	WebhookSecret string        `envconfig:"THREADLINE_PAYMONGO_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"THREADLINE_PAYMONGO_TIMEOUT" default:"15s"`
}

type SendgridConfig struct {
	BaseURL                   string `envconfig:"THREADLINE_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
	APIKey                    string `envconfig:"THREADLINE_SENDGRID_API_KEY"`
	DefaultFrom               string `envconfig:"THREADLINE_SENDGRID_FROM_EMAIL"`
	OrderConfirmationTemplate string `envconfig:"THREADLINE_SENDGRID_ORDER_CONFIRMATION_TEMPLATE"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"THREADLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"THREADLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"THREADLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// FulfillmentConfig tunes order placement.
type FulfillmentConfig struct {
	OrderNumberAttempts  int    `envconfig:"THREADLINE_ORDER_NUMBER_ATTEMPTS" default:"5"`
	DefaultPaymentMethod string `envconfig:"THREADLINE_DEFAULT_PAYMENT_METHOD" default:"gcash"`
}

// RateLimitConfig caps how often a caller may hit the endpoints that reach
// external providers. A zero limit disables that counter.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"THREADLINE_RATE_LIMIT_WINDOW" default:"1m"`
	OrdersIPLimit   int           `envconfig:"THREADLINE_RATE_LIMIT_ORDERS_IP" default:"30"`
	OrdersUserLimit int           `envconfig:"THREADLINE_RATE_LIMIT_ORDERS_USER" default:"10"`
	QRUserLimit     int           `envconfig:"THREADLINE_RATE_LIMIT_QR_USER" default:"10"`
	WebhookIPLimit  int           `envconfig:"THREADLINE_RATE_LIMIT_WEBHOOK_IP" default:"120"`
}

// CronConfig schedules the maintenance jobs run by cmd/cron-worker.
type CronConfig struct {
	Interval                  time.Duration `envconfig:"THREADLINE_CRON_INTERVAL" default:"24h"`
	OutboxRetentionDays       int           `envconfig:"THREADLINE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"THREADLINE_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
}

// Configured reports whether outbound PayMongo calls can be made.
func (p PayMongoConfig) Configured() bool {
	return strings.TrimSpace(p.SecretKey) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
