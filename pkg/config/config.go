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
	DB           DBConfig
	Redis        RedisConfig
	Orders       OrdersConfig
	Processor    ProcessorConfig
	FeatureFlags FeatureFlagsConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MigrateConfig is the subset needed by the migration CLI, which runs without
// Redis or processor settings.
type MigrateConfig struct {
	Env          string `envconfig:"TOWNDROP_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"TOWNDROP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TOWNDROP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TOWNDROP_LOG_WARN_STACK" default:"false"`
	DB           DBConfig
}

func LoadMigrate() (*MigrateConfig, error) {
	var cfg MigrateConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing migrate config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TOWNDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"TOWNDROP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TOWNDROP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TOWNDROP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TOWNDROP_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"TOWNDROP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TOWNDROP_DB_DSN"`
	Driver string `envconfig:"TOWNDROP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TOWNDROP_DB_HOST"`
	Port     int    `envconfig:"TOWNDROP_DB_PORT" default:"5432"`
	User     string `envconfig:"TOWNDROP_DB_USER"`
	Password string `envconfig:"TOWNDROP_DB_PASSWORD"`
	Name     string `envconfig:"TOWNDROP_DB_NAME"`
	SSLMode  string `envconfig:"TOWNDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TOWNDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TOWNDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TOWNDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TOWNDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL            string        `envconfig:"TOWNDROP_REDIS_URL"`
	Address        string        `envconfig:"TOWNDROP_REDIS_ADDR"`
	Password       string        `envconfig:"TOWNDROP_REDIS_PASSWORD"`
	DB             int           `envconfig:"TOWNDROP_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"TOWNDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"TOWNDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"TOWNDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"TOWNDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"TOWNDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"TOWNDROP_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// OrdersConfig holds the knobs of the order lifecycle.
type OrdersConfig struct {
	Currency            string        `envconfig:"TOWNDROP_ORDERS_CURRENCY" default:"GHS"`
	DeliveryCodeTTL     time.Duration `envconfig:"TOWNDROP_DELIVERY_CODE_TTL" default:"24h"`
	CodeAttemptLimit    int           `envconfig:"TOWNDROP_DELIVERY_CODE_ATTEMPT_LIMIT" default:"5"`
	CodeAttemptWindow   time.Duration `envconfig:"TOWNDROP_DELIVERY_CODE_ATTEMPT_WINDOW" default:"15m"`
	MomoPaymentProvider string        `envconfig:"TOWNDROP_MOMO_PROVIDER_NAME" default:"HUBTEL"`
}

func (o OrdersConfig) validate() error {
	if strings.TrimSpace(o.Currency) == "" {
		return fmt.Errorf("%s must not be empty", EnvOrdersCurrency)
	}
	if o.DeliveryCodeTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvDeliveryCodeTTL)
	}
	return nil
}

// ProcessorConfig configures the mobile-money receive API and its callback.
// Empty credentials leave the client in not-configured mode.
type ProcessorConfig struct {
	ClientID        string        `envconfig:"TOWNDROP_MOMO_CLIENT_ID"`
	ClientSecret    string        `envconfig:"TOWNDROP_MOMO_CLIENT_SECRET"`
	ReceiveMoneyURL string        `envconfig:"TOWNDROP_MOMO_RECEIVE_MONEY_URL"`
	CallbackURL     string        `envconfig:"TOWNDROP_MOMO_CALLBACK_URL"`
	Timeout         time.Duration `envconfig:"TOWNDROP_MOMO_TIMEOUT" default:"15s"`
	WebhookSecret   string        `envconfig:"TOWNDROP_MOMO_WEBHOOK_SECRET"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TOWNDROP_AUTO_MIGRATE" default:"false"`
}

type PubSubConfig struct {
	ProjectID   string `envconfig:"TOWNDROP_GCP_PROJECT_ID"`
	OrdersTopic string `envconfig:"TOWNDROP_PUBSUB_ORDERS_TOPIC" default:"towndrop-order-events"`
	// EnableOrdering keys messages by aggregate id so consumers see one
	// order's events in sequence.
	EnableOrdering bool `envconfig:"TOWNDROP_PUBSUB_ENABLE_ORDERING" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TOWNDROP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TOWNDROP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TOWNDROP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval        time.Duration `envconfig:"TOWNDROP_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"TOWNDROP_CRON_LOCK_TTL" default:"10m"`
	JobTimeout      time.Duration `envconfig:"TOWNDROP_CRON_JOB_TIMEOUT" default:"5m"`
	OutboxRetention time.Duration `envconfig:"TOWNDROP_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
