package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Cache         CacheConfig
	Import        ImportConfig
	Kafka         KafkaConfig
	Outbox        OutboxConfig
	Cron          CronConfig
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
	Env          string   `envconfig:"PROCUREMENT_APP_ENV" required:"true"`
	Port         string   `envconfig:"PROCUREMENT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"PROCUREMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PROCUREMENT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"PROCUREMENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PROCUREMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PROCUREMENT_DB_DSN"`
	Driver string `envconfig:"PROCUREMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROCUREMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"PROCUREMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROCUREMENT_DB_USER"`
	LegacyPassword string `envconfig:"PROCUREMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROCUREMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROCUREMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROCUREMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROCUREMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROCUREMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROCUREMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded SQLite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PROCUREMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PROCUREMENT_REDIS_ADDR"`
	Password     string        `envconfig:"PROCUREMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROCUREMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROCUREMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROCUREMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROCUREMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROCUREMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROCUREMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PROCUREMENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PROCUREMENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PROCUREMENT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PROCUREMENT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PROCUREMENT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PROCUREMENT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PROCUREMENT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PROCUREMENT_ARGON_KEY_LEN" default:"32"`
	// ResetTokenTTL bounds how long a mailed reset key can be redeemed.
	ResetTokenTTL time.Duration `envconfig:"PROCUREMENT_PASSWORD_RESET_TTL" default:"24h"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PROCUREMENT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PROCUREMENT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PROCUREMENT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PROCUREMENT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PROCUREMENT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PROCUREMENT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PROCUREMENT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PROCUREMENT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type CacheConfig struct {
	Enabled     bool          `envconfig:"PROCUREMENT_CACHE_ENABLED" default:"true"`
	CategoryTTL time.Duration `envconfig:"PROCUREMENT_CACHE_CATEGORY_TTL" default:"1h"`
	ShopTTL     time.Duration `envconfig:"PROCUREMENT_CACHE_SHOP_TTL" default:"30m"`
	ListingTTL  time.Duration `envconfig:"PROCUREMENT_CACHE_LISTING_TTL" default:"15m"`
}

type ImportConfig struct {
	FetchTimeout   time.Duration `envconfig:"PROCUREMENT_IMPORT_FETCH_TIMEOUT" default:"30s"`
	MaxFeedBytes   int64         `envconfig:"PROCUREMENT_IMPORT_MAX_FEED_BYTES" default:"10485760"`
	Workers        int           `envconfig:"PROCUREMENT_IMPORT_WORKERS" default:"4"`
	PollIntervalMS int           `envconfig:"PROCUREMENT_IMPORT_POLL_MS" default:"1000"`
	MaxAttempts    int           `envconfig:"PROCUREMENT_IMPORT_MAX_ATTEMPTS" default:"3"`
	LockTTL        time.Duration `envconfig:"PROCUREMENT_IMPORT_LOCK_TTL" default:"10m"`
	StaleAfter     time.Duration `envconfig:"PROCUREMENT_IMPORT_STALE_AFTER" default:"30m"`
}

// PollInterval returns the task queue poll cadence.
func (i ImportConfig) PollInterval() time.Duration {
	if i.PollIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(i.PollIntervalMS) * time.Millisecond
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"PROCUREMENT_KAFKA_BROKERS" default:"localhost:9092"`
	EventsTopic  string        `envconfig:"PROCUREMENT_KAFKA_EVENTS_TOPIC" default:"procurement-domain-events"`
	GroupID      string        `envconfig:"PROCUREMENT_KAFKA_GROUP_ID" default:"procurement-notifications"`
	WriteTimeout time.Duration `envconfig:"PROCUREMENT_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PROCUREMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PROCUREMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PROCUREMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PROCUREMENT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"PROCUREMENT_CRON_INTERVAL" default:"1h"`
	JobTimeout        time.Duration `envconfig:"PROCUREMENT_CRON_JOB_TIMEOUT" default:"10m"`
	ConfirmTokenTTL   time.Duration `envconfig:"PROCUREMENT_CONFIRM_TOKEN_TTL" default:"72h"`
	ImportTaskHistory time.Duration `envconfig:"PROCUREMENT_IMPORT_TASK_HISTORY" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
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
