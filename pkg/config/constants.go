package config

const (
	EnvPrefix = "PROCUREMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:procurement.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv     = "PROCUREMENT_APP_ENV"
	EnvPort       = "PROCUREMENT_APP_PORT"
	EnvDBDSN      = "PROCUREMENT_DB_DSN"
	EnvDBDriver   = "PROCUREMENT_DB_DRIVER"
	EnvDBHost     = "PROCUREMENT_DB_HOST"
	EnvDBUser     = "PROCUREMENT_DB_USER"
	EnvDBName     = "PROCUREMENT_DB_NAME"
	EnvDBPassword = "PROCUREMENT_DB_PASSWORD"
	EnvRedisURL   = "PROCUREMENT_REDIS_URL"
	EnvJWTSecret  = "PROCUREMENT_JWT_SECRET"
	EnvJWTIssuer  = "PROCUREMENT_JWT_ISSUER"
	EnvJWTExpMins = "PROCUREMENT_JWT_EXPIRATION_MINUTES"

	EnvKafkaBrokers    = "PROCUREMENT_KAFKA_BROKERS"
	EnvImportWorkers   = "PROCUREMENT_IMPORT_WORKERS"
	EnvCacheListingTTL = "PROCUREMENT_CACHE_LISTING_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
