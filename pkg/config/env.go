package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "DEALERPRICE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv       = "DEALERPRICE_APP_ENV"
	EnvPort         = "DEALERPRICE_APP_PORT"
	EnvCORSOrigins  = "DEALERPRICE_CORS_ORIGINS"
	EnvLogLevel     = "DEALERPRICE_LOG_LEVEL"
	EnvLogWarnStack = "DEALERPRICE_LOG_WARN_STACK"

	EnvDBDSN      = "DEALERPRICE_DB_DSN"
	EnvDBDriver   = "DEALERPRICE_DB_DRIVER"
	EnvDBHost     = "DEALERPRICE_DB_HOST"
	EnvDBPort     = "DEALERPRICE_DB_PORT"
	EnvDBUser     = "DEALERPRICE_DB_USER"
	EnvDBPassword = "DEALERPRICE_DB_PASSWORD"
	EnvDBName     = "DEALERPRICE_DB_NAME"
	EnvDBSSLMode  = "DEALERPRICE_DB_SSLMODE"

	EnvRedisEnabled = "DEALERPRICE_REDIS_ENABLED"
	EnvRedisURL     = "DEALERPRICE_REDIS_URL"
	EnvRedisAddr    = "DEALERPRICE_REDIS_ADDR"

	EnvJWTSecret = "DEALERPRICE_JWT_SECRET"
	EnvJWTIssuer = "DEALERPRICE_JWT_ISSUER"

	EnvPricingResolutionPolicy = "DEALERPRICE_RESOLUTION_POLICY"
	EnvPricingAdjustLeadDays   = "DEALERPRICE_ADJUSTMENT_LEAD_DAYS"
	EnvPricingScopeLockTTL     = "DEALERPRICE_SCOPE_LOCK_TTL"
	EnvPricingAuditInterval    = "DEALERPRICE_AUDIT_INTERVAL"

	EnvUseSQLite   = "DEALERPRICE_USE_SQLITE"
	EnvAutoMigrate = "DEALERPRICE_AUTO_MIGRATE"
)

// legacyDBEnvVars must all be present when no DSN is supplied.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
