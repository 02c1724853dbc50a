package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	ResolutionExact          = "exact"
	ResolutionDealerOverride = "dealer_override"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Pricing      PricingConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DEALERPRICE_APP_ENV" required:"true"`
	Port         string `envconfig:"DEALERPRICE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DEALERPRICE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DEALERPRICE_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the admin UI origins allowed to call the API.
	CORSOrigins []string `envconfig:"DEALERPRICE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DEALERPRICE_DB_DSN"`
	Driver string `envconfig:"DEALERPRICE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DEALERPRICE_DB_HOST"`
	LegacyPort     int    `envconfig:"DEALERPRICE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DEALERPRICE_DB_USER"`
	LegacyPassword string `envconfig:"DEALERPRICE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DEALERPRICE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DEALERPRICE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DEALERPRICE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DEALERPRICE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DEALERPRICE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DEALERPRICE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded SQLite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	Enabled      bool          `envconfig:"DEALERPRICE_REDIS_ENABLED" default:"true"`
	URL          string        `envconfig:"DEALERPRICE_REDIS_URL"`
	Address      string        `envconfig:"DEALERPRICE_REDIS_ADDR"`
	Password     string        `envconfig:"DEALERPRICE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DEALERPRICE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DEALERPRICE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DEALERPRICE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DEALERPRICE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DEALERPRICE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DEALERPRICE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"DEALERPRICE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"DEALERPRICE_JWT_ISSUER" required:"true"`
}

// PricingConfig tunes the validity engine.
type PricingConfig struct {
	ResolutionPolicy   string        `envconfig:"DEALERPRICE_RESOLUTION_POLICY" default:"exact"`
	AdjustmentLeadDays int           `envconfig:"DEALERPRICE_ADJUSTMENT_LEAD_DAYS" default:"1"`
	ScopeLockTTL       time.Duration `envconfig:"DEALERPRICE_SCOPE_LOCK_TTL" default:"10s"`
	// AuditInterval is how often the audit worker sweeps every scope.
	AuditInterval time.Duration `envconfig:"DEALERPRICE_AUDIT_INTERVAL" default:"1h"`
}

func (p *PricingConfig) validate() error {
	p.ResolutionPolicy = strings.ToLower(strings.TrimSpace(p.ResolutionPolicy))
	switch p.ResolutionPolicy {
	case "":
		p.ResolutionPolicy = ResolutionExact
	case ResolutionExact, ResolutionDealerOverride:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvPricingResolutionPolicy, ResolutionExact, ResolutionDealerOverride, p.ResolutionPolicy)
	}
	if p.AdjustmentLeadDays < 1 {
		return fmt.Errorf("%s must be at least 1", EnvPricingAdjustLeadDays)
	}
	return nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DEALERPRICE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DEALERPRICE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:dealer_pricing.db?_foreign_keys=on"
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
