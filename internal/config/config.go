package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "GHOSTWATCH"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "ghostwatch.db"
	defaultReadyTimeoutSecond = 30
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultTokenIssuer        = "ghostwatch-auth"
	defaultTokenAudience      = "ghostwatch-api"
	defaultTokenTTLMinutes    = 60
	defaultAuthRPS            = 1.0
	defaultAuthBurst          = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabaseEngine     store.Engine
	DatabasePath       string
	DatabaseDSN        string
	ReadyTimeout       time.Duration
	SeedEnabled        bool
	LogLevel           string
	LogFormat          string
	AuthSigningSecret  string
	AuthIssuer         string
	AuthAudience       string
	AuthTokenTTL       time.Duration
	CORSAllowedOrigins []string
	AuthRateLimitRPS   float64
	AuthRateLimitBurst int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.engine", "")
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("database.ready_timeout_seconds", defaultReadyTimeoutSecond)
	configViper.SetDefault("seed.enabled", true)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("ratelimit.auth_rps", defaultAuthRPS)
	configViper.SetDefault("ratelimit.auth_burst", defaultAuthBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	engine, err := resolveEngine(configViper.GetString("database.engine"), configViper.GetString("database.dsn"))
	if err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseEngine:     engine,
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		ReadyTimeout:       time.Duration(configViper.GetInt("database.ready_timeout_seconds")) * time.Second,
		SeedEnabled:        configViper.GetBool("seed.enabled"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		AuthTokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		AuthRateLimitRPS:   configViper.GetFloat64("ratelimit.auth_rps"),
		AuthRateLimitBurst: configViper.GetInt("ratelimit.auth_burst"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseEngine {
	case store.EngineSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for %s", c.DatabaseEngine)
		}
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.AuthRateLimitRPS <= 0 || c.AuthRateLimitBurst <= 0 {
		return fmt.Errorf("ratelimit.auth_rps and ratelimit.auth_burst must be positive")
	}
	if len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must list at least one origin")
	}
	return nil
}

// resolveEngine uses the configured engine, or infers it from the DSN scheme
// when none is set.
func resolveEngine(engine, dsn string) (store.Engine, error) {
	if strings.TrimSpace(engine) != "" {
		return store.ParseEngine(engine)
	}
	lowered := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lowered, "postgres://"), strings.HasPrefix(lowered, "postgresql://"):
		return store.EnginePostgres, nil
	case strings.HasPrefix(lowered, "mysql://"):
		return store.EngineMySQL, nil
	default:
		return store.EngineSQLite, nil
	}
}

// splitList accepts both repeated values and a single comma separated value,
// which is how list settings arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
