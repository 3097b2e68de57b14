package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// RedisConfig with an empty Addr disables redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	ErrorKey string
}

// StorageConfig with an empty Endpoint keeps uploads inline as data URLs.
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	PublicBaseURL string
}

type OperatorConfig struct {
	Username     string
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
	CookieName   string
}

type AnalyticsConfig struct {
	// Store selects the SessionStore variant: auto, postgres, memory or null.
	Store         string
	CompletedStep int
	IdleTimeout   time.Duration
	SweepSchedule string
	ErrorCap      int
	MaxSaveBytes  int64
	MaxTrackBytes int64
	MaxProofBytes int64
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Operator         OperatorConfig
	Analytics        AnalyticsConfig
	AllowCORSOrigins []string
}

// IsDevelopment relaxes the operator credential check on admin routes.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("CVBUILDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return load(v)
}

func load(v *viper.Viper) (*AppConfig, error) {
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch cfg.Analytics.Store {
	case "auto", "postgres", "memory", "null":
	default:
		return nil, fmt.Errorf("unknown analytics.store %q", cfg.Analytics.Store)
	}
	if cfg.Analytics.Store == "postgres" && cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("analytics.store=postgres requires postgres.dsn")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.errorkey", "cvbuilder:errors")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "cvbuilder-uploads")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("operator.username", "admin")
	v.SetDefault("operator.tokenttl", "12h")
	v.SetDefault("operator.cookiename", "cvb_operator")

	v.SetDefault("analytics.store", "auto")
	v.SetDefault("analytics.completedstep", 4)
	v.SetDefault("analytics.idletimeout", "30m")
	v.SetDefault("analytics.sweepschedule", "0 */5 * * * *")
	v.SetDefault("analytics.errorcap", 500)
	v.SetDefault("analytics.maxsavebytes", 5*1024*1024)
	v.SetDefault("analytics.maxtrackbytes", 1024*1024)
	v.SetDefault("analytics.maxproofbytes", 5*1024*1024)
}
