package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration for the GestiX API and its tools.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	// Addr is the health-check listener; empty disables gRPC.
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	// Addr selects the Redis session store; empty keeps sessions in memory.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type SessionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookiePath    string        `mapstructure:"cookie_path"`
	CookieDomain  string        `mapstructure:"cookie_domain"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	Secret        string        `mapstructure:"secret"`
	LoginRedirect string        `mapstructure:"login_redirect"`
	// Advertised to clients that poll /check_session.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type AuditConfig struct {
	ServerID     int           `mapstructure:"server_id"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	FilePath     string        `mapstructure:"file_path"`
	MaxSizeMB    int           `mapstructure:"max_size_mb"`
	MaxBackups   int           `mapstructure:"max_backups"`
	MaxAgeDays   int           `mapstructure:"max_age_days"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RateLimitConfig struct {
	LoginBurst     int     `mapstructure:"login_burst"`
	LoginPerSecond float64 `mapstructure:"login_per_second"`
}

// DefaultSessionTimeout is the idle window after which a session is forcibly closed.
const DefaultSessionTimeout = 7200 * time.Second

// DefaultPollInterval is how often browser clients re-check their session.
const DefaultPollInterval = 5 * time.Minute

// Load reads configuration from defaults, an optional config file and
// GESTIX_* environment variables (e.g. GESTIX_DATABASE_DSN).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/gestix/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GESTIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "gestix:sess")

	v.SetDefault("session.timeout", DefaultSessionTimeout)
	v.SetDefault("session.cookie_name", "GESTIXSESSID")
	v.SetDefault("session.cookie_path", "/")
	v.SetDefault("session.cookie_domain", "")
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.login_redirect", "/pages/registro/login/login.html")
	v.SetDefault("session.poll_interval", DefaultPollInterval)

	v.SetDefault("audit.server_id", 1)
	v.SetDefault("audit.write_timeout", 2*time.Second)
	v.SetDefault("audit.file_path", "")
	v.SetDefault("audit.max_size_mb", 100)
	v.SetDefault("audit.max_backups", 10)
	v.SetDefault("audit.max_age_days", 365)

	v.SetDefault("log.level", "info")

	v.SetDefault("rate_limit.login_burst", 10)
	v.SetDefault("rate_limit.login_per_second", 1.0)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Session.Timeout <= 0 {
		return errors.New("config: session.timeout must be positive")
	}
	if c.Session.PollInterval <= 0 {
		return errors.New("config: session.poll_interval must be positive")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("config: session.cookie_name is required")
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 32 {
		return errors.New("config: session.secret must be at least 32 bytes")
	}
	if !strings.HasPrefix(c.Session.LoginRedirect, "/") {
		return errors.New("config: session.login_redirect must be a local path")
	}
	if c.Audit.ServerID <= 0 {
		return errors.New("config: audit.server_id must be positive")
	}
	if c.Audit.WriteTimeout <= 0 {
		return errors.New("config: audit.write_timeout must be positive")
	}
	return nil
}
