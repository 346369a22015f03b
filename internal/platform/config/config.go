package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	AuthModeDemo     = "demo"
	AuthModeFile     = "file"
	AuthModePostgres = "postgres"

	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Addr                   string        `env:"APP_ADDR, default=:8080"`
	Environment            string        `env:"APP_ENV, default=development"`
	LogLevel               string        `env:"LOG_LEVEL, default=info"`
	LogPretty              bool          `env:"LOG_PRETTY, default=false"`
	ClientSecret           string        `env:"CLIENT_TOKEN_SECRET"`
	ClientTokenTTL         time.Duration `env:"CLIENT_TOKEN_TTL, default=720h"`
	CookieSecure           bool          `env:"COOKIE_SECURE, default=false"`
	DataEncryptionKey      string        `env:"DATA_ENCRYPTION_KEY"`
	AssetsDir              string        `env:"ASSETS_DIR, default=web/assets"`
	MaxBodyBytes           int64         `env:"MAX_BODY_BYTES, default=1048576"`
	AuthRateLimitPerMinute int           `env:"AUTH_RATE_LIMIT_PER_MINUTE, default=20"`
	TrustedProxies         []string      `env:"TRUSTED_PROXIES"`
	MetricsEnabled         bool          `env:"METRICS_ENABLED, default=true"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`

	Auth     AuthConfig
	Snapshot SnapshotConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Jobs     JobsConfig
}

type AuthConfig struct {
	Mode               string        `env:"AUTH_MODE, default=demo"`
	DemoElevatedEmails []string      `env:"DEMO_ELEVATED_EMAILS, default=admin@example.com"`
	DemoLatency        time.Duration `env:"DEMO_LATENCY, default=1s"`
	AccountsFile       string        `env:"ACCOUNTS_FILE"`
	ExchangeTimeout    time.Duration `env:"EXCHANGE_TIMEOUT, default=10s"`
	AllowSelfSignup    bool          `env:"ALLOW_SELF_SIGNUP, default=true"`
}

type SnapshotConfig struct {
	Backend   string        `env:"SNAPSHOT_BACKEND, default=memory"`
	Dir       string        `env:"SNAPSHOT_DIR, default=data/snapshots"`
	TTL       time.Duration `env:"SNAPSHOT_TTL, default=720h"`
	KeyPrefix string        `env:"SNAPSHOT_KEY_PREFIX, default=hrportal:"`
}

type DatabaseConfig struct {
	URL               string `env:"DATABASE_URL"`
	RunMigrations     bool   `env:"RUN_MIGRATIONS, default=true"`
	RunSeed           bool   `env:"RUN_SEED, default=true"`
	SeedAdminEmail    string `env:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`
	SeedAdminName     string `env:"SEED_ADMIN_NAME, default=Administrator"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	DB       int    `env:"REDIS_DB, default=0"`
	Password string `env:"REDIS_PASSWORD"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB, default=hrportal"`
}

type JobsConfig struct {
	ProviderIdleTTL time.Duration `env:"PROVIDER_IDLE_TTL, default=30m"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL, default=5m"`
}

// Load reads a .env file when present, then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.ClientSecret == "" && !cfg.IsProduction() {
		cfg.ClientSecret = randomSecret()
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) NeedsDatabase() bool {
	return c.Auth.Mode == AuthModePostgres || c.Snapshot.Backend == BackendPostgres
}

func (c Config) Validate() error {
	if c.IsProduction() {
		if strings.TrimSpace(c.ClientSecret) == "" {
			return fmt.Errorf("CLIENT_TOKEN_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.Auth.Mode == AuthModeDemo {
			return fmt.Errorf("AUTH_MODE=demo accepts any password and is not allowed in production")
		}
		if c.Snapshot.Backend == BackendMemory {
			return fmt.Errorf("SNAPSHOT_BACKEND=memory loses sessions on restart and is not allowed in production")
		}
	}

	switch c.Auth.Mode {
	case AuthModeDemo:
	case AuthModeFile:
		if strings.TrimSpace(c.Auth.AccountsFile) == "" {
			return fmt.Errorf("ACCOUNTS_FILE is required when AUTH_MODE is file")
		}
	case AuthModePostgres:
	default:
		return fmt.Errorf("AUTH_MODE must be one of demo, file, postgres")
	}

	switch c.Snapshot.Backend {
	case BackendMemory, BackendRedis, BackendMongo, BackendPostgres:
	case BackendFile:
		if strings.TrimSpace(c.Snapshot.Dir) == "" {
			return fmt.Errorf("SNAPSHOT_DIR is required when SNAPSHOT_BACKEND is file")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of memory, file, redis, postgres, mongo")
	}

	if c.NeedsDatabase() && strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required for the configured auth mode or snapshot backend")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.AuthRateLimitPerMinute <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if c.Auth.ExchangeTimeout <= 0 {
		return fmt.Errorf("EXCHANGE_TIMEOUT must be positive")
	}
	if c.Snapshot.TTL <= 0 {
		return fmt.Errorf("SNAPSHOT_TTL must be positive")
	}
	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. Entries are CIDRs or single
// addresses; only peers inside them may set the client IP via
// X-Forwarded-For.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", entry)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("config: generate client secret: %v", err))
	}
	return hex.EncodeToString(buf)
}
