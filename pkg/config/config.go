package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Market   MarketConfig   `yaml:"market"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Environment  string        `yaml:"environment"`
}

type DatabaseConfig struct {
	Host     string        `yaml:"host"`
	Port     string        `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	MaxLife  time.Duration `yaml:"max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

type JWTConfig struct {
	SecretKey    string        `yaml:"secret_key"`
	ExpiresIn    time.Duration `yaml:"expires_in"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
	DevVerifier  bool          `yaml:"dev_verifier"`
}

// MarketConfig carries the share-market economics knobs.
type MarketConfig struct {
	InitialSupply   float64 `yaml:"initial_supply"`
	SignupCredits   float64 `yaml:"signup_credits"`
	TradeMaxRetries int     `yaml:"trade_max_retries"`
	FeedPageSize    int     `yaml:"feed_page_size"`
	SeedOnStart     bool    `yaml:"seed_on_start"`
}

// Load reads configuration from the environment, optionally layered over a
// YAML file named by CONFIG_FILE. Environment variables win.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			Environment:  "development",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "socialfi_db",
			SSLMode:  "disable",
			MaxOpen:  25,
			MaxIdle:  5,
			MaxLife:  5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     "6379",
			Database: 0,
			PoolSize: 10,
		},
		JWT: JWTConfig{
			SecretKey:    "socialfi-engine-secret-key",
			ExpiresIn:    24 * time.Hour,
			ChallengeTTL: 15 * time.Minute,
			// Off by default so production cannot silently run with the
			// non-verifying signer; AUTH_DEV_VERIFIER=true opts in.
			DevVerifier: false,
		},
		Market: MarketConfig{
			InitialSupply:   100,
			SignupCredits:   1000,
			TradeMaxRetries: 4,
			FeedPageSize:    20,
			SeedOnStart:     true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.Environment = getEnv("ENVIRONMENT", cfg.Server.Environment)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpen = getIntEnv("DB_MAX_OPEN", cfg.Database.MaxOpen)
	cfg.Database.MaxIdle = getIntEnv("DB_MAX_IDLE", cfg.Database.MaxIdle)
	cfg.Database.MaxLife = getDurationEnv("DB_MAX_LIFETIME", cfg.Database.MaxLife)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.Database = getIntEnv("REDIS_DATABASE", cfg.Redis.Database)
	cfg.Redis.PoolSize = getIntEnv("REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	cfg.JWT.SecretKey = getEnv("JWT_SECRET_KEY", cfg.JWT.SecretKey)
	cfg.JWT.ExpiresIn = getDurationEnv("JWT_EXPIRES_IN", cfg.JWT.ExpiresIn)
	cfg.JWT.ChallengeTTL = getDurationEnv("AUTH_CHALLENGE_TTL", cfg.JWT.ChallengeTTL)
	cfg.JWT.DevVerifier = getBoolEnv("AUTH_DEV_VERIFIER", cfg.JWT.DevVerifier)

	cfg.Market.InitialSupply = getFloatEnv("MARKET_INITIAL_SUPPLY", cfg.Market.InitialSupply)
	cfg.Market.SignupCredits = getFloatEnv("MARKET_SIGNUP_CREDITS", cfg.Market.SignupCredits)
	cfg.Market.TradeMaxRetries = getIntEnv("TRADE_MAX_RETRIES", cfg.Market.TradeMaxRetries)
	cfg.Market.FeedPageSize = getIntEnv("FEED_PAGE_SIZE", cfg.Market.FeedPageSize)
	cfg.Market.SeedOnStart = getBoolEnv("SEED_ON_START", cfg.Market.SeedOnStart)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func (c *Config) GetDatabaseURL() string {
	return "postgres://" + c.Database.User + ":" + c.Database.Password + "@" + c.Database.Host + ":" + c.Database.Port + "/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}

func (c *Config) GetRedisURL() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
