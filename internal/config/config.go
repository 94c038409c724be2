package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// StoreConfig selects the state backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // postgres, leveldb, memory
	Path   string `mapstructure:"path"`   // leveldb directory
}

// ChainConfig describes the EVM network that settles payouts.
type ChainConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ChainId    int64  `mapstructure:"chain_id"`
	RpcUrl     string `mapstructure:"rpc_url"`
	PrivateKey string `mapstructure:"private_key"`
	GasLimit   uint64 `mapstructure:"gas_limit"`
	Workers    int    `mapstructure:"workers"`

	// NativeSymbol is the only native symbol paid out on this chain.
	NativeSymbol string `mapstructure:"native_symbol"`
}

type TaskConfig struct {
	Interval  int `mapstructure:"interval"` // seconds
	BatchSize int `mapstructure:"batch_size"`

	// Delay before retrying a payout that failed transiently, doubled on
	// every further attempt up to RetryMax. Seconds.
	RetryBase int `mapstructure:"retry_base"`
	RetryMax  int `mapstructure:"retry_max"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// GetLevel returns the configured log level.
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput returns the configured log output.
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile returns the log file path.
func (l LogConfig) GetFile() string {
	return l.File
}

// AuthConfig holds the HS256 secret that signs caller tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// Load reads configuration from path, or from config.yaml in the usual
// locations when path is empty. A .env file in the working directory is
// loaded into the environment first. Environment variables use the CFS_
// prefix, e.g. CFS_DATABASE_HOST.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cfs")
	}

	setDefaults(v)

	v.SetEnvPrefix("cfs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "crowdfunding")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.path", "data/state")
	v.SetDefault("chain.enabled", false)
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.gas_limit", 100000)
	v.SetDefault("chain.workers", 4)
	v.SetDefault("chain.native_symbol", "wei")
	v.SetDefault("task.interval", 60)
	v.SetDefault("task.batch_size", 50)
	v.SetDefault("task.retry_base", 30)
	v.SetDefault("task.retry_max", 3600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "cfs")
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "leveldb", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Chain.Enabled && (c.Chain.RpcUrl == "" || c.Chain.PrivateKey == "") {
		return errors.New("chain.rpc_url and chain.private_key are required when chain is enabled")
	}
	if c.Task.Interval <= 0 {
		return fmt.Errorf("task.interval must be positive, got %d", c.Task.Interval)
	}
	if c.Task.RetryBase <= 0 || c.Task.RetryMax < c.Task.RetryBase {
		return fmt.Errorf("task.retry_base must be positive and not above task.retry_max, got %d and %d",
			c.Task.RetryBase, c.Task.RetryMax)
	}
	return nil
}
