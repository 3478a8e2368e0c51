package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Import   ImportConfig   `yaml:"import"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	// Driver is "mysql" or "sqlite".
	Driver             string        `yaml:"driver"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	Path               string        `yaml:"path"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	ImportQueue string        `yaml:"import_queue"`
	DLQSuffix   string        `yaml:"dlq_suffix"`
	ReviewTTL   time.Duration `yaml:"review_ttl"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

type ImportConfig struct {
	// HistoryLimit is how many sessions the audit log keeps.
	HistoryLimit int `yaml:"history_limit"`
	// ReviewBackend is "redis" or "memory". The memory backend only works
	// when one process serves every request.
	ReviewBackend string `yaml:"review_backend"`
}

type WorkersConfig struct {
	Import ImportWorkerConfig `yaml:"import"`
}

type ImportWorkerConfig struct {
	Count       int `yaml:"count"`
	MaxAttempts int `yaml:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides for secrets
// and fills defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Storage.S3.SecretKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "driving-school-admin"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "Local"
	}
	if c.Redis.ImportQueue == "" {
		c.Redis.ImportQueue = "imports"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.ReviewTTL == 0 {
		c.Redis.ReviewTTL = 7 * 24 * time.Hour
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "import"
	}
	if c.Import.HistoryLimit <= 0 {
		c.Import.HistoryLimit = 5
	}
	if c.Import.ReviewBackend == "" {
		c.Import.ReviewBackend = "redis"
	}
	if c.Workers.Import.Count <= 0 {
		c.Workers.Import.Count = 1
	}
	if c.Workers.Import.MaxAttempts <= 0 {
		c.Workers.Import.MaxAttempts = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
