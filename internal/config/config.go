package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	DSN             string        `mapstructure:"dsn"`    // postgres DSN
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ProviderConfig configures the OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	SiteURL  string        `mapstructure:"site_url"`  // HTTP-Referer attribution
	SiteName string        `mapstructure:"site_name"` // X-Title attribution
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds default models, validation bounds, and the retry
// budget for stage execution.
type PipelineConfig struct {
	PromptMaxChars  int           `mapstructure:"prompt_max_chars"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	SyncTimeout     time.Duration `mapstructure:"sync_timeout"`
	CoderModel      string        `mapstructure:"coder_model"`
	DebuggerModel   string        `mapstructure:"debugger_model"`
	FixerModel      string        `mapstructure:"fixer_model"`
	ChatbotModel    string        `mapstructure:"chatbot_model"`
	AllowedModels   []string      `mapstructure:"allowed_models"`
	DefaultPipeline string        `mapstructure:"default_pipeline"`
}

type QueueConfig struct {
	Backend string       `mapstructure:"backend"` // none, redis, qstash
	Redis   RedisConfig  `mapstructure:"redis"`
	QStash  QStashConfig `mapstructure:"qstash"`
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type QStashConfig struct {
	URL               string `mapstructure:"url"`
	Token             string `mapstructure:"token"`
	CurrentSigningKey string `mapstructure:"current_signing_key"`
	NextSigningKey    string `mapstructure:"next_signing_key"`
	DestinationURL    string `mapstructure:"destination_url"`
}

type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	PopTimeout  time.Duration `mapstructure:"pop_timeout"`
}

type RateLimitConfig struct {
	Create BucketConfig `mapstructure:"create"`
	Read   BucketConfig `mapstructure:"read"`
}

type BucketConfig struct {
	Capacity   int     `mapstructure:"capacity"`
	RefillRate float64 `mapstructure:"refill_rate"` // tokens per second
}

type ArtifactsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	File   string `mapstructure:"file"`   // empty disables file output
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("provider.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("pipeline.prompt_max_chars", 2000)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.sync_timeout", 5*time.Minute)
	v.SetDefault("pipeline.coder_model", "qwen/qwen3-coder:free")
	v.SetDefault("pipeline.debugger_model", "deepseek/deepseek-chat-v3.1:free")
	v.SetDefault("pipeline.fixer_model", "nvidia/nemotron-nano-9b-v2:free")
	v.SetDefault("pipeline.chatbot_model", "qwen/qwen3-30b-a3b:free")
	v.SetDefault("pipeline.default_pipeline", "ureshii-p1")
	v.SetDefault("pipeline.allowed_models", []string{
		"openai/gpt-4",
		"anthropic/claude-2",
		"google/gemini-pro",
		"qwen/qwen3-30b-a3b:free",
		"qwen/qwen3-coder:free",
		"deepseek/deepseek-chat-v3.1:free",
		"nvidia/nemotron-nano-9b-v2:free",
	})
	v.SetDefault("queue.backend", "none")
	v.SetDefault("queue.redis.url", "redis://localhost:6379")
	v.SetDefault("queue.redis.key_prefix", "ureshii")
	v.SetDefault("queue.redis.lock_ttl", 5*time.Minute)
	v.SetDefault("queue.qstash.url", "https://qstash.upstash.io")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.pop_timeout", 15*time.Second)
	v.SetDefault("ratelimit.create.capacity", 5)
	v.SetDefault("ratelimit.create.refill_rate", 1.0)
	v.SetDefault("ratelimit.read.capacity", 30)
	v.SetDefault("ratelimit.read.refill_rate", 10.0)
	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("artifacts.use_ssl", true)
	v.SetDefault("artifacts.bucket", "ureshii-artifacts")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("provider.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("provider.base_url", "OPENROUTER_BASE_URL")
	v.BindEnv("queue.backend", "QUEUE_BACKEND")
	v.BindEnv("queue.redis.url", "REDIS_URL")
	v.BindEnv("queue.qstash.token", "QSTASH_TOKEN")
	v.BindEnv("queue.qstash.current_signing_key", "QSTASH_CURRENT_SIGNING_KEY")
	v.BindEnv("queue.qstash.next_signing_key", "QSTASH_NEXT_SIGNING_KEY")
	v.BindEnv("queue.qstash.destination_url", "QSTASH_DESTINATION_URL")
	v.BindEnv("artifacts.access_key", "ARTIFACTS_ACCESS_KEY")
	v.BindEnv("artifacts.secret_key", "ARTIFACTS_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
