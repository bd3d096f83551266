package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Push      PushConfig      `mapstructure:"push"`
	SNS       SNSConfig       `mapstructure:"sns"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Recurring RecurringConfig `mapstructure:"recurring"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type PushConfig struct {
	Subscriber      string        `mapstructure:"subscriber"`
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	TTL             int           `mapstructure:"ttl"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type SNSConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Region             string        `mapstructure:"region"`
	AndroidPlatformARN string        `mapstructure:"android_platform_arn"`
	IOSPlatformARN     string        `mapstructure:"ios_platform_arn"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RecurringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"`
	Timezone    string `mapstructure:"timezone"`
	Concurrency int    `mapstructure:"concurrency"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type WorkerConfig struct {
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// Secrets are never read from the config file. They come from CARRIAGE_* variables.
type Secrets struct {
	DatabasePassword   string `envconfig:"DB_PASSWORD"`
	JWTSecret          string `envconfig:"JWT_SECRET"`
	VAPIDPublicKey     string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey    string `envconfig:"VAPID_PRIVATE_KEY"`
	SMTPPassword       string `envconfig:"SMTP_PASSWORD"`
	AndroidPlatformARN string `envconfig:"SNS_ANDROID_ARN"`
	IOSPlatformARN     string `envconfig:"SNS_IOS_ARN"`
}

const envPrefix = "CARRIAGE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "carriage")
	v.SetDefault("push.ttl", 3600)
	v.SetDefault("push.timeout", 10*time.Second)
	v.SetDefault("sns.breaker_max_failures", 5)
	v.SetDefault("sns.breaker_timeout", 30*time.Second)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("recurring.enabled", true)
	v.SetDefault("recurring.schedule", "0 10 * * *")
	v.SetDefault("recurring.timezone", "America/New_York")
	v.SetDefault("recurring.concurrency", 8)
	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("worker.task_timeout", 2*time.Minute)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml from the usual locations, then overlays secrets from the
// environment.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Database.Password, s.DatabasePassword)
	override(&c.JWT.Secret, s.JWTSecret)
	override(&c.Push.VAPIDPublicKey, s.VAPIDPublicKey)
	override(&c.Push.VAPIDPrivateKey, s.VAPIDPrivateKey)
	override(&c.SMTP.Password, s.SMTPPassword)
	override(&c.SNS.AndroidPlatformARN, s.AndroidPlatformARN)
	override(&c.SNS.IOSPlatformARN, s.IOSPlatformARN)
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Recurring.Enabled {
		if _, err := time.LoadLocation(c.Recurring.Timezone); err != nil {
			return fmt.Errorf("invalid recurring timezone %q: %w", c.Recurring.Timezone, err)
		}
	}
	if c.SNS.Enabled && c.SNS.Region == "" {
		return fmt.Errorf("sns region is required when sns is enabled")
	}
	return nil
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}
