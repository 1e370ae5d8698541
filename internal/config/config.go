package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	InstanceID      string `mapstructure:"instance_id"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	ChatRoute       string `mapstructure:"chat_route"`
}

type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	MessageTTLDays int    `mapstructure:"message_ttl_days"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type RedisConfig struct {
	Addr               string `mapstructure:"addr"`
	Pass               string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	Prefix             string `mapstructure:"prefix"`
	PresenceTTLSeconds int    `mapstructure:"presence_ttl_seconds"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	Secret        string `mapstructure:"secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type CryptoConfig struct {
	MessageKey string `mapstructure:"message_key"`
}

type WSConfig struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	SendBuffer           int     `mapstructure:"send_buffer"`
	RatePerSecond        float64 `mapstructure:"rate_per_second"`
	Burst                int     `mapstructure:"burst"`
}

type S3Config struct {
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
}

type ConsulConfig struct {
	Addr        string `mapstructure:"addr"`
	ServiceName string `mapstructure:"service_name"`
	ServiceHost string `mapstructure:"service_host"`
}

type RateLimitConfig struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	WS        WSConfig        `mapstructure:"ws"`
	S3        S3Config        `mapstructure:"s3"`
	Consul    ConsulConfig    `mapstructure:"consul"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// derived
	PingInterval    time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	PresenceTTL     time.Duration `mapstructure:"-"`
	MessageTTL      time.Duration `mapstructure:"-"`
	MongoTimeout    time.Duration `mapstructure:"-"`
	RateWindow      time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
}

// Load reads .env (if any), then the YAML file at path, then environment
// overrides such as MONGO_URI or JWT_SECRET. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// bindEnv registers keys so AutomaticEnv can fill them without a YAML entry.
func bindEnv(v *viper.Viper) {
	for _, k := range []string{
		"app.env", "app.port", "app.instance_id", "app.chat_route",
		"mongo.uri", "mongo.database",
		"redis.addr", "redis.password", "redis.prefix",
		"kafka.brokers", "kafka.topic",
		"jwt.alg", "jwt.secret", "jwt.public_key_path",
		"crypto.message_key",
		"s3.region", "s3.bucket", "s3.endpoint",
		"consul.addr", "consul.service_name", "consul.service_host",
	} {
		_ = v.BindEnv(k)
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.App.Port == 0 {
		c.App.Port = 8085
	}
	if c.App.ShutdownSeconds == 0 {
		c.App.ShutdownSeconds = 10
	}
	if c.App.ChatRoute == "" {
		c.App.ChatRoute = "/messages"
	}
	if c.App.InstanceID == "" {
		host, _ := os.Hostname()
		c.App.InstanceID = host
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "chat"
	}
	if c.Mongo.MessageTTLDays == 0 {
		c.Mongo.MessageTTLDays = 30
	}
	if c.Mongo.TimeoutSeconds == 0 {
		c.Mongo.TimeoutSeconds = 10
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "rt"
	}
	if c.Redis.PresenceTTLSeconds == 0 {
		c.Redis.PresenceTTLSeconds = 120
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat.events"
	}
	if c.JWT.Alg == "" {
		c.JWT.Alg = "HS256"
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds == 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes == 0 {
		c.WS.MaxMessageSizeBytes = 65536
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 256
	}
	if c.WS.RatePerSecond == 0 {
		c.WS.RatePerSecond = 20
	}
	if c.WS.Burst == 0 {
		c.WS.Burst = 40
	}
	if c.Consul.ServiceName == "" {
		c.Consul.ServiceName = "realtime-service"
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 120
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}

	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.PresenceTTL = time.Duration(c.Redis.PresenceTTLSeconds) * time.Second
	c.MessageTTL = time.Duration(c.Mongo.MessageTTLDays) * 24 * time.Hour
	c.MongoTimeout = time.Duration(c.Mongo.TimeoutSeconds) * time.Second
	c.RateWindow = time.Duration(c.RateLimit.WindowSeconds) * time.Second
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
}

func (c *Config) IsDevelopment() bool { return c.App.Env == "development" || c.App.Env == "dev" }

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if c.Crypto.MessageKey == "" {
		return errors.New("crypto.message_key is required")
	}
	switch strings.ToUpper(c.JWT.Alg) {
	case "HS256":
		if c.JWT.Secret == "" {
			return errors.New("jwt.secret is required for HS256")
		}
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path is required for RS256")
		}
	default:
		return fmt.Errorf("unsupported jwt.alg %q", c.JWT.Alg)
	}
	if c.Mongo.URI == "" && !c.IsDevelopment() {
		return errors.New("mongo.uri is required outside development")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		return errors.New("s3.region is required when s3.bucket is set")
	}
	return nil
}
