package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"hsoj/internal/common/cache"
	"hsoj/internal/common/db"
	"hsoj/internal/common/mq"
	"hsoj/internal/common/storage"
	"hsoj/internal/judge/compiler"
	"hsoj/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMetaTTL         = 30 * time.Second
	defaultWorkspace       = "/tmp/hsoj"
	defaultProblemDir      = "problems"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string          `yaml:"addr"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	IdleTimeout  time.Duration   `yaml:"idleTimeout"`
	SubmitLimit  RateLimitConfig `yaml:"submitLimit"`
}

// RateLimitConfig limits submissions per client IP. Max <= 0 disables it.
type RateLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// KafkaConfig holds Kafka settings. An empty broker list judges in process.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	RetryTopic    string        `yaml:"retryTopic"`
	PoolRetryMax  int           `yaml:"poolRetryMax"`
	PoolRetryBase time.Duration `yaml:"poolRetryBaseDelay"`
	PoolRetryMaxD time.Duration `yaml:"poolRetryMaxDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize int           `yaml:"poolSize"`
	SlotWait time.Duration `yaml:"slotWait"`
}

// StatusConfig holds status persistence settings.
type StatusConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	Timeout    time.Duration `yaml:"timeout"`
	FinalTopic string        `yaml:"finalTopic"`
}

// ProblemConfig holds problem catalog settings.
type ProblemConfig struct {
	Dir      string        `yaml:"dir"`
	MetaTTL  time.Duration `yaml:"metaTTL"`
	Bucket   string        `yaml:"bucket"`
	LockWait time.Duration `yaml:"lockWait"`
}

// JudgeConfig holds judger settings.
type JudgeConfig struct {
	Workspace    string                           `yaml:"workspace"`
	RunCmd       string                           `yaml:"runCmd"`
	Cleanup      bool                             `yaml:"cleanup"`
	TestWorkers  int                              `yaml:"testWorkers"`
	MaxCodeBytes int                              `yaml:"maxCodeBytes"`
	Languages    map[string]compiler.LanguageSpec `yaml:"languages"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Worker   WorkerConfig        `yaml:"worker"`
	Status   StatusConfig        `yaml:"status"`
	Problem  ProblemConfig       `yaml:"problem"`
	Judge    JudgeConfig         `yaml:"judge"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if cfg.Judge.RunCmd == "" {
		return fmt.Errorf("judge runCmd is required")
	}
	if len(cfg.Judge.Languages) == 0 {
		return fmt.Errorf("judge languages are required")
	}
	if cfg.Kafka.Enabled() && cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	cfg.Redis.ApplyDefaults()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Problem.Dir == "" {
		cfg.Problem.Dir = defaultProblemDir
	}
	if cfg.Problem.MetaTTL == 0 {
		cfg.Problem.MetaTTL = defaultMetaTTL
	}
	if cfg.Problem.Bucket == "" {
		cfg.Problem.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Judge.Workspace == "" {
		cfg.Judge.Workspace = defaultWorkspace
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 1
	}
	if cfg.Status.FinalTopic == "" {
		cfg.Status.FinalTopic = "judge.status.final"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "judge-service"
	}
	if cfg.Kafka.RetryTopic == "" {
		cfg.Kafka.RetryTopic = cfg.Kafka.Topic
	}
	if cfg.Kafka.PoolRetryMax <= 0 {
		cfg.Kafka.PoolRetryMax = 5
	}
	if cfg.Kafka.PoolRetryBase == 0 {
		cfg.Kafka.PoolRetryBase = time.Second
	}
	if cfg.Kafka.PoolRetryMaxD == 0 {
		cfg.Kafka.PoolRetryMaxD = 30 * time.Second
	}
	return nil
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetter,
		MessageTTL:      k.MessageTTL,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
