package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Names of the event resources are fixed per deployment.
const (
	TopicName = "task-events"
	QueueName = "task-queue"
)

type Config struct {
	Port            int           `yaml:"port" validate:"gt=0,lt=65536"`
	GRPCAddr        string        `yaml:"grpc_addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	MaxBodyMb       int64         `yaml:"max_body_mb" validate:"gt=0"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`

	// ReadThrough makes task reads fall back to the durable store on a
	// cache miss.
	ReadThrough bool `yaml:"read_through"`

	AWS   AWS   `yaml:"aws"`
	Redis Redis `yaml:"redis"`
	NATS  NATS  `yaml:"nats"`
}

type AWS struct {
	AccessKeyID     string `yaml:"access_key_id" validate:"required"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required"`
	Region          string `yaml:"region" validate:"required"`
	Endpoint        string `yaml:"endpoint" validate:"required"`
	Bucket          string `yaml:"bucket" validate:"required"`
	Table           string `yaml:"table" validate:"required"`
	TopicARN        string `yaml:"topic_arn" validate:"required"`
	TopicName       string `yaml:"-"`
	QueueName       string `yaml:"-"`
}

type Redis struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type NATS struct {
	URL           string `yaml:"url" validate:"required"`
	ClientName    string `yaml:"client_name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Consumer      string `yaml:"consumer" validate:"required"`
}

func defaults() Config {
	return Config{
		Port:            3001,
		GRPCAddr:        ":50051",
		ShutdownTimeout: 10 * time.Second,
		MaxBodyMb:       10,
		LogLevel:        "info",
		AWS: AWS{
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			Region:          "us-east-1",
			Endpoint:        "http://localhost:4566",
			Bucket:          "task-images",
			Table:           "Tasks",
			TopicARN:        "arn:nats:stream:" + TopicName,
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		NATS: NATS{
			URL:           "nats://localhost:4222",
			ClientName:    "tasksync",
			MaxReconnects: 10,
			Consumer:      "task-events-logger",
		},
	}
}

// Load builds the config from defaults, an optional YAML file at path,
// an optional .env file and the process environment, in that order of
// increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: cannot read file %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: cannot unmarshal yaml: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.AWS.TopicName = TopicName
	cfg.AWS.QueueName = QueueName

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}

	return cfg
}

// Path returns the config file location from CONFIG_PATH or fallback.
func Path(fallback string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return fallback
}

func applyEnv(cfg *Config) error {
	setString(&cfg.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.Endpoint, "AWS_ENDPOINT")
	setString(&cfg.AWS.Bucket, "S3_BUCKET")
	setString(&cfg.AWS.Table, "DYNAMO_TABLE")
	setString(&cfg.AWS.TopicARN, "SNS_TOPIC_ARN")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if err := setInt(&cfg.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}

	if v := os.Getenv("READ_THROUGH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: READ_THROUGH: %w", err)
		}
		cfg.ReadThrough = b
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n

	return nil
}
