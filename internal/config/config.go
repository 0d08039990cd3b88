package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvProd  = "prod"

	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"

	BrokerNone     = "none"
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

// Config структура
type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	LogsFile   string `yaml:"logs_file" env:"LOGS_FILE"`
	HTTPServer `yaml:"http_server"`
	Storage    `yaml:"storage"`
	Events     `yaml:"events"`
	Auth       `yaml:"auth"`
	Gateway    `yaml:"gateway"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// AllowedOrigins may open the live stream besides same-origin pages.
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

type Storage struct {
	Driver   string   `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
}

type Redis struct {
	Address  string `yaml:"address" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Postgres struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

type Events struct {
	Broker   string   `yaml:"broker" env:"EVENTS_BROKER" env-default:"none"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Kafka    Kafka    `yaml:"kafka"`
}

type RabbitMQ struct {
	URL        string `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string `yaml:"exchange" env-default:"comments"`
	RoutingKey string `yaml:"routing_key" env-default:"comments"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env-default:"comment-events"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type Gateway struct {
	WriteTimeout  time.Duration `yaml:"write_timeout" env-default:"10s"`
	DefaultAuthor string        `yaml:"default_author" env-default:"Admin"`
}

// Load reads the YAML file at path; environment variables override it.
func Load(path string) (*Config, error) {
	const op = "config.config.Load"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: config file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	// Load .env file if it exists (optional for Docker environments)
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatalf("CONFIG_PATH is not set")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%s", err)
	}

	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Events.Broker {
	case BrokerNone:
	case BrokerRabbitMQ:
		if c.Events.RabbitMQ.URL == "" {
			return fmt.Errorf("events.rabbitmq.url is required for broker %q", c.Events.Broker)
		}
	case BrokerKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers is required for broker %q", c.Events.Broker)
		}
	default:
		return fmt.Errorf("unknown events broker %q", c.Events.Broker)
	}

	return nil
}
