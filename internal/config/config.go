package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	RabbitMQ   RabbitMQConfig
	Inbound    InboundConfig
	Dispatcher DispatcherConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host     string
	Port     string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitMQConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// InboundConfig holds the per-platform secrets for the inbound gateway.
type InboundConfig struct {
	MetaAppSecret         string
	MetaVerifyToken       string
	TwitterConsumerSecret string
	IngestBuffer          int
	IngestRoutingKey      string
}

type DispatcherConfig struct {
	SourceQueue        string
	DeliveryExchange   string
	DeliveryRoutingKey string
	PrefetchCount      int
}

type WorkerConfig struct {
	DeliveryQueue        string
	PrefetchCount        int
	MaxAttempts          int
	HTTPTimeoutSeconds   int
	TestTimeoutSeconds   int
	TaskTimeoutSeconds   int
	MaxResponseBodySize  int
	DisableAfterFailures int
}

func Load() (*Config, error) {
	// Best-effort .env for local development; deployments set real env vars.
	_ = godotenv.Load()

	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	getInt := func(key string, def int) int {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			missing = append(missing, key+" (must be a non-negative integer)")
			return def
		}
		return n
	}

	getDefault := func(key, def string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return def
	}

	config := &Config{
		Server: ServerConfig{
			Host:     get("SERVER_HOST"),
			Port:     get("SERVER_PORT"),
			LogLevel: getDefault("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Host:     get("RABBITMQ_HOST"),
			Port:     get("RABBITMQ_PORT"),
			User:     get("RABBITMQ_USER"),
			Password: get("RABBITMQ_PASSWORD"),
			VHost:    get("RABBITMQ_VHOST"),
		},
		Inbound: InboundConfig{
			MetaAppSecret:         get("META_APP_SECRET"),
			MetaVerifyToken:       get("META_VERIFY_TOKEN"),
			TwitterConsumerSecret: get("TWITTER_CONSUMER_SECRET"),
			IngestBuffer:          getInt("INGEST_BUFFER", 256),
			IngestRoutingKey:      os.Getenv("INGEST_ROUTING_KEY"),
		},
		Dispatcher: DispatcherConfig{
			SourceQueue:        get("DISPATCHER_SOURCE_QUEUE"),
			DeliveryExchange:   os.Getenv("DELIVERY_EXCHANGE"),
			DeliveryRoutingKey: get("DELIVERY_ROUTING_KEY"),
			PrefetchCount:      getInt("DISPATCHER_PREFETCH_COUNT", 10),
		},
		Worker: WorkerConfig{
			DeliveryQueue:        get("WORKER_DELIVERY_QUEUE"),
			PrefetchCount:        getInt("WORKER_PREFETCH_COUNT", 8),
			MaxAttempts:          getInt("WORKER_MAX_ATTEMPTS", 3),
			HTTPTimeoutSeconds:   getInt("WORKER_HTTP_TIMEOUT_SECONDS", 10),
			TestTimeoutSeconds:   getInt("WORKER_TEST_TIMEOUT_SECONDS", 30),
			TaskTimeoutSeconds:   getInt("WORKER_TASK_TIMEOUT_SECONDS", 30),
			MaxResponseBodySize:  getInt("WORKER_MAX_RESPONSE_BODY", 5000),
			DisableAfterFailures: getInt("WORKER_DISABLE_AFTER_FAILURES", 0),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}
