package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportFile = "file"
	TransportMQTT = "mqtt"
	TransportHTTP = "http"
)

// Sink kinds.
const (
	SinkPostgres = "postgres"
	SinkDynamoDB = "dynamodb"
	SinkMemory   = "memory"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("config: invalid")
)

// Config is the process configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Window    WindowConfig    `yaml:"window"`
	Sink      SinkConfig      `yaml:"sink"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig selects where raw messages come from.
type TransportConfig struct {
	Kind string     `yaml:"kind"`
	File FileConfig `yaml:"file"`
	MQTT MQTTConfig `yaml:"mqtt"`
	HTTP HTTPConfig `yaml:"http"`
}

// FileConfig points at the producer's live JSON-lines file.
type FileConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig describes the broker subscription.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// HTTPConfig sizes the buffer behind the push ingest endpoint.
type HTTPConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// IngestConfig tunes the ingestion loop.
type IngestConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	Workers       int           `yaml:"workers"`
	DedupCapacity int           `yaml:"dedup_capacity"`
}

// WindowConfig sizes the per-machine history.
type WindowConfig struct {
	Capacity int `yaml:"capacity"`
}

// SinkConfig selects and tunes durable storage.
type SinkConfig struct {
	Kind          string         `yaml:"kind"`
	Postgres      PostgresConfig `yaml:"postgres"`
	DynamoDB      DynamoDBConfig `yaml:"dynamodb"`
	RetryAttempts int            `yaml:"retry_attempts"`
	RetryBackoff  time.Duration  `yaml:"retry_backoff"`
	Timeout       time.Duration  `yaml:"timeout"`
}

// PostgresConfig holds the Postgres connection settings.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// DynamoDBConfig holds the DynamoDB table settings.
type DynamoDBConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// DashboardConfig configures the read API and push refresher.
type DashboardConfig struct {
	Addr            string        `yaml:"addr"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	HistoryLimit    int           `yaml:"history_limit"`
}

// AlertsConfig configures anomaly notifications.
type AlertsConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Template   string        `yaml:"template"`
	Cooldown   time.Duration `yaml:"cooldown"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Development bool `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Kind: TransportFile,
			File: FileConfig{Path: "data/project_live.json"},
			MQTT: MQTTConfig{
				Broker:   "tcp://localhost:1883",
				Topic:    "buzzline/manufacturing",
				ClientID: "manufacturing-analytics",
				QoS:      1,
			},
			HTTP: HTTPConfig{BufferSize: 1024},
		},
		Ingest: IngestConfig{
			PollInterval: 2 * time.Second,
			Workers:      1,
		},
		Window: WindowConfig{Capacity: 20},
		Sink: SinkConfig{
			Kind:          SinkMemory,
			Postgres:      PostgresConfig{Table: "manufacturing_analytics"},
			DynamoDB:      DynamoDBConfig{Table: "ManufacturingAnalytics"},
			RetryAttempts: 1,
			RetryBackoff:  200 * time.Millisecond,
			Timeout:       5 * time.Second,
		},
		Dashboard: DashboardConfig{
			Addr:            ":8080",
			RefreshInterval: 2 * time.Second,
			HistoryLimit:    50,
		},
		Alerts: AlertsConfig{
			Cooldown: time.Minute,
			Timeout:  5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence from lowest to highest. An empty
// path falls back to ANALYTICS_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ANALYTICS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Transport.Kind = getenvDefault("TRANSPORT_KIND", cfg.Transport.Kind)
	cfg.Transport.File.Path = getenvDefault("LIVE_DATA_PATH", cfg.Transport.File.Path)
	cfg.Transport.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.Transport.MQTT.Broker)
	cfg.Transport.MQTT.Topic = getenvDefault("MQTT_TOPIC", cfg.Transport.MQTT.Topic)
	cfg.Transport.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.Transport.MQTT.ClientID)
	cfg.Transport.MQTT.QoS = getenvIntDefault("MQTT_QOS", cfg.Transport.MQTT.QoS)
	cfg.Transport.HTTP.BufferSize = getenvIntDefault("INGEST_BUFFER_SIZE", cfg.Transport.HTTP.BufferSize)

	cfg.Ingest.PollInterval = getenvDuration("POLL_INTERVAL", cfg.Ingest.PollInterval)
	cfg.Ingest.Workers = getenvIntDefault("INGEST_WORKERS", cfg.Ingest.Workers)
	cfg.Ingest.DedupCapacity = getenvIntDefault("DEDUP_CAPACITY", cfg.Ingest.DedupCapacity)
	cfg.Window.Capacity = getenvIntDefault("WINDOW_CAPACITY", cfg.Window.Capacity)

	cfg.Sink.Kind = getenvDefault("SINK_KIND", cfg.Sink.Kind)
	cfg.Sink.Postgres.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Sink.Postgres.DSN))
	cfg.Sink.Postgres.Table = getenvDefault("PG_TABLE", cfg.Sink.Postgres.Table)
	cfg.Sink.DynamoDB.Table = getenvDefault("DYNAMODB_TABLE", cfg.Sink.DynamoDB.Table)
	cfg.Sink.DynamoDB.Region = getenvDefault("AWS_REGION", cfg.Sink.DynamoDB.Region)
	cfg.Sink.RetryAttempts = getenvIntDefault("SINK_RETRY_ATTEMPTS", cfg.Sink.RetryAttempts)
	cfg.Sink.RetryBackoff = getenvDuration("SINK_RETRY_BACKOFF", cfg.Sink.RetryBackoff)
	cfg.Sink.Timeout = getenvDuration("SINK_TIMEOUT", cfg.Sink.Timeout)

	cfg.Dashboard.Addr = getenvDefault("HTTP_ADDR", cfg.Dashboard.Addr)
	cfg.Dashboard.RefreshInterval = getenvDuration("DASHBOARD_REFRESH_INTERVAL", cfg.Dashboard.RefreshInterval)
	cfg.Dashboard.HistoryLimit = getenvIntDefault("DASHBOARD_HISTORY_LIMIT", cfg.Dashboard.HistoryLimit)

	cfg.Alerts.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Alerts.WebhookURL)
	cfg.Alerts.Template = getenvDefault("ALERT_TEMPLATE", cfg.Alerts.Template)
	cfg.Alerts.Cooldown = getenvDuration("ALERT_COOLDOWN", cfg.Alerts.Cooldown)
	cfg.Alerts.Timeout = getenvDuration("ALERT_TIMEOUT", cfg.Alerts.Timeout)

	cfg.Log.Development = getenvBool("LOG_DEVELOPMENT", cfg.Log.Development)
}

// Validate rejects configurations the process cannot run with.
func (c Config) Validate() error {
	var problems []string
	switch c.Transport.Kind {
	case TransportFile:
		if c.Transport.File.Path == "" {
			problems = append(problems, "transport.file.path required")
		}
	case TransportMQTT:
		if c.Transport.MQTT.Broker == "" || c.Transport.MQTT.Topic == "" {
			problems = append(problems, "transport.mqtt.broker and topic required")
		}
		if c.Transport.MQTT.QoS < 0 || c.Transport.MQTT.QoS > 2 {
			problems = append(problems, "transport.mqtt.qos must be 0, 1 or 2")
		}
	case TransportHTTP:
		if c.Transport.HTTP.BufferSize <= 0 {
			problems = append(problems, "transport.http.buffer_size must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown transport.kind %q", c.Transport.Kind))
	}

	switch c.Sink.Kind {
	case SinkPostgres:
		if c.Sink.Postgres.DSN == "" {
			problems = append(problems, "sink.postgres.dsn required")
		}
	case SinkDynamoDB:
		if c.Sink.DynamoDB.Table == "" {
			problems = append(problems, "sink.dynamodb.table required")
		}
	case SinkMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown sink.kind %q", c.Sink.Kind))
	}

	if c.Ingest.PollInterval <= 0 {
		problems = append(problems, "ingest.poll_interval must be positive")
	}
	if c.Ingest.Workers <= 0 {
		problems = append(problems, "ingest.workers must be positive")
	}
	if c.Ingest.DedupCapacity < 0 {
		problems = append(problems, "ingest.dedup_capacity must not be negative")
	}
	if c.Window.Capacity <= 0 {
		problems = append(problems, "window.capacity must be positive")
	}
	if c.Sink.RetryAttempts <= 0 {
		problems = append(problems, "sink.retry_attempts must be positive")
	}
	if c.Sink.Timeout <= 0 {
		problems = append(problems, "sink.timeout must be positive")
	}
	if c.Dashboard.RefreshInterval <= 0 {
		problems = append(problems, "dashboard.refresh_interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
