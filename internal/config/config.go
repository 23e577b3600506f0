package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores service settings.
type Config struct {
	Port             int
	Storage          string
	OperationTimeout time.Duration

	DB        DB
	Log       Log
	Redis     Redis
	Mongo     Mongo
	Kafka     Kafka
	MQTT      MQTT
	Notify    Notify
	Tracking  Tracking
	WS        WS
	Pprof     Pprof
	RateLimit RateLimit
}

// DB stores Postgres connection settings.
type DB struct {
	Host        string
	Port        string
	User        string
	Pass        string
	Name        string
	AutoMigrate bool
}

// DSN builds a pgx connection string.
func (d DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Pass),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Log stores logger settings.
type Log struct {
	Level  string
	Format string
}

// Redis stores latest-location cache settings. Empty Addr disables it.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Mongo stores location history settings. Empty URI disables it.
type Mongo struct {
	URI        string
	Database   string
	Collection string
}

// Kafka stores order intake consumer settings.
type Kafka struct {
	Brokers     []string
	GroupID     string
	OrdersTopic string
}

// Enabled reports whether the consumer has enough to start.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0 && k.OrdersTopic != ""
}

// MQTT stores device feed settings. Empty Broker disables it.
type MQTT struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Notify stores outbound driver notification settings. Empty URL disables it.
type Notify struct {
	WebhookURL  string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Tracking stores simulator settings.
type Tracking struct {
	Interval time.Duration
	SpeedKmh float64
}

// WS stores websocket transport settings.
type WS struct {
	WriteTimeout time.Duration
}

// Pprof stores debug server settings.
type Pprof struct {
	Enabled bool
	Addr    string
	User    string
	Pass    string
}

// RateLimit stores token bucket settings.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := Default()
	r := &envReader{}

	cfg.Port = r.int("PORT", cfg.Port)
	cfg.Storage = r.str("STORAGE_BACKEND", cfg.Storage)
	cfg.OperationTimeout = r.duration("OPERATION_TIMEOUT", cfg.OperationTimeout)

	cfg.DB.Host = r.str("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = r.str("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = r.str("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Pass = r.str("POSTGRES_PASSWORD", cfg.DB.Pass)
	cfg.DB.Name = r.str("POSTGRES_DB", cfg.DB.Name)
	cfg.DB.AutoMigrate = r.bool("DB_AUTO_MIGRATE", cfg.DB.AutoMigrate)

	cfg.Log.Level = strings.ToLower(r.str("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(r.str("LOG_FORMAT", cfg.Log.Format))

	cfg.Redis.Addr = r.str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = r.str("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = r.int("REDIS_DB", cfg.Redis.DB)

	cfg.Mongo.URI = r.str("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = r.str("MONGO_DATABASE", cfg.Mongo.Database)
	cfg.Mongo.Collection = r.str("MONGO_COLLECTION", cfg.Mongo.Collection)

	cfg.Kafka.Brokers = r.list("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.GroupID = r.str("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.OrdersTopic = r.str("KAFKA_ORDERS_TOPIC", cfg.Kafka.OrdersTopic)

	cfg.MQTT.Broker = r.str("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = r.str("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = r.str("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = r.str("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = r.str("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)

	cfg.Notify.WebhookURL = r.str("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Timeout = r.duration("NOTIFY_TIMEOUT", cfg.Notify.Timeout)
	cfg.Notify.MaxAttempts = r.int("NOTIFY_MAX_ATTEMPTS", cfg.Notify.MaxAttempts)
	cfg.Notify.BaseDelay = r.duration("NOTIFY_BASE_DELAY", cfg.Notify.BaseDelay)
	cfg.Notify.MaxDelay = r.duration("NOTIFY_MAX_DELAY", cfg.Notify.MaxDelay)

	cfg.Tracking.Interval = r.duration("TRACKING_INTERVAL", cfg.Tracking.Interval)
	cfg.Tracking.SpeedKmh = r.float("TRACKING_SPEED_KMH", cfg.Tracking.SpeedKmh)

	cfg.WS.WriteTimeout = r.duration("WS_WRITE_TIMEOUT", cfg.WS.WriteTimeout)

	cfg.Pprof.Enabled = r.bool("PPROF_ENABLED", cfg.Pprof.Enabled)
	cfg.Pprof.Addr = r.str("PPROF_ADDR", cfg.Pprof.Addr)
	cfg.Pprof.User = r.str("PPROF_USER", cfg.Pprof.User)
	cfg.Pprof.Pass = r.str("PPROF_PASS", cfg.Pprof.Pass)

	cfg.RateLimit.Enabled = r.bool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Rate = r.float("RATE_LIMIT_RATE", cfg.RateLimit.Rate)
	cfg.RateLimit.Burst = r.int("RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.RateLimit.TTL = r.duration("RATE_LIMIT_TTL", cfg.RateLimit.TTL)
	cfg.RateLimit.MaxBuckets = r.int("RATE_LIMIT_MAX_BUCKETS", cfg.RateLimit.MaxBuckets)

	if r.err != nil {
		return nil, r.err
	}

	pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	pflag.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend: postgres or memory")
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid storage backend: %q", c.Storage)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case LogFormatJSON, LogFormatText, LogFormatZap:
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("invalid operation timeout: %s", c.OperationTimeout)
	}
	if c.Tracking.Interval <= 0 || c.Tracking.SpeedKmh <= 0 {
		return fmt.Errorf("invalid tracking settings: interval=%s speed=%v", c.Tracking.Interval, c.Tracking.SpeedKmh)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("invalid notify max attempts: %d", c.Notify.MaxAttempts)
	}
	return nil
}

// envReader keeps the first parse error so Load can report it once.
type envReader struct {
	err error
}

func (r *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *envReader) list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
