package config

import "time"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
	LogFormatZap  = "zap"
)

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "test_db",
}

var defaultNotify = Notify{
	Timeout:     2 * time.Second,
	MaxAttempts: 4,
	BaseDelay:   150 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

var defaultTracking = Tracking{
	Interval: 2 * time.Second,
	SpeedKmh: 30,
}

var defaultRateLimit = RateLimit{
	Rate:       10,
	Burst:      20,
	TTL:        5 * time.Minute,
	MaxBuckets: 10000,
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Port:             defaultPort,
		Storage:          StoragePostgres,
		OperationTimeout: 3 * time.Second,
		DB:               defaultDB,
		Log:              Log{Level: "info", Format: LogFormatJSON},
		Mongo:            Mongo{Database: "dispatch", Collection: "locations"},
		Kafka:            Kafka{GroupID: "service-dispatch"},
		MQTT:             MQTT{ClientID: "service-dispatch", TopicPrefix: "drivers"},
		Notify:           defaultNotify,
		Tracking:         defaultTracking,
		WS:               WS{WriteTimeout: 5 * time.Second},
		Pprof:            Pprof{Addr: "127.0.0.1:6060"},
		RateLimit:        defaultRateLimit,
	}
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}

// DefaultNotify returns the default notification retry settings.
func DefaultNotify() Notify {
	return defaultNotify
}

// DefaultTracking returns the default simulator settings.
func DefaultTracking() Tracking {
	return defaultTracking
}
