package config

import (
	"errors"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Source drivers accepted by SOURCE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceDriver string
	SourceDSN    string

	ReferencePath  string
	ReferenceSheet string
	ReportPath     string

	EventClass         string
	MinStartYear       int
	RejectAuxiliaryGID bool
	RunOnStart         bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	minYear, err := strconv.Atoi(sharedcfg.EnvOrDefault("MIN_START_YEAR", "1900"))
	if err != nil {
		return nil, errors.New("invalid MIN_START_YEAR")
	}

	rejectAux, err := parseBool("GID_REJECT_AUX_PREFIX", "false")
	if err != nil {
		return nil, err
	}
	runOnStart, err := parseBool("RUN_ON_START", "true")
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", "false")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SourceDriver:       sharedcfg.EnvOrDefault("SOURCE_DRIVER", DriverSQLite),
		SourceDSN:          sharedcfg.EnvOrDefault("SOURCE_DSN", "impactdb.v1.0.2.dg_filled.db"),
		ReferencePath:      sharedcfg.EnvOrDefault("REFERENCE_PATH", "EMDAT.xlsx"),
		ReferenceSheet:     sharedcfg.EnvOrDefault("REFERENCE_SHEET", "EM-DAT Data"),
		ReportPath:         sharedcfg.EnvOrDefault("REPORT_PATH", ""),
		EventClass:         sharedcfg.EnvOrDefault("EVENT_CLASS", "Tropical Storm/Cyclone"),
		MinStartYear:       minYear,
		RejectAuxiliaryGID: rejectAux,
		RunOnStart:         runOnStart,
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "impact-comparisons"),
	}

	if cfg.SourceDriver != DriverSQLite && cfg.SourceDriver != DriverPostgres {
		return nil, errors.New("invalid SOURCE_DRIVER")
	}
	if cfg.SourceDSN == "" {
		return nil, errors.New("SOURCE_DSN is required")
	}
	if cfg.ReferencePath == "" {
		return nil, errors.New("REFERENCE_PATH is required")
	}
	if cfg.ReferenceSheet == "" {
		return nil, errors.New("REFERENCE_SHEET is required")
	}
	if cfg.EventClass == "" {
		return nil, errors.New("EVENT_CLASS is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseBool(key, def string) (bool, error) {
	v, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return false, errors.New("invalid " + key)
	}
	return v, nil
}
