package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// OutputDir receives one canonical dataset per instrument stream.
	OutputDir string
	// OutputFile, when set, sends every ingested file into this single dataset.
	OutputFile  string
	LedgerPath  string
	FormatsFile string

	BeamSweeping      bool
	OrderPolicy       string
	SkipBadTimestamps bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Ingest notifications are published only when brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	beamSweeping, err := parseBool("BEAM_SWEEPING", false)
	if err != nil {
		return nil, err
	}
	skipBad, err := parseBool("SKIP_BAD_TIMESTAMPS", false)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/canonical"),
		OutputFile:        os.Getenv("OUTPUT_FILE"),
		LedgerPath:        sharedcfg.EnvOrDefault("LEDGER_PATH", "data/ingest.db"),
		FormatsFile:       os.Getenv("FORMATS_FILE"),
		BeamSweeping:      beamSweeping,
		OrderPolicy:       sharedcfg.EnvOrDefault("ORDER_POLICY", "reject"),
		SkipBadTimestamps: skipBad,
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		KafkaBrokers:      brokers,
		KafkaTopic:        sharedcfg.EnvOrDefault("KAFKA_TOPIC", "lidar-ingest-events"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that may also be changed by command-line flags after Load.
func (c *Config) Validate() error {
	if c.OutputDir == "" && c.OutputFile == "" {
		return errors.New("OUTPUT_DIR or OUTPUT_FILE is required")
	}
	if c.OrderPolicy != "reject" && c.OrderPolicy != "warn" {
		return fmt.Errorf("invalid ORDER_POLICY %q: must be reject or warn", c.OrderPolicy)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// NotificationsEnabled reports whether ingest events go to Kafka.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}
