package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Collector types.
const (
	CollectorGraphite = "graphite"
	CollectorInfluxDB = "influxdb"
	CollectorMQTT     = "mqtt"
)

// Link types.
const (
	LinkNone    = "none"
	LinkCommand = "command"
)

// Config is the root configuration structure for sensorlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Bus       BusConfig       `yaml:"bus"`
	Sensors   []SensorConfig  `yaml:"sensors"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Link      LinkConfig      `yaml:"link"`
	Collector CollectorConfig `yaml:"collector"`
	Graphite  GraphiteConfig  `yaml:"graphite"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies this node.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BusConfig selects the I2C bus shared by all sensors.
type BusConfig struct {
	// Device is the bus name or number ("" or "1" or "/dev/i2c-1").
	// Empty selects the first bus found.
	Device string `yaml:"device"`

	// SpeedKHz sets the bus clock. 0 leaves the platform default.
	SpeedKHz int `yaml:"speed_khz"`
}

// SensorConfig is one sensor on the bus, polled in list order.
type SensorConfig struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Address int    `yaml:"address"` // 0 selects the driver default
}

// ScheduleConfig sets the cycle cadence.
type ScheduleConfig struct {
	Period time.Duration `yaml:"period"`
	Jitter float64       `yaml:"jitter"`
}

// BufferConfig sizes the retry buffer.
type BufferConfig struct {
	// Capacity is the number of batches kept while the collector is
	// unreachable. 0 derives one day's worth from the schedule period.
	Capacity int `yaml:"capacity"`
}

// LinkConfig controls the network link toggled around delivery.
type LinkConfig struct {
	// Type is "none" (always up) or "command".
	Type string `yaml:"type"`

	Up    []string `yaml:"up"`
	Down  []string `yaml:"down"`
	Check []string `yaml:"check"`

	// Timeout bounds each link command.
	Timeout time.Duration `yaml:"timeout"`

	// Linger keeps the link up after draining so the last packets leave.
	Linger time.Duration `yaml:"linger"`

	// ResetBeforeUp runs the down command before every up.
	ResetBeforeUp bool `yaml:"reset_before_up"`
}

// CollectorConfig selects the single delivery target.
type CollectorConfig struct {
	Type string `yaml:"type"`
}

// GraphiteConfig contains Graphite plaintext protocol settings.
type GraphiteConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig `yaml:"broker"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`

	// Status publishes a retained status message after every cycle, whatever
	// the collector type.
	Status bool `yaml:"status"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// JournalConfig contains the SQLite cycle journal settings.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSORLINK_SECTION_KEY
// For example: SENSORLINK_GRAPHITE_HOST, SENSORLINK_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "node-001",
			Name: "sensorlink",
		},
		Bus: BusConfig{
			SpeedKHz: 100,
		},
		Schedule: ScheduleConfig{
			Period: 300 * time.Second,
			Jitter: 0.1,
		},
		Link: LinkConfig{
			Type:          LinkNone,
			Timeout:       30 * time.Second,
			Linger:        5 * time.Second,
			ResetBeforeUp: true,
		},
		Collector: CollectorConfig{
			Type: CollectorGraphite,
		},
		Graphite: GraphiteConfig{
			Host:    "localhost",
			Port:    2003,
			Prefix:  "sensors.",
			Timeout: 10 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Measurement: "environment",
			Timeout:     10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensorlink",
			},
			QoS:            1,
			TopicPrefix:    "sensorlink",
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		Journal: JournalConfig{
			Path:          "./data/sensorlink.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSORLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SENSORLINK_SITE_ID"); v != "" {
		cfg.Site.ID = v
	}

	if v := os.Getenv("SENSORLINK_BUS_DEVICE"); v != "" {
		cfg.Bus.Device = v
	}

	if v := os.Getenv("SENSORLINK_SCHEDULE_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SENSORLINK_SCHEDULE_PERIOD: %w", err)
		}
		cfg.Schedule.Period = d
	}

	if v := os.Getenv("SENSORLINK_COLLECTOR_TYPE"); v != "" {
		cfg.Collector.Type = v
	}

	// Graphite
	if v := os.Getenv("SENSORLINK_GRAPHITE_HOST"); v != "" {
		cfg.Graphite.Host = v
	}
	if v := os.Getenv("SENSORLINK_GRAPHITE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SENSORLINK_GRAPHITE_PORT: %w", err)
		}
		cfg.Graphite.Port = port
	}

	// InfluxDB
	if v := os.Getenv("SENSORLINK_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("SENSORLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// MQTT
	if v := os.Getenv("SENSORLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}

	// Journal
	if v := os.Getenv("SENSORLINK_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	if v := os.Getenv("SENSORLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected so the operator can fix them in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Bus.SpeedKHz < 0 {
		errs = append(errs, "bus.speed_khz must not be negative")
	}

	errs = append(errs, c.validateSensors()...)

	if c.Schedule.Period <= 0 {
		errs = append(errs, "schedule.period must be positive")
	}
	if c.Schedule.Jitter < 0 || c.Schedule.Jitter >= 1 {
		errs = append(errs, "schedule.jitter must be in [0, 1)")
	}

	if c.Buffer.Capacity < 0 {
		errs = append(errs, "buffer.capacity must not be negative")
	}

	switch c.Link.Type {
	case LinkNone:
	case LinkCommand:
		if len(c.Link.Up) == 0 {
			errs = append(errs, "link.up is required for link.type command")
		}
	default:
		errs = append(errs, fmt.Sprintf("link.type %q must be none or command", c.Link.Type))
	}
	if c.Link.Linger < 0 {
		errs = append(errs, "link.linger must not be negative")
	}

	switch c.Collector.Type {
	case CollectorGraphite:
		if c.Graphite.Host == "" {
			errs = append(errs, "graphite.host is required")
		}
		if c.Graphite.Port < 1 || c.Graphite.Port > 65535 {
			errs = append(errs, "graphite.port must be between 1 and 65535")
		}
	case CollectorInfluxDB:
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required (set SENSORLINK_INFLUXDB_TOKEN environment variable)")
		}
	case CollectorMQTT:
	default:
		errs = append(errs, fmt.Sprintf("collector.type %q must be graphite, influxdb or mqtt", c.Collector.Type))
	}

	if c.UsesMQTT() {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			errs = append(errs, "journal.path is required when the journal is enabled")
		}
		if c.Journal.RetentionDays < 0 {
			errs = append(errs, "journal.retention_days must not be negative")
		}
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required for file output")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateSensors() []string {
	var errs []string

	if len(c.Sensors) == 0 {
		errs = append(errs, "at least one sensor is required")
	}

	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Kind == "" {
			errs = append(errs, fmt.Sprintf("sensors[%d].kind is required", i))
		}
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sensors[%d].name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sensors[%d].name %q is not unique", i, s.Name))
		}
		seen[s.Name] = true

		if s.Address < 0 || s.Address > 0x7F {
			errs = append(errs, fmt.Sprintf("sensors[%d].address must be a 7-bit address", i))
		}
	}
	return errs
}

// UsesMQTT reports whether an MQTT connection is needed, either as the
// collector or for status reporting.
func (c *Config) UsesMQTT() bool {
	return c.Collector.Type == CollectorMQTT || c.MQTT.Status
}
