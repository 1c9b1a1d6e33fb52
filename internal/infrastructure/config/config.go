package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// machineIDPath is read when no runner id is configured.
var machineIDPath = "/etc/machine-id"

// Config is the root configuration structure for the Things runner.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Runner   RunnerConfig   `yaml:"runner"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Redis    RedisConfig    `yaml:"redis"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bindings BindingsConfig `yaml:"bindings"`
	Sync     SyncConfig     `yaml:"sync"`
}

// RunnerConfig identifies this process.
type RunnerConfig struct {
	// ID namespaces universal Thing ids. Two runners with the same id
	// produce the same universal id for the same physical device.
	// Default: contents of /etc/machine-id
	ID string `yaml:"id"`

	// Name is a human label used in logs.
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// RedisConfig contains Redis record store settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix is prepended to every key and channel name.
	Prefix string `yaml:"prefix"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BindingsConfig points at the binding catalog.
type BindingsConfig struct {
	// Catalog is the path to a YAML file listing model bindings.
	Catalog string `yaml:"catalog"`

	// Protocol is the topic segment used by the MQTT bridge.
	// Default: "generic"
	Protocol string `yaml:"protocol"`

	// Model restricts discovery to one model code. Empty probes everything.
	Model string `yaml:"model"`
}

// SyncConfig describes which record stores Things are mirrored to,
// and how stores are mirrored to each other.
type SyncConfig struct {
	// Things wires every discovered Thing to a store.
	Things []ThingSyncConfig `yaml:"things"`

	// Stores binds a secondary store to a primary store.
	Stores []StoreBindConfig `yaml:"stores"`
}

// ThingSyncConfig wires Things to one store.
//
// Policy keys are band classes (meta, istate, ostate, model) mapping to
// {send: bool, receive: bool}. A policy is required; bands it leaves out
// are not mirrored.
type ThingSyncConfig struct {
	Store  string                     `yaml:"store"`
	Policy map[string]DirectionConfig `yaml:"policy"`
}

// DirectionConfig enables one direction per band class.
type DirectionConfig struct {
	Send    bool `yaml:"send"`
	Receive bool `yaml:"receive"`
}

// StoreBindConfig binds Secondary to Primary.
//
// Policy is decoded by the mirror package so that invalid values are
// reported with its own error.
type StoreBindConfig struct {
	Primary   string         `yaml:"primary"`
	Secondary string         `yaml:"secondary"`
	Policy    map[string]any `yaml:"policy"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_REDIS_ADDR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Runner.ID == "" {
		cfg.Runner.ID = readMachineID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if cfg.Runner.ID == "" {
		cfg.Runner.ID = readMachineID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Runner: RunnerConfig{
			Name: "graylogic-things",
		},
		Database: DatabaseConfig{
			Path:        "./data/things.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-things",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "graylogic:",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Bindings: BindingsConfig{
			Protocol: "generic",
		},
		Sync: SyncConfig{
			Things: []ThingSyncConfig{{
				Store: "memory",
				Policy: map[string]DirectionConfig{
					"meta":   {Send: true, Receive: true},
					"istate": {Send: true, Receive: true},
					"ostate": {Send: true, Receive: true},
					"model":  {Send: true},
				},
			}},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_RUNNER_ID"); v != "" {
		cfg.Runner.ID = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Redis
	if v := os.Getenv("GRAYLOGIC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GRAYLOGIC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_BINDINGS_CATALOG"); v != "" {
		cfg.Bindings.Catalog = v
	}
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func readMachineID() string {
	data, err := os.ReadFile(machineIDPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Runner.ID == "" {
		errs = append(errs, "runner.id is required (set GRAYLOGIC_RUNNER_ID or provide /etc/machine-id)")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}

	enabled := c.enabledStores()
	for i, t := range c.Sync.Things {
		if !enabled[t.Store] {
			errs = append(errs, fmt.Sprintf("sync.things[%d].store %q is unknown or disabled", i, t.Store))
		}
		if len(t.Policy) == 0 {
			errs = append(errs, fmt.Sprintf("sync.things[%d].policy is required", i))
		}
		for class := range t.Policy {
			switch class {
			case "meta", "istate", "ostate", "model":
			default:
				errs = append(errs, fmt.Sprintf("sync.things[%d].policy has unknown band %q", i, class))
			}
		}
	}
	for i, s := range c.Sync.Stores {
		if !enabled[s.Primary] {
			errs = append(errs, fmt.Sprintf("sync.stores[%d].primary %q is unknown or disabled", i, s.Primary))
		}
		if !enabled[s.Secondary] {
			errs = append(errs, fmt.Sprintf("sync.stores[%d].secondary %q is unknown or disabled", i, s.Secondary))
		}
		if s.Primary == s.Secondary {
			errs = append(errs, fmt.Sprintf("sync.stores[%d] binds %q to itself", i, s.Primary))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// enabledStores reports which store names can be built with this configuration.
func (c *Config) enabledStores() map[string]bool {
	out := map[string]bool{"memory": true}
	if c.Database.Enabled {
		out["sqlite"] = true
	}
	if c.MQTT.Enabled {
		out["mqtt"] = true
	}
	if c.Redis.Enabled {
		out["redis"] = true
	}
	if c.InfluxDB.Enabled {
		out["influxdb"] = true
	}
	return out
}

// StoreEnabled reports whether the named record store is configured.
func (c *Config) StoreEnabled(name string) bool {
	return c.enabledStores()[name]
}
