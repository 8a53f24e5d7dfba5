package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the IR bridge service.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// The accessories themselves live in a separate file (Bridge.AccessoriesFile)
// that keeps the legacy accessory layout.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Security  SecurityConfig  `yaml:"security"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

// SiteConfig identifies the installation. The ID tags history points and
// the MQTT status messages.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes history rows older than this. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix roots every topic the service publishes or subscribes
	// to, except the free-form sensor topics from the accessories file.
	TopicPrefix string `yaml:"topic_prefix"`

	// PublishState mirrors every characteristic change to a retained
	// state topic per accessory.
	PublishState bool `yaml:"publish_state"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains the state mirror connection settings.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`

	// TTL is how long a mirrored state survives without updates, in seconds.
	TTL int `yaml:"ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings. An empty secret disables API
// authentication.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// BridgeConfig contains settings for the accessory engine and the
// hardware gateway.
type BridgeConfig struct {
	// AccessoriesFile is the legacy accessories file (hosts and accessories).
	AccessoriesFile string `yaml:"accessories_file"`

	// DefaultSensorTimeout bounds the wait for a device sensor answer, in
	// seconds.
	DefaultSensorTimeout int `yaml:"default_sensor_timeout"`

	// HealthTimeout marks a gateway device inactive when no heartbeat
	// arrived for this many seconds.
	HealthTimeout int `yaml:"health_timeout"`

	// PingTimeout bounds one switch reachability probe, in seconds.
	PingTimeout int `yaml:"ping_timeout"`

	// ARPTable overrides the kernel ARP table path.
	ARPTable string `yaml:"arp_table"`

	// W1Root overrides the 1-Wire device directory.
	W1Root string `yaml:"w1_root"`

	Daemon GatewayDaemonConfig `yaml:"daemon"`
}

// GatewayDaemonConfig controls supervision of the gateway daemon. Leave
// Managed off when the daemon runs as its own service.
type GatewayDaemonConfig struct {
	Managed bool     `yaml:"managed"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// Durations in seconds.
	RestartDelay    int `yaml:"restart_delay"`
	MaxRestartDelay int `yaml:"max_restart_delay"`
	GracefulTimeout int `yaml:"graceful_timeout"`
	CheckInterval   int `yaml:"check_interval"`

	// MaxRestarts gives up after this many consecutive failures. Zero
	// restarts forever.
	MaxRestarts int `yaml:"max_restarts"`
}

// Load reads the service configuration. Values are layered: built-in
// defaults, then the YAML file, then IRBRIDGE_* environment variables
// (IRBRIDGE_MQTT_PASSWORD, IRBRIDGE_JWT_SECRET and so on).
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Read, parse or validation failure
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "irbridge-001",
			Name: "IR Bridge",
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/irbridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "irbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix:  "irbridge",
			PublishState: true,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			KeyPrefix: "irbridge:state:",
			TTL:       86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer: "irbridge",
			},
		},
		Bridge: BridgeConfig{
			AccessoriesFile:      "configs/accessories.yaml",
			DefaultSensorTimeout: 10,
			HealthTimeout:        90,
			PingTimeout:          1,
			Daemon: GatewayDaemonConfig{
				RestartDelay:    5,
				MaxRestartDelay: 300,
				GracefulTimeout: 10,
				CheckInterval:   30,
			},
		},
	}
}

// envPrefix starts every override variable.
const envPrefix = "IRBRIDGE_"

// envString and envInt bind an override variable to a field.
func envString(field func(*Config) *string) func(*Config, string) {
	return func(c *Config, v string) { *field(c) = v }
}

func envInt(field func(*Config) *int) func(*Config, string) {
	return func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(c) = n
		}
	}
}

// envOverrides lists the variables that win over the file. Secrets belong
// here rather than in config.yaml.
var envOverrides = map[string]func(*Config, string){
	"DATABASE_PATH":    envString(func(c *Config) *string { return &c.Database.Path }),
	"MQTT_HOST":        envString(func(c *Config) *string { return &c.MQTT.Broker.Host }),
	"MQTT_PORT":        envInt(func(c *Config) *int { return &c.MQTT.Broker.Port }),
	"MQTT_USERNAME":    envString(func(c *Config) *string { return &c.MQTT.Auth.Username }),
	"MQTT_PASSWORD":    envString(func(c *Config) *string { return &c.MQTT.Auth.Password }),
	"API_HOST":         envString(func(c *Config) *string { return &c.API.Host }),
	"API_PORT":         envInt(func(c *Config) *int { return &c.API.Port }),
	"INFLUXDB_TOKEN":   envString(func(c *Config) *string { return &c.InfluxDB.Token }),
	"REDIS_ADDRESS":    envString(func(c *Config) *string { return &c.Redis.Address }),
	"REDIS_PASSWORD":   envString(func(c *Config) *string { return &c.Redis.Password }),
	"JWT_SECRET":       envString(func(c *Config) *string { return &c.Security.JWT.Secret }),
	"ACCESSORIES_FILE": envString(func(c *Config) *string { return &c.Bridge.AccessoriesFile }),
	"LOG_LEVEL":        envString(func(c *Config) *string { return &c.Logging.Level }),
}

// applyEnvOverrides copies every set, non-empty IRBRIDGE_* variable from
// envOverrides into cfg. Unparseable numbers leave the field alone.
func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v := os.Getenv(envPrefix + name); v != "" {
			apply(cfg, v)
		}
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must be set and contain no wildcards")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls needs cert_file and key_file")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		errs = append(errs, "redis.address is required when redis is enabled")
	}

	// An empty secret leaves the API open. HS256 tokens signed with a short
	// one can be brute-forced.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Bridge.AccessoriesFile == "" {
		errs = append(errs, "bridge.accessories_file is required")
	}
	if c.Bridge.DefaultSensorTimeout < 0 {
		errs = append(errs, "bridge.default_sensor_timeout must not be negative")
	}
	if c.Bridge.HealthTimeout < 0 {
		errs = append(errs, "bridge.health_timeout must not be negative")
	}
	if c.Bridge.Daemon.Managed && c.Bridge.Daemon.Binary == "" {
		errs = append(errs, "bridge.daemon.binary is required when the daemon is managed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetSensorTimeout returns the device sensor answer timeout.
func (c *Config) GetSensorTimeout() time.Duration {
	return time.Duration(c.Bridge.DefaultSensorTimeout) * time.Second
}

// GetHealthTimeout returns the gateway heartbeat timeout.
func (c *Config) GetHealthTimeout() time.Duration {
	return time.Duration(c.Bridge.HealthTimeout) * time.Second
}

// GetPingTimeout returns the reachability probe timeout.
func (c *Config) GetPingTimeout() time.Duration {
	return time.Duration(c.Bridge.PingTimeout) * time.Second
}

// GetStateTTL returns how long mirrored states live in redis.
func (c *Config) GetStateTTL() time.Duration {
	return time.Duration(c.Redis.TTL) * time.Second
}
