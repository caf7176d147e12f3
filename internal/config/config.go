package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "isochroned.cfg.json"

// SchedulerConfig holds tick cadence settings
type SchedulerConfig struct {
	Interval            time.Duration `json:"interval" mapstructure:"interval"`
	AbsoluteMaxDuration time.Duration `json:"absoluteMaxDuration" mapstructure:"absoluteMaxDuration"`
}

// ProviderConfig is the common shape of every external HTTP provider.
type ProviderConfig struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	BaseURL string        `json:"baseUrl" mapstructure:"baseUrl"`
	APIKey  string        `json:"apiKey" mapstructure:"apiKey"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// TrafficConfig holds traffic sample provider and cache settings
type TrafficConfig struct {
	ProviderConfig `mapstructure:",squash"`
	TTL            time.Duration `json:"ttl" mapstructure:"ttl"`
	Budget         int           `json:"budget" mapstructure:"budget"`
}

// TilesConfig bounds the tile frontier strategy
type TilesConfig struct {
	MaxTiles       int `json:"maxTiles" mapstructure:"maxTiles"`
	LookupsPerCall int `json:"lookupsPerCall" mapstructure:"lookupsPerCall"`
}

// ReachRangeConfig holds reachable-range provider settings
type ReachRangeConfig struct {
	ProviderConfig   `mapstructure:",squash"`
	MaxBudgetSeconds int  `json:"maxBudgetSeconds" mapstructure:"maxBudgetSeconds"`
	Traffic          bool `json:"traffic" mapstructure:"traffic"`
}

// SQLiteConfig holds SQLite settings for the gorm backend
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// StorageConfig selects and configures the track store.
// Type is one of "memory", "postgres" or "sqlite".
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// WebSocketConfig holds WebSocket hub settings
type WebSocketConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// KafkaConfig holds Kafka publisher settings
type KafkaConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

// NotifyConfig holds notification sink settings
type NotifyConfig struct {
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	Kafka     KafkaConfig     `json:"kafka" mapstructure:"kafka"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB compute recorder settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("http.addr", ":8080")

	viper.SetDefault("scheduler.interval", "20s")
	viper.SetDefault("scheduler.absoluteMaxDuration", "4h")

	viper.SetDefault("traffic.enabled", false)
	viper.SetDefault("traffic.baseUrl", "https://api.tomtom.com")
	viper.SetDefault("traffic.apiKey", "")
	viper.SetDefault("traffic.timeout", "5s")
	viper.SetDefault("traffic.ttl", "5m")
	viper.SetDefault("traffic.budget", 64)

	viper.SetDefault("tiles.maxTiles", 4096)
	viper.SetDefault("tiles.lookupsPerCall", 32)

	viper.SetDefault("roadgraph.enabled", false)
	viper.SetDefault("roadgraph.baseUrl", "http://localhost:8989")
	viper.SetDefault("roadgraph.apiKey", "")
	viper.SetDefault("roadgraph.timeout", "10s")

	viper.SetDefault("reachrange.enabled", false)
	viper.SetDefault("reachrange.baseUrl", "https://api.tomtom.com")
	viper.SetDefault("reachrange.apiKey", "")
	viper.SetDefault("reachrange.timeout", "15s")
	viper.SetDefault("reachrange.maxBudgetSeconds", 3600)
	viper.SetDefault("reachrange.traffic", true)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "isochroned")

	viper.SetDefault("notify.websocket.enabled", true)
	viper.SetDefault("notify.kafka.enabled", false)
	viper.SetDefault("notify.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("notify.kafka.topic", "isochrone-events")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "isochroned")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "pursuit")
	viper.SetDefault("influx.bucket", "isochrones")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSchedulerConfig returns the scheduler settings.
func GetSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:            viper.GetDuration("scheduler.interval"),
		AbsoluteMaxDuration: viper.GetDuration("scheduler.absoluteMaxDuration"),
	}
}

func getProvider(prefix string) ProviderConfig {
	return ProviderConfig{
		Enabled: viper.GetBool(prefix + ".enabled"),
		BaseURL: viper.GetString(prefix + ".baseUrl"),
		APIKey:  viper.GetString(prefix + ".apiKey"),
		Timeout: viper.GetDuration(prefix + ".timeout"),
	}
}

// GetTrafficConfig returns the traffic provider and cache settings.
func GetTrafficConfig() TrafficConfig {
	return TrafficConfig{
		ProviderConfig: getProvider("traffic"),
		TTL:            viper.GetDuration("traffic.ttl"),
		Budget:         viper.GetInt("traffic.budget"),
	}
}

// GetTilesConfig returns the tile frontier bounds.
func GetTilesConfig() TilesConfig {
	return TilesConfig{
		MaxTiles:       viper.GetInt("tiles.maxTiles"),
		LookupsPerCall: viper.GetInt("tiles.lookupsPerCall"),
	}
}

// GetRoadGraphConfig returns the road graph provider settings.
func GetRoadGraphConfig() ProviderConfig {
	return getProvider("roadgraph")
}

// GetReachRangeConfig returns the reachable-range provider settings.
func GetReachRangeConfig() ReachRangeConfig {
	return ReachRangeConfig{
		ProviderConfig:   getProvider("reachrange"),
		MaxBudgetSeconds: viper.GetInt("reachrange.maxBudgetSeconds"),
		Traffic:          viper.GetBool("reachrange.traffic"),
	}
}

// GetStorageConfig returns the storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
	}
}

// GetNotifyConfig returns the notification sink settings.
func GetNotifyConfig() NotifyConfig {
	return NotifyConfig{
		WebSocket: WebSocketConfig{
			Enabled: viper.GetBool("notify.websocket.enabled"),
		},
		Kafka: KafkaConfig{
			Enabled: viper.GetBool("notify.kafka.enabled"),
			Brokers: viper.GetStringSlice("notify.kafka.brokers"),
			Topic:   viper.GetString("notify.kafka.topic"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}
