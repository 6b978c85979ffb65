package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Pi        PiConfig
	AI        AIConfig
	Scheduler SchedulerConfig
	Actuation ActuationConfig
	Kafka     KafkaConfig
	MQTT      MQTTConfig
	Influx    InfluxConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string
	Port          int
	AllowOrigins  []string
	APISecret     string
	CaptureAPIKey string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	RetentionPeriod time.Duration
}

// PiConfig holds settings for the device service behind the tunnel
type PiConfig struct {
	TunnelURL       string
	APIKey          string
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// AIConfig holds settings for the vision/chat model API
type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// SchedulerConfig controls the lighting window and polling cadence
type SchedulerConfig struct {
	LightOnHour           int
	LightOffHour          int
	DayIntervalMinutes    int
	NightIntervalMinutes  int
	SensorIntervalMinutes int
	Location              *time.Location
}

// ActuationConfig bounds what the executor may do
type ActuationConfig struct {
	WaterDuration time.Duration
	WaterCooldown time.Duration
}

// KafkaConfig enables the event mirror when Brokers is set
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MQTTConfig enables the MQTT event publisher when Broker is set
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

// InfluxConfig enables climate time-series export when URL is set
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var errs []string
	geti := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnvOrDefault("HOST", "0.0.0.0"),
			Port: geti("PORT", 3001),
			AllowOrigins: []string{
				getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
				"http://localhost:3000",
			},
			APISecret:     os.Getenv("API_SECRET"),
			CaptureAPIKey: os.Getenv("CAPTURE_API_KEY"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			RetentionPeriod: time.Duration(geti("SENSOR_RETENTION_DAYS", 30)) * 24 * time.Hour,
		},
		Pi: PiConfig{
			TunnelURL:       os.Getenv("PI_TUNNEL_URL"),
			APIKey:          os.Getenv("CAPTURE_API_KEY"),
			Timeout:         time.Duration(geti("PI_TIMEOUT_SECONDS", 10)) * time.Second,
			BreakerFailures: geti("PI_BREAKER_FAILURES", 3),
			BreakerOpenFor:  time.Duration(geti("PI_BREAKER_OPEN_SECONDS", 30)) * time.Second,
		},
		AI: AIConfig{
			APIKey:  os.Getenv("XAI_API_KEY"),
			BaseURL: getEnvOrDefault("XAI_BASE_URL", "https://api.x.ai/v1"),
			Model:   getEnvOrDefault("XAI_MODEL", "grok-4"),
			Timeout: time.Duration(geti("XAI_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			LightOnHour:           geti("LIGHT_ON_HOUR", 6),
			LightOffHour:          geti("LIGHT_OFF_HOUR", 22),
			DayIntervalMinutes:    geti("DAY_INTERVAL_MINUTES", 30),
			NightIntervalMinutes:  geti("NIGHT_INTERVAL_MINUTES", 120),
			SensorIntervalMinutes: geti("SENSOR_INTERVAL_MINUTES", 5),
			Location:              time.Local,
		},
		Actuation: ActuationConfig{
			WaterDuration: time.Duration(geti("WATER_DURATION_SECONDS", 5)) * time.Second,
			WaterCooldown: time.Duration(geti("WATER_COOLDOWN_MINUTES", 60)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "greenhouse.events"),
		},
		MQTT: MQTTConfig{
			Broker:      os.Getenv("MQTT_BROKER"),
			TopicPrefix: getEnvOrDefault("MQTT_TOPIC_PREFIX", "solanum"),
			ClientID:    getEnvOrDefault("MQTT_CLIENT_ID", "solanum-backend"),
			Username:    os.Getenv("MQTT_USER"),
			Password:    os.Getenv("MQTT_PASSWORD"),
		},
		Influx: InfluxConfig{
			URL:    os.Getenv("INFLUX_URL"),
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    getEnvOrDefault("INFLUX_ORG", "solanum"),
			Bucket: getEnvOrDefault("INFLUX_BUCKET", "greenhouse"),
		},
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TIMEZONE: %v", err))
		} else {
			cfg.Scheduler.Location = loc
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges
func (c *Config) Validate() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("XAI_API_KEY is required")
	}
	if c.Pi.TunnelURL == "" {
		return fmt.Errorf("PI_TUNNEL_URL is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if c.Pi.Timeout <= 0 {
		return fmt.Errorf("PI_TIMEOUT_SECONDS must be positive")
	}
	if c.Pi.BreakerFailures <= 0 || c.Pi.BreakerOpenFor <= 0 {
		return fmt.Errorf("PI_BREAKER_FAILURES and PI_BREAKER_OPEN_SECONDS must be positive")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("XAI_TIMEOUT_SECONDS must be positive")
	}
	if c.Database.RetentionPeriod <= 0 {
		return fmt.Errorf("SENSOR_RETENTION_DAYS must be positive")
	}
	if c.Actuation.WaterDuration <= 0 {
		return fmt.Errorf("WATER_DURATION_SECONDS must be positive")
	}
	// zero disables the cooldown
	if c.Actuation.WaterCooldown < 0 {
		return fmt.Errorf("WATER_COOLDOWN_MINUTES must not be negative")
	}
	return c.Scheduler.Validate()
}

// Validate checks the lighting window and interval settings
func (s *SchedulerConfig) Validate() error {
	if s.LightOnHour < 0 || s.LightOnHour > 23 {
		return fmt.Errorf("LIGHT_ON_HOUR out of range: %d", s.LightOnHour)
	}
	if s.LightOffHour < 0 || s.LightOffHour > 23 {
		return fmt.Errorf("LIGHT_OFF_HOUR out of range: %d", s.LightOffHour)
	}
	if s.LightOnHour == s.LightOffHour {
		return fmt.Errorf("LIGHT_ON_HOUR and LIGHT_OFF_HOUR must differ")
	}
	if s.DayIntervalMinutes <= 0 || s.NightIntervalMinutes <= 0 || s.SensorIntervalMinutes <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
