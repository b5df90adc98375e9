// Package guardian wires the location pipeline, threat map, emergency
// dispatcher and transports into one application.
package guardian

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/go-guardian/internal/config"
	"github.com/teslashibe/go-guardian/pkg/emergency"
	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Default configuration values.
const (
	DefaultPort            = config.DefaultHTTPPort
	DefaultRefreshInterval = 60 * time.Second
	DefaultStaticDir       = "./web"
	DefaultIncidentTable   = "guardian-incidents"
)

// Config holds all configuration for the Guardian application.
// Flag parsing is done in cmd/guardian/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug    bool   `json:"debug"`
	LogLevel string `json:"log_level"`

	// HTTP server.
	Port      string `json:"port"`
	StaticDir string `json:"static_dir"`

	// Threat map refresh period. Location updates also trigger a refresh.
	RefreshInterval time.Duration `json:"refresh_interval"`

	// DefaultLocation is used when no fix arrives in time.
	DefaultLocation geo.Point `json:"default_location"`

	// External data sources. Empty FeedURL disables the real-time feed.
	WeatherURL       string `json:"weather_url"`
	GeocodeURL       string `json:"geocode_url"`
	FeedURL          string `json:"feed_url"`
	FeedClientID     string `json:"feed_client_id"`
	FeedClientSecret string `json:"-"`
	FeedTokenURL     string `json:"feed_token_url"`

	// Emergency policy.
	AutoResponseLevel string   `json:"auto_response_level"`
	EmergencyNumber   string   `json:"emergency_number"`
	SimulateCalls     bool     `json:"simulate_calls"`
	Contacts          []string `json:"contacts"`

	// Incident storage. Empty table keeps incidents in memory.
	DynamoTable    string `json:"dynamo_table"`
	AWSRegion      string `json:"aws_region"`
	DynamoEndpoint string `json:"dynamo_endpoint"`

	// Push notifications. Empty project disables FCM.
	FCMProjectID       string `json:"fcm_project_id"`
	FCMCredentialsFile string `json:"fcm_credentials_file"`
	FCMTopic           string `json:"fcm_topic"`
	FCMDeviceToken     string `json:"-"`

	// Voice assistant. Empty key serves emergency phrases and cache only.
	OpenAIKey     string `json:"-"`
	OpenAIBaseURL string `json:"openai_base_url"`
	OpenAIModel   string `json:"openai_model"`

	// Weapon detection. Empty model path disables the scanner.
	YOLOModelPath     string        `json:"yolo_model_path"`
	CameraSnapshotURL string        `json:"camera_snapshot_url"`
	DetectionInterval time.Duration `json:"detection_interval"`
}

// DefaultConfig returns sensible defaults for Guardian configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:          "info",
		Port:              DefaultPort,
		StaticDir:         DefaultStaticDir,
		RefreshInterval:   DefaultRefreshInterval,
		DefaultLocation:   geo.ContinentalCentroid,
		AutoResponseLevel: string(emergency.AutoResponseAssist),
		EmergencyNumber:   "911",
		SimulateCalls:     true,
		AWSRegion:         "us-east-1",
		DetectionInterval: time.Second,
	}
}

// LoadEnvConfig loads configuration values from environment variables.
// Call this after flag parsing to apply environment overrides.
func (c *Config) LoadEnvConfig() {
	c.Debug = config.Bool("GUARDIAN_DEBUG", c.Debug)
	c.LogLevel = config.String("GUARDIAN_LOG_LEVEL", c.LogLevel)
	c.Port = config.String("GUARDIAN_PORT", c.Port)
	c.StaticDir = config.String("GUARDIAN_STATIC_DIR", c.StaticDir)
	c.RefreshInterval = config.Duration("GUARDIAN_REFRESH_INTERVAL", c.RefreshInterval)

	if raw := os.Getenv("GUARDIAN_DEFAULT_LOCATION"); raw != "" {
		if p, err := geo.ParsePoint(raw); err == nil {
			c.DefaultLocation = p
		}
	}

	c.WeatherURL = config.String("GUARDIAN_WEATHER_URL", c.WeatherURL)
	c.GeocodeURL = config.String("GUARDIAN_GEOCODE_URL", c.GeocodeURL)
	c.FeedURL = config.String("GUARDIAN_FEED_URL", c.FeedURL)
	c.FeedClientID = config.String("GUARDIAN_FEED_CLIENT_ID", c.FeedClientID)
	c.FeedClientSecret = config.String("GUARDIAN_FEED_CLIENT_SECRET", c.FeedClientSecret)
	c.FeedTokenURL = config.String("GUARDIAN_FEED_TOKEN_URL", c.FeedTokenURL)

	c.AutoResponseLevel = config.String("GUARDIAN_AUTO_RESPONSE", c.AutoResponseLevel)
	c.EmergencyNumber = config.String("GUARDIAN_EMERGENCY_NUMBER", c.EmergencyNumber)
	c.SimulateCalls = config.Bool("GUARDIAN_SIMULATE_CALLS", c.SimulateCalls)
	if raw := os.Getenv("GUARDIAN_CONTACTS"); raw != "" {
		c.Contacts = splitList(raw)
	}

	c.DynamoTable = config.String("GUARDIAN_DYNAMO_TABLE", c.DynamoTable)
	c.AWSRegion = config.String("AWS_REGION", c.AWSRegion)
	c.DynamoEndpoint = config.String("AWS_ENDPOINT_URL_DYNAMODB", c.DynamoEndpoint)

	c.FCMProjectID = config.String("FCM_PROJECT_ID", c.FCMProjectID)
	c.FCMCredentialsFile = config.String("GOOGLE_APPLICATION_CREDENTIALS", c.FCMCredentialsFile)
	c.FCMTopic = config.String("FCM_TOPIC", c.FCMTopic)
	c.FCMDeviceToken = config.String("FCM_DEVICE_TOKEN", c.FCMDeviceToken)

	c.OpenAIKey = config.String("OPENAI_API_KEY", c.OpenAIKey)
	c.OpenAIBaseURL = config.String("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = config.String("GUARDIAN_OPENAI_MODEL", c.OpenAIModel)

	c.YOLOModelPath = config.String("GUARDIAN_YOLO_MODEL", c.YOLOModelPath)
	c.CameraSnapshotURL = config.String("GUARDIAN_CAMERA_URL", c.CameraSnapshotURL)
	c.DetectionInterval = config.Duration("GUARDIAN_DETECTION_INTERVAL", c.DetectionInterval)
}

// LoadFileConfig merges a JSON config file over c. A missing file is not an
// error. Durations are written as Go duration strings ("90s").
func (c *Config) LoadFileConfig(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var file fileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return &ConfigError{Field: "file", Message: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return file.apply(c)
}

// fileConfig mirrors Config with durations as strings and every field
// optional so only present keys override.
type fileConfig struct {
	Debug             *bool      `json:"debug"`
	LogLevel          *string    `json:"log_level"`
	Port              *string    `json:"port"`
	StaticDir         *string    `json:"static_dir"`
	RefreshInterval   *string    `json:"refresh_interval"`
	DefaultLocation   *geo.Point `json:"default_location"`
	WeatherURL        *string    `json:"weather_url"`
	GeocodeURL        *string    `json:"geocode_url"`
	FeedURL           *string    `json:"feed_url"`
	FeedClientID      *string    `json:"feed_client_id"`
	FeedTokenURL      *string    `json:"feed_token_url"`
	AutoResponseLevel *string    `json:"auto_response_level"`
	EmergencyNumber   *string    `json:"emergency_number"`
	SimulateCalls     *bool      `json:"simulate_calls"`
	Contacts          []string   `json:"contacts"`
	DynamoTable       *string    `json:"dynamo_table"`
	AWSRegion         *string    `json:"aws_region"`
	DynamoEndpoint    *string    `json:"dynamo_endpoint"`
	FCMProjectID      *string    `json:"fcm_project_id"`
	FCMCredentials    *string    `json:"fcm_credentials_file"`
	FCMTopic          *string    `json:"fcm_topic"`
	OpenAIBaseURL     *string    `json:"openai_base_url"`
	OpenAIModel       *string    `json:"openai_model"`
	YOLOModelPath     *string    `json:"yolo_model_path"`
	CameraSnapshotURL *string    `json:"camera_snapshot_url"`
	DetectionInterval *string    `json:"detection_interval"`
}

func (f fileConfig) apply(c *Config) error {
	setBool(&c.Debug, f.Debug)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.Port, f.Port)
	setString(&c.StaticDir, f.StaticDir)
	if err := setDuration(&c.RefreshInterval, f.RefreshInterval, "refresh_interval"); err != nil {
		return err
	}
	if f.DefaultLocation != nil {
		c.DefaultLocation = *f.DefaultLocation
	}
	setString(&c.WeatherURL, f.WeatherURL)
	setString(&c.GeocodeURL, f.GeocodeURL)
	setString(&c.FeedURL, f.FeedURL)
	setString(&c.FeedClientID, f.FeedClientID)
	setString(&c.FeedTokenURL, f.FeedTokenURL)
	setString(&c.AutoResponseLevel, f.AutoResponseLevel)
	setString(&c.EmergencyNumber, f.EmergencyNumber)
	setBool(&c.SimulateCalls, f.SimulateCalls)
	if f.Contacts != nil {
		c.Contacts = f.Contacts
	}
	setString(&c.DynamoTable, f.DynamoTable)
	setString(&c.AWSRegion, f.AWSRegion)
	setString(&c.DynamoEndpoint, f.DynamoEndpoint)
	setString(&c.FCMProjectID, f.FCMProjectID)
	setString(&c.FCMCredentialsFile, f.FCMCredentials)
	setString(&c.FCMTopic, f.FCMTopic)
	setString(&c.OpenAIBaseURL, f.OpenAIBaseURL)
	setString(&c.OpenAIModel, f.OpenAIModel)
	setString(&c.YOLOModelPath, f.YOLOModelPath)
	setString(&c.CameraSnapshotURL, f.CameraSnapshotURL)
	return setDuration(&c.DetectionInterval, f.DetectionInterval, "detection_interval")
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return &ConfigError{Field: field, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	*dst = d
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return &ConfigError{Field: "Port", Message: "port is required"}
	}
	if c.RefreshInterval <= 0 {
		return &ConfigError{Field: "RefreshInterval", Message: "refresh interval must be positive"}
	}
	if !c.DefaultLocation.Valid() {
		return &ConfigError{Field: "DefaultLocation", Message: fmt.Sprintf("default location %s is out of range", c.DefaultLocation)}
	}
	if _, err := emergency.ParseAutoResponseLevel(c.AutoResponseLevel); err != nil {
		return &ConfigError{Field: "AutoResponseLevel", Message: err.Error()}
	}
	if c.FeedClientID != "" && c.FeedTokenURL == "" {
		return &ConfigError{Field: "FeedTokenURL", Message: "GUARDIAN_FEED_TOKEN_URL is required with a feed client ID"}
	}
	if c.FCMProjectID != "" && c.FCMTopic == "" && c.FCMDeviceToken == "" {
		return &ConfigError{Field: "FCMTopic", Message: "FCM_TOPIC or FCM_DEVICE_TOKEN is required with FCM_PROJECT_ID"}
	}
	if c.YOLOModelPath != "" && c.DetectionInterval <= 0 {
		return &ConfigError{Field: "DetectionInterval", Message: "detection interval must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
