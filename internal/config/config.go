package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "CAMPUS"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "campus.db"
	defaultLogLevel        = "info"
	defaultIssuer          = "campus-api"
	defaultAudience        = "campus-clients"
	defaultTokenTTLMinutes = 60 * 24 * 7
	defaultUploadsDir      = "uploads"
	defaultUploadMaxBytes  = 10 << 20
	defaultSendBuffer      = 64
	defaultMaxFrameBytes   = 64 * 1024
	defaultPingInterval    = 25 * time.Second
	defaultEventsPerSecond = 20.0
	defaultEventBurst      = 40
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	LogDevelopment bool
	SigningSecret  string
	TokenIssuer    string
	TokenAudience  string
	TokenTTL       time.Duration
	UploadsDir     string
	UploadMaxBytes int64
	AllowedOrigins []string
	Realtime       RealtimeConfig
}

// RealtimeConfig tunes the websocket channel.
type RealtimeConfig struct {
	SendBuffer      int
	MaxFrameBytes   int64
	PingInterval    time.Duration
	EventsPerSecond float64
	EventBurst      int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.development", false)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("uploads.dir", defaultUploadsDir)
	configViper.SetDefault("uploads.max_bytes", defaultUploadMaxBytes)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("realtime.send_buffer", defaultSendBuffer)
	configViper.SetDefault("realtime.max_frame_bytes", defaultMaxFrameBytes)
	configViper.SetDefault("realtime.ping_interval", defaultPingInterval)
	configViper.SetDefault("realtime.events_per_second", defaultEventsPerSecond)
	configViper.SetDefault("realtime.event_burst", defaultEventBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogDevelopment: configViper.GetBool("log.development"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenIssuer:    configViper.GetString("auth.issuer"),
		TokenAudience:  configViper.GetString("auth.audience"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		UploadsDir:     configViper.GetString("uploads.dir"),
		UploadMaxBytes: configViper.GetInt64("uploads.max_bytes"),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		Realtime: RealtimeConfig{
			SendBuffer:      configViper.GetInt("realtime.send_buffer"),
			MaxFrameBytes:   configViper.GetInt64("realtime.max_frame_bytes"),
			PingInterval:    configViper.GetDuration("realtime.ping_interval"),
			EventsPerSecond: configViper.GetFloat64("realtime.events_per_second"),
			EventBurst:      configViper.GetInt("realtime.event_burst"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadTokenSettings reads only what token issuance needs.
func LoadTokenSettings(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.issuer"),
		TokenAudience: configViper.GetString("auth.audience"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
	}
	if err := cfg.validateToken(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := c.validateToken(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.Realtime.MaxFrameBytes <= 0 {
		return fmt.Errorf("realtime.max_frame_bytes must be positive")
	}
	if c.Realtime.PingInterval < 0 {
		return fmt.Errorf("realtime.ping_interval must not be negative")
	}
	if c.Realtime.EventsPerSecond < 0 {
		return fmt.Errorf("realtime.events_per_second must not be negative")
	}
	return nil
}

func (c AppConfig) validateToken() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.TokenIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.TokenAudience) == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}

// splitOrigins accepts both list values and comma separated env strings.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}
