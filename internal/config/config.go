package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env            string
	ServiceName    string
	ServiceVersion string

	DatabaseURL string
	RedisURL    string

	AuthJWTSecret string
	AuthIssuer    string

	AssemblyAIKey string
	ElevenLabsKey string

	OtelExporterOTLPEndpoint string
	OtelExporterOTLPHeaders  string
	SentryDSN                string

	Port string

	Transcription TranscriptionConfig
}

// TranscriptionConfig tunes the dispatch and polling behavior. Provider
// credentials stay in the environment; these knobs rarely change per deploy.
type TranscriptionConfig struct {
	SubmitTimeoutSeconds int    `yaml:"submit_timeout_seconds"`
	PollIntervalSeconds  int    `yaml:"poll_interval_seconds"`
	ElevenLabsModelID    string `yaml:"elevenlabs_model_id"`
	DetectMaxAttempts    int    `yaml:"detect_max_attempts"`
	DetectDelayMillis    int    `yaml:"detect_delay_millis"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      os.Getenv("ENV"),
		ServiceName:              os.Getenv("SERVICE_NAME"),
		ServiceVersion:           os.Getenv("SERVICE_VERSION"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		AuthJWTSecret:            os.Getenv("AUTH_JWT_SECRET"),
		AuthIssuer:               os.Getenv("AUTH_ISSUER"),
		AssemblyAIKey:            os.Getenv("ASSEMBLYAI_API_KEY"),
		ElevenLabsKey:            os.Getenv("ELEVENLABS_API_KEY"),
		OtelExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterOTLPHeaders:  os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		SentryDSN:                os.Getenv("SENTRY_DSN"),
		Port:                     os.Getenv("PORT"),
	}

	// Load from YAML file if available
	if err := cfg.LoadFromYAML("config.yaml"); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	// Set defaults
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "kalam"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "1.0.0"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	cfg.SetTranscriptionDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (c *Config) LoadFromYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlConfig struct {
		Transcription TranscriptionConfig `yaml:"transcription"`
	}

	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlConfig.Transcription.SubmitTimeoutSeconds > 0 {
		c.Transcription.SubmitTimeoutSeconds = yamlConfig.Transcription.SubmitTimeoutSeconds
	}
	if yamlConfig.Transcription.PollIntervalSeconds > 0 {
		c.Transcription.PollIntervalSeconds = yamlConfig.Transcription.PollIntervalSeconds
	}
	if yamlConfig.Transcription.ElevenLabsModelID != "" {
		c.Transcription.ElevenLabsModelID = yamlConfig.Transcription.ElevenLabsModelID
	}
	if yamlConfig.Transcription.DetectMaxAttempts > 0 {
		c.Transcription.DetectMaxAttempts = yamlConfig.Transcription.DetectMaxAttempts
	}
	if yamlConfig.Transcription.DetectDelayMillis > 0 {
		c.Transcription.DetectDelayMillis = yamlConfig.Transcription.DetectDelayMillis
	}

	return nil
}

func (c *Config) SetTranscriptionDefaults() {
	if c.Transcription.SubmitTimeoutSeconds == 0 {
		c.Transcription.SubmitTimeoutSeconds = 30
	}
	if c.Transcription.PollIntervalSeconds == 0 {
		c.Transcription.PollIntervalSeconds = 3
	}
	if c.Transcription.ElevenLabsModelID == "" {
		c.Transcription.ElevenLabsModelID = "scribe_v1"
	}
	if c.Transcription.DetectMaxAttempts == 0 {
		c.Transcription.DetectMaxAttempts = 6
	}
	if c.Transcription.DetectDelayMillis == 0 {
		c.Transcription.DetectDelayMillis = 1500
	}
}

// validate checks the infrastructure settings only. Provider API keys are
// deliberately not required at boot: a missing key fails the individual
// request with a configuration error instead of preventing startup.
func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	return nil
}
