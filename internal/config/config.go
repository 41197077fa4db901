package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	AWS        AWSConfig        `yaml:"aws"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Counselors CounselorsConfig `yaml:"counselors"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Poller     PollerConfig     `yaml:"poller"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the bind host, defaulting to all interfaces.
func (c ServerConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// AWSConfig holds shared AWS client settings
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// IngestConfig holds recording-ingestion watcher settings
type IngestConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Bucket              string `yaml:"bucket"`
	Prefix              string `yaml:"prefix"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// PollInterval returns the watcher poll interval.
func (c IngestConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// TranscribeConfig holds the transcription collaborator endpoint settings
type TranscribeConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the per-request timeout for transcription calls.
func (c TranscribeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScoringConfig holds LLM scoring settings.
// ModelIDs is the ordered fallback chain; the stage tries each in order
// and succeeds on the first model that answers.
type ScoringConfig struct {
	ModelIDs       []string `yaml:"model_ids"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    float64  `yaml:"temperature"`
	RubricPath     string   `yaml:"rubric_path"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Timeout returns the per-model invocation timeout.
func (c ScoringConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArtifactsConfig holds derived-artifact storage settings
type ArtifactsConfig struct {
	Bucket string `yaml:"bucket"`
}

// CounselorsConfig holds counselor/evaluation persistence settings
type CounselorsConfig struct {
	ProfileTable    string   `yaml:"profile_table"`
	EvaluationTable string   `yaml:"evaluation_table"`
	DefaultPrograms []string `yaml:"default_programs"`
}

// JobsConfig holds job-registry settings. When RedisAddr is set the
// registry is shared across instances; otherwise it is in-memory.
type JobsConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLHours      int    `yaml:"ttl_hours"`
}

// TTL returns how long terminal job records stay queryable.
func (c JobsConfig) TTL() time.Duration {
	if c.TTLHours == 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// PollerConfig holds client-side status polling settings
type PollerConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	DelaySeconds int `yaml:"delay_seconds"`
}

// Delay returns the fixed delay between status polls.
func (c PollerConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Ingest.Prefix == "" {
		cfg.Ingest.Prefix = "records/"
	}
	if cfg.Ingest.PollIntervalSeconds == 0 {
		cfg.Ingest.PollIntervalSeconds = 30
	}
	if cfg.Transcribe.TimeoutSeconds == 0 {
		cfg.Transcribe.TimeoutSeconds = 300
	}
	if cfg.Transcribe.MaxRetries == 0 {
		cfg.Transcribe.MaxRetries = 3
	}
	if len(cfg.Scoring.ModelIDs) == 0 {
		cfg.Scoring.ModelIDs = []string{
			"anthropic.claude-3-5-sonnet-20240620-v1:0",
			"anthropic.claude-3-sonnet-20240229-v1:0",
			"anthropic.claude-3-haiku-20240307-v1:0",
		}
	}
	if cfg.Scoring.MaxTokens == 0 {
		cfg.Scoring.MaxTokens = 4000
	}
	if cfg.Scoring.TimeoutSeconds == 0 {
		cfg.Scoring.TimeoutSeconds = 120
	}
	if len(cfg.Counselors.DefaultPrograms) == 0 {
		cfg.Counselors.DefaultPrograms = []string{"crisis-line"}
	}
	if cfg.Poller.MaxAttempts == 0 {
		cfg.Poller.MaxAttempts = 60
	}
	if cfg.Poller.DelaySeconds == 0 {
		cfg.Poller.DelaySeconds = 10
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("RECORDINGS_BUCKET"); v != "" {
		cfg.Ingest.Bucket = v
	}
	if v := os.Getenv("ARTIFACTS_BUCKET"); v != "" {
		cfg.Artifacts.Bucket = v
	}
	if v := os.Getenv("TRANSCRIBE_BASE_URL"); v != "" {
		cfg.Transcribe.BaseURL = v
	}
	if v := os.Getenv("COUNSELOR_PROFILE_TABLE"); v != "" {
		cfg.Counselors.ProfileTable = v
	}
	if v := os.Getenv("EVALUATION_TABLE"); v != "" {
		cfg.Counselors.EvaluationTable = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Jobs.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Jobs.RedisPassword = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
