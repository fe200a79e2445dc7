package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Features is the top-level service configuration, loaded from
// config/features.yaml with env-var overrides merged on top.
type Features struct {
	Debate        DebateConfig        `mapstructure:"debate"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Services      ServicesConfig      `mapstructure:"services"`
	Session       SessionConfig       `mapstructure:"session"`
	Streaming     StreamingConfig     `mapstructure:"streaming"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DebateConfig holds the debate loop's policy knobs.
type DebateConfig struct {
	MaxRounds             int     `mapstructure:"max_rounds"`
	ConvergenceThreshold  float64 `mapstructure:"convergence_threshold"`
	StrictImprovement     bool    `mapstructure:"strict_improvement"`
	StrategistTemperature float64 `mapstructure:"strategist_temperature"`
	CriticTemperature     float64 `mapstructure:"critic_temperature"`
	TutoringEnabled       bool    `mapstructure:"tutoring_enabled"`
}

// RetrievalConfig holds the retrieval stage knobs.
type RetrievalConfig struct {
	TopK           int     `mapstructure:"top_k"`
	QualityFloor   float64 `mapstructure:"quality_floor"`
	MaxSpeculative int     `mapstructure:"max_speculative"`
}

// RetryConfig holds the agent executor's retry knobs.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
}

// ServicesConfig points at the external collaborators.
type ServicesConfig struct {
	LLMBaseURL       string `mapstructure:"llm_base_url"`
	EmbeddingBaseURL string `mapstructure:"embedding_base_url"`
	VectorHost       string `mapstructure:"vector_host"`
	VectorPort       int    `mapstructure:"vector_port"`
	VectorCollection string `mapstructure:"vector_collection"`
	RedisAddr        string `mapstructure:"redis_addr"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	TemporalHostPort string `mapstructure:"temporal_host_port"`
	HTTPPort         int    `mapstructure:"http_port"`
}

// SessionConfig holds session store knobs.
type SessionConfig struct {
	TTLHours   int `mapstructure:"ttl_hours"`
	MaxHistory int `mapstructure:"max_history"`
}

// StreamingConfig holds the event stream knobs.
type StreamingConfig struct {
	RingCapacity     int `mapstructure:"ring_capacity"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// ObservabilityConfig holds metrics/logging/tracing knobs.
type ObservabilityConfig struct {
	MetricsPort  int    `mapstructure:"metrics_port"`
	LogLevel     string `mapstructure:"log_level"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Defaults returns the built-in configuration, used when no file is present.
func Defaults() *Features {
	f := &Features{}
	f.Debate.MaxRounds = 3
	f.Debate.ConvergenceThreshold = 0.7
	f.Debate.StrictImprovement = true
	f.Debate.StrategistTemperature = 0.8
	f.Debate.CriticTemperature = 0.1
	f.Debate.TutoringEnabled = true
	f.Retrieval.TopK = 5
	f.Retrieval.QualityFloor = 0.4
	f.Retrieval.MaxSpeculative = 2
	f.Retry.MaxAttempts = 3
	f.Retry.BaseDelayMs = 1000
	f.Services.LLMBaseURL = "http://llm-service:8000"
	f.Services.EmbeddingBaseURL = "http://llm-service:8000"
	f.Services.VectorHost = "qdrant"
	f.Services.VectorPort = 6333
	f.Services.VectorCollection = "course_chunks"
	f.Services.RedisAddr = "redis:6379"
	f.Services.TemporalHostPort = "temporal:7233"
	f.Services.HTTPPort = 8081
	f.Session.TTLHours = 24
	f.Session.MaxHistory = 50
	f.Streaming.RingCapacity = 256
	f.Streaming.SubscriberBuffer = 64
	f.Observability.MetricsPort = 2112
	f.Observability.LogLevel = "info"
	return f
}

// Load reads features.yaml from CONFIG_PATH (default
// config/features.yaml), merges it over the defaults, then applies env
// overrides. A missing file is not an error; defaults plus env apply.
func Load() (*Features, error) {
	f := Defaults()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/features.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(f)
	return f, nil
}

// ConfigFilePath returns the resolved features.yaml path for the watcher.
func ConfigFilePath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/features.yaml"
}

func applyEnvOverrides(f *Features) {
	if v, ok := envInt("DEBATE_MAX_ROUNDS"); ok && v >= 0 {
		f.Debate.MaxRounds = v
	}
	if v, ok := envFloat("CONVERGENCE_THRESHOLD"); ok && v > 0 {
		f.Debate.ConvergenceThreshold = v
	}
	if v, ok := envInt("RETRIEVAL_TOP_K"); ok && v > 0 {
		f.Retrieval.TopK = v
	}
	if v, ok := envFloat("RETRIEVAL_QUALITY_FLOOR"); ok && v > 0 {
		f.Retrieval.QualityFloor = v
	}
	if v, ok := envInt("RETRY_MAX_ATTEMPTS"); ok && v > 0 {
		f.Retry.MaxAttempts = v
	}
	if v, ok := envInt("RETRY_BASE_DELAY_MS"); ok && v > 0 {
		f.Retry.BaseDelayMs = v
	}
	if v := os.Getenv("LLM_SERVICE_URL"); v != "" {
		f.Services.LLMBaseURL = v
		f.Services.EmbeddingBaseURL = v
	}
	if v := os.Getenv("VECTOR_HOST"); v != "" {
		f.Services.VectorHost = v
	}
	if v, ok := envInt("VECTOR_PORT"); ok && v > 0 {
		f.Services.VectorPort = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		f.Services.RedisAddr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		f.Services.PostgresDSN = v
	}
	if v := os.Getenv("TEMPORAL_HOST_PORT"); v != "" {
		f.Services.TemporalHostPort = v
	}
	if v, ok := envInt("HTTP_PORT"); ok && v > 0 {
		f.Services.HTTPPort = v
	}
	if v, ok := envInt("STREAMING_RING_CAPACITY"); ok && v > 0 {
		f.Streaming.RingCapacity = v
	}
	if v, ok := envInt("METRICS_PORT"); ok && v > 0 {
		f.Observability.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		f.Observability.LogLevel = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		f.Observability.OTLPEndpoint = v
	}
}

// BaseDelay returns the retry base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
