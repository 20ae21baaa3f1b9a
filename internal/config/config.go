package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "EXAM_APP"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LLMConfig selects the text generation collaborator. Provider is "gemini" or
// "openai"; an empty API key leaves the collaborator unavailable.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type EmbeddingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Provider       string `mapstructure:"provider"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type GenerationConfig struct {
	MaxContentLength int           `mapstructure:"max_content_length"`
	MinContentLength int           `mapstructure:"min_content_length"`
	Temperature      float32       `mapstructure:"temperature"`
	TemperatureStep  float32       `mapstructure:"temperature_step"`
	MaxOutputTokens  int           `mapstructure:"max_output_tokens"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Backoff          time.Duration `mapstructure:"backoff"`
	MaxImages        int           `mapstructure:"max_images"`
	MinPromptLength  int           `mapstructure:"min_prompt_length"`
	MinResponseChars int           `mapstructure:"min_response_chars"`
	MaxCount         int           `mapstructure:"max_count"`
}

type EvaluationConfig struct {
	MinAnswerChars         int     `mapstructure:"min_answer_chars"`
	KeyPointThreshold      float64 `mapstructure:"key_point_threshold"`
	OverallWeight          float64 `mapstructure:"overall_weight"`
	KeyPointWeight         float64 `mapstructure:"key_point_weight"`
	EmbeddingCacheCapacity int     `mapstructure:"embedding_cache_capacity"`
}

// CacheConfig configures the persistent result cache. Backend is "file" or "redis".
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type StorageConfig struct {
	AssessmentPath string `mapstructure:"assessment_path"`
	HistoryPath    string `mapstructure:"history_path"`
	CurriculumPath string `mapstructure:"curriculum_path"`
}

type RateLimitConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	DailyQuota  int           `mapstructure:"daily_quota"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout_seconds", 60)

	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.timeout_seconds", 30)

	v.SetDefault("generation.max_content_length", 3000)
	v.SetDefault("generation.min_content_length", 50)
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("generation.temperature_step", 0.1)
	v.SetDefault("generation.max_output_tokens", 2048)
	v.SetDefault("generation.max_attempts", 2)
	v.SetDefault("generation.backoff", "2s")
	v.SetDefault("generation.max_images", 3)
	v.SetDefault("generation.min_prompt_length", 10)
	v.SetDefault("generation.min_response_chars", 20)
	v.SetDefault("generation.max_count", 20)

	v.SetDefault("evaluation.min_answer_chars", 10)
	v.SetDefault("evaluation.key_point_threshold", 0.6)
	v.SetDefault("evaluation.overall_weight", 0.4)
	v.SetDefault("evaluation.key_point_weight", 0.6)
	v.SetDefault("evaluation.embedding_cache_capacity", 512)

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.path", "data/question_cache.json")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("storage.assessment_path", "data/shared_questions.json")
	v.SetDefault("storage.history_path", "data/student_history.json")
	v.SetDefault("storage.curriculum_path", "")

	v.SetDefault("rate_limit.min_interval", "3s")
	v.SetDefault("rate_limit.daily_quota", 50)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "exam-prep-assessment")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
}

// New builds a viper instance with defaults, the config file search path and the
// EXAM_APP_ environment layer. A missing config file is not an error.
func New(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Generation.MaxAttempts < 1 {
		cfg.Generation.MaxAttempts = 1
	}
	if cfg.Evaluation.EmbeddingCacheCapacity < 1 {
		cfg.Evaluation.EmbeddingCacheCapacity = 1
	}
	return &cfg, nil
}

// Watch reloads the config on file changes and hands the fresh copy to onChange.
func Watch(v *viper.Viper, onChange func(*Config, fsnotify.Event)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			return
		}
		onChange(cfg, e)
	})
	v.WatchConfig()
}
