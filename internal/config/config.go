// Package config loads pipeline configuration from environment variables,
// an optional .env file, and a YAML config file, in that priority order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for a single pipeline run.
type Config struct {
	Database    Database    `mapstructure:"database"`
	OpenAI      OpenAI      `mapstructure:"openai"`
	Gemini      Gemini      `mapstructure:"gemini"`
	ObjectStore ObjectStore `mapstructure:"object_store"`
	Pipeline    Pipeline    `mapstructure:"pipeline"`
}

// Database holds the relational store connection.
type Database struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

// OpenAI holds embedding-provider configuration (C2).
type OpenAI struct {
	APIKey         string `mapstructure:"api_key"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Dimensions     int    `mapstructure:"dimensions"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// Gemini holds LLM judgement (C3) and review (C4) provider configuration.
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// ObjectStore holds figure-upload destination configuration (C8).
type ObjectStore struct {
	Bucket    string `mapstructure:"bucket"`
	CDNDomain string `mapstructure:"cdn_domain"`
	Region    string `mapstructure:"region"`
}

// Pipeline holds the thresholds, concurrency bounds, and timing constants
// shared across L1-Post-L3. These mirror the fixed constants in the
// reference implementation's batch config module.
type Pipeline struct {
	L2Threshold             float64       `mapstructure:"l2_threshold"`
	AnchorCount             int           `mapstructure:"anchor_count"`
	ImportanceWeightMax     float64       `mapstructure:"importance_weight_max_score"`
	ImportanceWeightHits    float64       `mapstructure:"importance_weight_hit_count"`
	ImportanceWeightQueries float64       `mapstructure:"importance_weight_matched_queries"`
	L3Concurrency           int           `mapstructure:"l3_concurrency"`
	L3RequestInterval       time.Duration `mapstructure:"l3_request_interval"`
	L3MaxRetries            int           `mapstructure:"l3_max_retries"`
	PostL3Concurrency       int           `mapstructure:"post_l3_concurrency"`
	PostL3MaxRetries        int           `mapstructure:"post_l3_max_retries"`
	BackoffBase             time.Duration `mapstructure:"backoff_base"`
	BackoffMax              time.Duration `mapstructure:"backoff_max"`
	FigureMinWidth          int           `mapstructure:"figure_min_width"`
	FigureMinHeight         int           `mapstructure:"figure_min_height"`
	ArxivRateLimit          time.Duration `mapstructure:"arxiv_rate_limit"`
	ArxivMaxRetries         int           `mapstructure:"arxiv_max_retries"`
	ArxivTimeout            time.Duration `mapstructure:"arxiv_timeout"`
}

var globalConfig *Config

// Load reads configuration from (in increasing priority) defaults, an
// optional YAML file, a local .env file, and the process environment.
// A missing .env or config file is not an error.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".curator")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the process-wide configuration, loading it with defaults if
// it has not been loaded yet.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("openai.dimensions", 1536)
	viper.SetDefault("openai.batch_size", 2048)

	viper.SetDefault("gemini.model", "gemini-2.5-flash")

	viper.SetDefault("object_store.region", "ap-northeast-1")

	viper.SetDefault("pipeline.l2_threshold", 0.40)
	viper.SetDefault("pipeline.anchor_count", 6)
	viper.SetDefault("pipeline.importance_weight_max_score", 0.6)
	viper.SetDefault("pipeline.importance_weight_hit_count", 0.3)
	viper.SetDefault("pipeline.importance_weight_matched_queries", 0.1)
	viper.SetDefault("pipeline.l3_concurrency", 5)
	viper.SetDefault("pipeline.l3_request_interval", "200ms")
	viper.SetDefault("pipeline.l3_max_retries", 3)
	viper.SetDefault("pipeline.post_l3_concurrency", 3)
	viper.SetDefault("pipeline.post_l3_max_retries", 3)
	viper.SetDefault("pipeline.backoff_base", "1s")
	viper.SetDefault("pipeline.backoff_max", "32s")
	viper.SetDefault("pipeline.figure_min_width", 100)
	viper.SetDefault("pipeline.figure_min_height", 100)
	viper.SetDefault("pipeline.arxiv_rate_limit", "3s")
	viper.SetDefault("pipeline.arxiv_max_retries", 3)
	viper.SetDefault("pipeline.arxiv_timeout", "30s")
}

// bindEnvironmentVariables binds each config key to the first non-empty
// environment variable among its candidates. Secret-ARN variables are
// accepted as a fallback name but are not themselves resolved against a
// secrets manager; that resolution is out of scope here.
func bindEnvironmentVariables() {
	bindEnvKeys("database.url", "DATABASE_URL", "DB_SECRET_ARN")
	bindEnvKeys("openai.api_key", "OPENAI_API_KEY", "OPENAI_SECRET_ARN")
	bindEnvKeys("gemini.api_key", "GEMINI_API_KEY", "GEMINI_SECRET_ARN")
	bindEnvKeys("object_store.bucket", "FIGURE_BUCKET")
	bindEnvKeys("object_store.cdn_domain", "CDN_DOMAIN")
}

func bindEnvKeys(viperKey string, envKeys ...string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func validateConfig(cfg *Config) error {
	var errs []string

	if cfg.Database.URL == "" {
		errs = append(errs, "database URL is required: set DATABASE_URL")
	}
	if cfg.OpenAI.APIKey == "" {
		errs = append(errs, "OpenAI API key is required: set OPENAI_API_KEY")
	}
	if cfg.Gemini.APIKey == "" {
		errs = append(errs, "Gemini API key is required: set GEMINI_API_KEY")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Reset clears the process-wide configuration singleton. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}
