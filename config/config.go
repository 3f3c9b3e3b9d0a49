package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration derived from a config file plus
// environment overrides. Components receive it (or a sub-struct) at
// construction time; nothing reads the environment after Load returns.
type Config struct {
	HTTPPort      string
	DBPath        string
	APIToken      string
	JobQueueSize  int
	WorkerCount   int
	JobTimeoutSec int
	StrictConfig  bool
	ConfigPath    string
	LLM           LLMConfig
	Fusion        FusionConfig
	Insights      InsightsConfig
	Prompts       PromptConfig
}

// LLMConfig captures generative-AI service settings shared by the fusion,
// media, and insights adapters.
type LLMConfig struct {
	Enabled       bool
	Model         string
	VisionModel   string
	BaseURL       string
	APIKey        string
	TimeoutSec    int
	PromptVersion string
}

// FusionConfig captures report clustering and synthesis settings.
type FusionConfig struct {
	DefaultRadiusMeters  float64
	DefaultTimeWindowSec int
	MaxReports           int
	GroupRadiusMeters    float64
}

// InsightsConfig bounds the prediction and sentiment queries.
type InsightsConfig struct {
	PredictionWindowSec int
	SentimentWindowSec  int
	MaxReports          int
	MaxEvents           int
	MaxSentimentTexts   int
}

type fileConfig struct {
	HTTPPort string             `json:"http_port" yaml:"http_port"`
	DBPath   string             `json:"db_path" yaml:"db_path"`
	LLM      llmFileConfig      `json:"llm" yaml:"llm"`
	Fusion   fusionFileConfig   `json:"fusion" yaml:"fusion"`
	Insights insightsFileConfig `json:"insights" yaml:"insights"`
	Prompts  PromptConfig       `json:"prompts" yaml:"prompts"`
}

type llmFileConfig struct {
	Enabled       *bool  `json:"enabled" yaml:"enabled"`
	Model         string `json:"model" yaml:"model"`
	VisionModel   string `json:"vision_model" yaml:"vision_model"`
	BaseURL       string `json:"base_url" yaml:"base_url"`
	TimeoutSec    *int   `json:"timeout_sec" yaml:"timeout_sec"`
	PromptVersion string `json:"prompt_version" yaml:"prompt_version"`
}

type fusionFileConfig struct {
	DefaultRadiusMeters  *float64 `json:"default_radius_meters" yaml:"default_radius_meters"`
	DefaultTimeWindowSec *int     `json:"default_time_window_sec" yaml:"default_time_window_sec"`
	MaxReports           *int     `json:"max_reports" yaml:"max_reports"`
	GroupRadiusMeters    *float64 `json:"group_radius_meters" yaml:"group_radius_meters"`
}

type insightsFileConfig struct {
	PredictionWindowSec *int `json:"prediction_window_sec" yaml:"prediction_window_sec"`
	SentimentWindowSec  *int `json:"sentiment_window_sec" yaml:"sentiment_window_sec"`
	MaxReports          *int `json:"max_reports" yaml:"max_reports"`
	MaxEvents           *int `json:"max_events" yaml:"max_events"`
	MaxSentimentTexts   *int `json:"max_sentiment_texts" yaml:"max_sentiment_texts"`
}

const (
	defaultPort          = ":8000"
	defaultDBFile        = "nextsignal.db"
	minQueueSize         = 1
	defaultQueueSize     = 100
	maxQueueSize         = 1024
	defaultWorkerCount   = 4
	defaultJobTimeoutSec = 120
)

func defaultLLMConfig() LLMConfig {
	return LLMConfig{
		Enabled:       true,
		Model:         "gpt-4o-mini",
		VisionModel:   "gpt-4o-mini",
		BaseURL:       "https://api.openai.com",
		TimeoutSec:    30,
		PromptVersion: "v1",
	}
}

func defaultFusionConfig() FusionConfig {
	return FusionConfig{
		DefaultRadiusMeters:  1000,
		DefaultTimeWindowSec: 3600,
		MaxReports:           100,
		GroupRadiusMeters:    200,
	}
}

func defaultInsightsConfig() InsightsConfig {
	return InsightsConfig{
		PredictionWindowSec: 7 * 24 * 3600,
		SentimentWindowSec:  24 * 3600,
		MaxReports:          500,
		MaxEvents:           200,
		MaxSentimentTexts:   200,
	}
}

// Load reads configuration from the config file and environment variables,
// applying sane defaults for everything left unset.
func Load() (Config, error) {
	cfg := Config{
		JobQueueSize:  defaultQueueSize,
		WorkerCount:   defaultWorkerCount,
		JobTimeoutSec: defaultJobTimeoutSec,
		APIToken:      strings.TrimSpace(os.Getenv("API_TOKEN")),
		StrictConfig:  parseBoolEnv("STRICT_CONFIG"),
		LLM:           defaultLLMConfig(),
		Fusion:        defaultFusionConfig(),
		Insights:      defaultInsightsConfig(),
		Prompts:       DefaultPromptConfig(),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	cfg.ConfigPath = configPath

	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.LLM = applyLLMOverrides(cfg.LLM, fileCfg.LLM)
	cfg.Fusion = applyFusionOverrides(cfg.Fusion, fileCfg.Fusion)
	cfg.Insights = applyInsightsOverrides(cfg.Insights, fileCfg.Insights)
	cfg.Prompts = MergePromptConfig(cfg.Prompts, fileCfg.Prompts)

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}
	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, defaultDBFile)

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}
	if v := os.Getenv("JOB_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid JOB_QUEUE_SIZE=%q, using default %d", v, defaultQueueSize)
			n = defaultQueueSize
		}
		if n < minQueueSize {
			n = minQueueSize
		}
		if n > maxQueueSize {
			n = maxQueueSize
		}
		cfg.JobQueueSize = n
	}
	if cfg.JobQueueSize < cfg.WorkerCount {
		cfg.JobQueueSize = max(defaultQueueSize, cfg.WorkerCount)
	}
	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC=%q", v)
		}
		cfg.JobTimeoutSec = n
	}

	if v := strings.TrimSpace(os.Getenv("LLM_ENABLED")); v != "" {
		cfg.LLM.Enabled = parseBoolEnv("LLM_ENABLED")
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_VISION_MODEL")); v != "" {
		cfg.LLM.VisionModel = v
	}
	cfg.LLM.BaseURL = firstNonEmpty(
		os.Getenv("LLM_BASE_URL"),
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENAI_API_BASE"),
		cfg.LLM.BaseURL,
	)
	cfg.LLM.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if v, ok, err := parseIntEnv("LLM_TIMEOUT_SEC"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid LLM_TIMEOUT_SEC: %w", err)
		}
		log.Printf("invalid LLM_TIMEOUT_SEC: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.LLM.TimeoutSec = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_PROMPT_VERSION")); v != "" {
		cfg.LLM.PromptVersion = v
	}

	if v, ok, err := parseFloatEnv("FUSION_RADIUS_METERS"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid FUSION_RADIUS_METERS: %w", err)
		}
		log.Printf("invalid FUSION_RADIUS_METERS: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Fusion.DefaultRadiusMeters = v
	}
	if v, ok, err := parseIntEnv("FUSION_TIME_WINDOW_SEC"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid FUSION_TIME_WINDOW_SEC: %w", err)
		}
		log.Printf("invalid FUSION_TIME_WINDOW_SEC: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Fusion.DefaultTimeWindowSec = v
	}
	if v, ok, err := parseIntEnv("FUSION_MAX_REPORTS"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid FUSION_MAX_REPORTS: %w", err)
		}
		log.Printf("invalid FUSION_MAX_REPORTS: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Fusion.MaxReports = v
	}
	if v, ok, err := parseFloatEnv("FUSION_GROUP_RADIUS_METERS"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid FUSION_GROUP_RADIUS_METERS: %w", err)
		}
		log.Printf("invalid FUSION_GROUP_RADIUS_METERS: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Fusion.GroupRadiusMeters = v
	}

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	return cfg, err
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH is required")
	}
	if cfg.Fusion.DefaultRadiusMeters <= 0 {
		return errors.New("fusion default radius must be positive")
	}
	if cfg.Fusion.DefaultTimeWindowSec <= 0 {
		return errors.New("fusion time window must be positive")
	}
	if cfg.Fusion.MaxReports <= 0 {
		return errors.New("fusion max reports must be positive")
	}
	if cfg.Fusion.GroupRadiusMeters <= 0 {
		return errors.New("fusion group radius must be positive")
	}
	if cfg.LLM.Enabled && strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		return errors.New("llm base url is required when llm is enabled")
	}
	if cfg.LLM.TimeoutSec <= 0 {
		return errors.New("llm timeout must be positive")
	}
	return nil
}

func applyLLMOverrides(base LLMConfig, override llmFileConfig) LLMConfig {
	if override.Enabled != nil {
		base.Enabled = *override.Enabled
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = strings.TrimSpace(override.Model)
	}
	if strings.TrimSpace(override.VisionModel) != "" {
		base.VisionModel = strings.TrimSpace(override.VisionModel)
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if override.TimeoutSec != nil && *override.TimeoutSec > 0 {
		base.TimeoutSec = *override.TimeoutSec
	}
	if strings.TrimSpace(override.PromptVersion) != "" {
		base.PromptVersion = strings.TrimSpace(override.PromptVersion)
	}
	return base
}

func applyFusionOverrides(base FusionConfig, override fusionFileConfig) FusionConfig {
	if override.DefaultRadiusMeters != nil && *override.DefaultRadiusMeters > 0 {
		base.DefaultRadiusMeters = *override.DefaultRadiusMeters
	}
	if override.DefaultTimeWindowSec != nil && *override.DefaultTimeWindowSec > 0 {
		base.DefaultTimeWindowSec = *override.DefaultTimeWindowSec
	}
	if override.MaxReports != nil && *override.MaxReports > 0 {
		base.MaxReports = *override.MaxReports
	}
	if override.GroupRadiusMeters != nil && *override.GroupRadiusMeters > 0 {
		base.GroupRadiusMeters = *override.GroupRadiusMeters
	}
	return base
}

func applyInsightsOverrides(base InsightsConfig, override insightsFileConfig) InsightsConfig {
	if override.PredictionWindowSec != nil && *override.PredictionWindowSec > 0 {
		base.PredictionWindowSec = *override.PredictionWindowSec
	}
	if override.SentimentWindowSec != nil && *override.SentimentWindowSec > 0 {
		base.SentimentWindowSec = *override.SentimentWindowSec
	}
	if override.MaxReports != nil && *override.MaxReports > 0 {
		base.MaxReports = *override.MaxReports
	}
	if override.MaxEvents != nil && *override.MaxEvents > 0 {
		base.MaxEvents = *override.MaxEvents
	}
	if override.MaxSentimentTexts != nil && *override.MaxSentimentTexts > 0 {
		base.MaxSentimentTexts = *override.MaxSentimentTexts
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}

func parseFloatEnv(key string) (float64, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	return val, true, err
}
