package common

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	LLM     LLMConfig
	Paths   PathsConfig
	Raster  RasterConfig
	Extract ExtractConfig
	Store   StoreConfig
	Server  ServerConfig
	Inbox   InboxConfig
	Log     LogConfig
}

// LLMConfig holds vision-model client configuration
type LLMConfig struct {
	Provider          string // "openai" | "gemini"
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float32
	Timeout           time.Duration // per attempt
	MaxAttempts       int
	RetryDelay        time.Duration // first backoff step, doubled per attempt
	RequestsPerMinute int
}

// PathsConfig holds the static inputs of a session
type PathsConfig struct {
	SchemaSource string // directory of *.json schemas or a single schema file
	FieldMapping string // dotted path -> target column (.json | .yaml)
	TargetSchema string // reference spreadsheet/header list defining column order
	OutputDir    string
}

// RasterConfig holds PDF rasterization configuration
type RasterConfig struct {
	Pdftoppm      string
	DPI           int
	MaxPages      int
	HeicConverter string
	HeicCacheDir  string
}

// ExtractConfig holds extraction behavior flags
type ExtractConfig struct {
	ValidateSchema bool // record SCHEMA_MISMATCH warnings for nonconforming pages
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	DSN         string // postgres://... uses pgx, anything else is a sqlite DSN
	MaxConns    int32
	DialTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// InboxConfig holds the watched drop directory of the daemon
type InboxConfig struct {
	Dir      string // empty disables the watcher
	Debounce time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// LoadConfig reads defaults, an optional config file named by
// FORMEXTRACT_CONFIG, and environment variables (highest precedence).
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("llm_provider", ProviderOpenAI)
	v.SetDefault("llm_model", "") // provider default
	v.SetDefault("llm_temperature", 0.1)
	v.SetDefault("llm_timeout", 180*time.Second)
	v.SetDefault("llm_max_attempts", 3)
	v.SetDefault("llm_retry_delay", time.Second)
	v.SetDefault("llm_requests_per_minute", 30)
	v.SetDefault("schema_source", "./ocr_schema.json")
	v.SetDefault("field_mapping", "./field_mapping.json")
	v.SetDefault("target_schema", "./target_schema.xlsx")
	v.SetDefault("output_dir", ".")
	v.SetDefault("pdftoppm", "pdftoppm")
	v.SetDefault("raster_dpi", 150)
	v.SetDefault("raster_max_pages", 0)
	v.SetDefault("heic_converter", "magick")
	v.SetDefault("heic_cache_dir", "")
	v.SetDefault("validate_schema", false)
	v.SetDefault("db_url", "file::memory:?cache=shared")
	v.SetDefault("db_max_conns", 4)
	v.SetDefault("db_dial_timeout", 3*time.Second)
	v.SetDefault("grpc_addr", ":8080")
	v.SetDefault("inbox_dir", "")
	v.SetDefault("inbox_debounce", 500*time.Millisecond)
	v.SetDefault("log_level", "info")

	binds := map[string][]string{
		"llm_provider":            {"LLM_PROVIDER"},
		"llm_model":               {"LLM_MODEL", "LLM_MODEL_NAME", "OPENAI_MODEL"},
		"llm_api_key":             {"LLM_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
		"llm_base_url":            {"LLM_BASE_URL"},
		"llm_temperature":         {"LLM_TEMPERATURE", "OPENAI_TEMPERATURE"},
		"llm_timeout":             {"LLM_TIMEOUT", "OPENAI_TIMEOUT"},
		"llm_max_attempts":        {"LLM_MAX_ATTEMPTS"},
		"llm_retry_delay":         {"LLM_RETRY_DELAY"},
		"llm_requests_per_minute": {"LLM_REQUESTS_PER_MINUTE"},
		"schema_source":           {"SCHEMA_SOURCE"},
		"field_mapping":           {"FIELD_MAPPING"},
		"target_schema":           {"TARGET_SCHEMA"},
		"output_dir":              {"OUTPUT_DIR"},
		"pdftoppm":                {"PDFTOPPM"},
		"raster_dpi":              {"RASTER_DPI"},
		"raster_max_pages":        {"RASTER_MAX_PAGES"},
		"heic_converter":          {"HEIC_CONVERTER"},
		"heic_cache_dir":          {"HEIC_CACHE_DIR"},
		"validate_schema":         {"VALIDATE_SCHEMA"},
		"db_url":                  {"DB_URL"},
		"db_max_conns":            {"DB_MAX_CONNS"},
		"db_dial_timeout":         {"DB_DIAL_TIMEOUT"},
		"grpc_addr":               {"GRPC_ADDR"},
		"inbox_dir":               {"INBOX_DIR"},
		"inbox_debounce":          {"INBOX_DEBOUNCE"},
		"log_level":               {"LOG_LEVEL"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, ConfigError("bind env "+key, err)
		}
	}

	_ = v.BindEnv("config_file", "FORMEXTRACT_CONFIG")
	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, ConfigError("read config file "+file, err)
		}
	}

	return &Config{
		LLM: LLMConfig{
			Provider:          strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
			Model:             v.GetString("llm_model"),
			APIKey:            v.GetString("llm_api_key"),
			BaseURL:           v.GetString("llm_base_url"),
			Temperature:       float32(v.GetFloat64("llm_temperature")),
			Timeout:           v.GetDuration("llm_timeout"),
			MaxAttempts:       v.GetInt("llm_max_attempts"),
			RetryDelay:        v.GetDuration("llm_retry_delay"),
			RequestsPerMinute: v.GetInt("llm_requests_per_minute"),
		},
		Paths: PathsConfig{
			SchemaSource: v.GetString("schema_source"),
			FieldMapping: v.GetString("field_mapping"),
			TargetSchema: v.GetString("target_schema"),
			OutputDir:    v.GetString("output_dir"),
		},
		Raster: RasterConfig{
			Pdftoppm:      v.GetString("pdftoppm"),
			DPI:           v.GetInt("raster_dpi"),
			MaxPages:      v.GetInt("raster_max_pages"),
			HeicConverter: v.GetString("heic_converter"),
			HeicCacheDir:  v.GetString("heic_cache_dir"),
		},
		Extract: ExtractConfig{
			ValidateSchema: v.GetBool("validate_schema"),
		},
		Store: StoreConfig{
			DSN:         v.GetString("db_url"),
			MaxConns:    v.GetInt32("db_max_conns"),
			DialTimeout: v.GetDuration("db_dial_timeout"),
		},
		Server: ServerConfig{
			GRPCAddr: v.GetString("grpc_addr"),
		},
		Inbox: InboxConfig{
			Dir:      strings.TrimSpace(v.GetString("inbox_dir")),
			Debounce: v.GetDuration("inbox_debounce"),
		},
		Log: LogConfig{
			Level: v.GetString("log_level"),
		},
	}, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	validator := NewValidator().
		Field("LLM_PROVIDER", c.LLM.Provider, Required, OneOf(ProviderOpenAI, ProviderGemini)).
		Field("LLM_API_KEY", c.LLM.APIKey, Required).
		Field("SCHEMA_SOURCE", c.Paths.SchemaSource, Required).
		Field("FIELD_MAPPING", c.Paths.FieldMapping, Required).
		Field("TARGET_SCHEMA", c.Paths.TargetSchema, Required).
		Field("LLM_MAX_ATTEMPTS", c.LLM.MaxAttempts, Positive).
		Field("RASTER_DPI", c.Raster.DPI, Positive)
	if validator.HasErrors() {
		return ConfigError("invalid configuration", validator.Error())
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
