package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Classifier ClassifierConfig `mapstructure:"classifier" json:"classifier"`
	Engine     EngineConfig     `mapstructure:"engine" json:"engine"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
}

// ClassifierConfig holds the inference options bound at model load
type ClassifierConfig struct {
	ModelAsset        string  `mapstructure:"model_asset" json:"model_asset"`
	AssetDir          string  `mapstructure:"asset_dir" json:"asset_dir"`
	SharedLibraryPath string  `mapstructure:"shared_library_path" json:"shared_library_path"`
	NumThreads        int     `mapstructure:"num_threads" json:"num_threads"`
	MaxResults        int     `mapstructure:"max_results" json:"max_results"`
	ScoreThreshold    float32 `mapstructure:"score_threshold" json:"score_threshold"`
}

// EngineConfig selects the inference backend
type EngineConfig struct {
	Backend     string `mapstructure:"backend" json:"backend"`
	URL         string `mapstructure:"url" json:"url"`
	Model       string `mapstructure:"model" json:"model"`
	SendFormat  string `mapstructure:"send_format" json:"send_format"`
	SendSize    int    `mapstructure:"send_size" json:"send_size"`
	SendQuality int    `mapstructure:"send_quality" json:"send_quality"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" json:"addr"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb" json:"max_upload_mb"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
	File   string `mapstructure:"file" json:"file"`
}

// Backend names accepted in engine.backend
const (
	BackendONNX     = "onnx"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			ModelAsset:     "landmarks",
			AssetDir:       "models",
			NumThreads:     2,
			MaxResults:     3,
			ScoreThreshold: 0.4,
		},
		Engine: EngineConfig{
			Backend:     BackendONNX,
			URL:         "http://localhost:11434",
			Model:       "openbmb/minicpm-v4.5",
			SendFormat:  "jpg",
			SendSize:    1536,
			SendQuality: 85,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadMB:    10,
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults registers every default value with v so that environment
// variables and flags can override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("classifier.model_asset", d.Classifier.ModelAsset)
	v.SetDefault("classifier.asset_dir", d.Classifier.AssetDir)
	v.SetDefault("classifier.shared_library_path", d.Classifier.SharedLibraryPath)
	v.SetDefault("classifier.num_threads", d.Classifier.NumThreads)
	v.SetDefault("classifier.max_results", d.Classifier.MaxResults)
	v.SetDefault("classifier.score_threshold", d.Classifier.ScoreThreshold)
	v.SetDefault("engine.backend", d.Engine.Backend)
	v.SetDefault("engine.url", d.Engine.URL)
	v.SetDefault("engine.model", d.Engine.Model)
	v.SetDefault("engine.send_format", d.Engine.SendFormat)
	v.SetDefault("engine.send_size", d.Engine.SendSize)
	v.SetDefault("engine.send_quality", d.Engine.SendQuality)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// Load reads the config file named by path (or the default search path when
// empty) plus LANDMARK_* environment variables into v and returns the result.
// A missing config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(filepath.Dir(GetConfigPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LANDMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Classifier.ModelAsset == "" {
		return fmt.Errorf("classifier.model_asset cannot be empty")
	}

	if c.Classifier.NumThreads < 1 {
		return fmt.Errorf("classifier.num_threads must be positive")
	}

	if c.Classifier.MaxResults < 0 {
		return fmt.Errorf("classifier.max_results cannot be negative")
	}

	if c.Classifier.ScoreThreshold < 0 || c.Classifier.ScoreThreshold > 1 {
		return fmt.Errorf("classifier.score_threshold must be between 0 and 1")
	}

	switch c.Engine.Backend {
	case BackendONNX:
	case BackendOllama, BackendLlamaCpp:
		if c.Engine.URL == "" {
			return fmt.Errorf("engine.url is required for the %s backend", c.Engine.Backend)
		}
		if c.Engine.Model == "" {
			return fmt.Errorf("engine.model is required for the %s backend", c.Engine.Backend)
		}
	default:
		return fmt.Errorf("engine.backend must be one of onnx, ollama, llamacpp")
	}

	if c.Engine.SendQuality < 1 || c.Engine.SendQuality > 100 {
		return fmt.Errorf("engine.send_quality must be between 1 and 100")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "landmark-classifier", "config.json")
}
