package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "landmarks", cfg.Classifier.ModelAsset)
	assert.Equal(t, 2, cfg.Classifier.NumThreads)
	assert.Equal(t, 3, cfg.Classifier.MaxResults)
	assert.InDelta(t, 0.4, cfg.Classifier.ScoreThreshold, 1e-6)
	assert.Equal(t, BackendONNX, cfg.Engine.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty asset", func(c *Config) { c.Classifier.ModelAsset = "" }},
		{"zero threads", func(c *Config) { c.Classifier.NumThreads = 0 }},
		{"negative max results", func(c *Config) { c.Classifier.MaxResults = -1 }},
		{"threshold above one", func(c *Config) { c.Classifier.ScoreThreshold = 1.5 }},
		{"unknown backend", func(c *Config) { c.Engine.Backend = "tflite" }},
		{"ollama without url", func(c *Config) {
			c.Engine.Backend = BackendOllama
			c.Engine.URL = ""
		}},
		{"llamacpp without model", func(c *Config) {
			c.Engine.Backend = BackendLlamaCpp
			c.Engine.Model = ""
		}},
		{"bad quality", func(c *Config) { c.Engine.SendQuality = 0 }},
		{"bad upload limit", func(c *Config) { c.Server.MaxUploadMB = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Classifier.MaxResults = 1
	cfg.Classifier.ScoreThreshold = 0.7
	cfg.Engine.Backend = BackendOllama
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Classifier.MaxResults)
	assert.InDelta(t, 0.7, loaded.Classifier.ScoreThreshold, 1e-6)
	assert.Equal(t, BackendOllama, loaded.Engine.Backend)
	assert.Equal(t, cfg.Server.Addr, loaded.Server.Addr)
}

func TestLoadWithViper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"classifier": {"max_results": 1, "score_threshold": 0.7}, "engine": {"backend": "ollama"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Classifier.MaxResults)
	assert.InDelta(t, 0.7, cfg.Classifier.ScoreThreshold, 1e-6)
	assert.Equal(t, BackendOllama, cfg.Engine.Backend)
	assert.Equal(t, 2, cfg.Classifier.NumThreads, "unset keys keep defaults")
	assert.Equal(t, "landmarks", cfg.Classifier.ModelAsset)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LANDMARK_CLASSIFIER_NUM_THREADS", "4")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Classifier.NumThreads)
}

func TestLoadUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := Load(viper.New(), path)
	assert.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.json", filepath.Base(GetConfigPath()))
	assert.Contains(t, GetConfigPath(), "landmark-classifier")
}
