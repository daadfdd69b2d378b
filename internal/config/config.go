package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/saker-ai/phoneai-client/internal/logger"
)

const (
	configName = "phoneai"
	envPrefix  = "phoneai"
	rootDirEnv = "PHONEAI_ROOT_DIR"

	// legacyEndpointEnv is the variable older deployments set the agent URL with.
	legacyEndpointEnv = "WEBSOCKET_ENDPOINT"
)

// AudioConfig describes the PCM format exchanged with the agent.
type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int `mapstructure:"channels" yaml:"channels"`
}

// RecordingsConfig controls the agent audio recorder.
type RecordingsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// Config represents a config.
type Config struct {
	RootDir     string            `mapstructure:"-" yaml:"-"`
	EndpointURL string            `mapstructure:"endpoint_url" yaml:"endpoint_url"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	HTTPAddr    string            `mapstructure:"http_addr" yaml:"http_addr"`
	Audio       AudioConfig       `mapstructure:"audio" yaml:"audio"`
	Recordings  RecordingsConfig  `mapstructure:"recordings" yaml:"recordings"`
	Log         logger.Config     `mapstructure:"log" yaml:"log"`
}

// Load reads configuration from configPath, or from phoneai.yaml under the
// resolved root dir when configPath is empty. Environment variables prefixed
// with PHONEAI_ override file values.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("endpoint_url", "PHONEAI_ENDPOINT_URL", legacyEndpointEnv); err != nil {
		return Config{}, err
	}

	var rootDir string
	path := strings.TrimSpace(configPath)
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, err
		}
		rootDir = strings.TrimSpace(os.Getenv(rootDirEnv))
		if rootDir == "" {
			rootDir = filepath.Dir(absPath)
			if filepath.Base(rootDir) == "config" {
				rootDir = filepath.Dir(rootDir)
			}
		}
		v.SetConfigFile(absPath)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, err
		}
	} else {
		var err error
		rootDir, err = resolveRootDir()
		if err != nil {
			return Config{}, err
		}
		v.SetConfigName(configName)
		v.AddConfigPath(rootDir)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	derivePaths(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint_url", "ws://localhost:4000/ws")
	v.SetDefault("http_addr", "127.0.0.1:8102")
	v.SetDefault("audio.sample_rate", 24000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("recordings.enabled", false)
	v.SetDefault("recordings.dir", filepath.Join("data", "recordings"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "phoneai-client.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

// Validate checks the values a session cannot start without.
func (c Config) Validate() error {
	endpoint, err := url.Parse(strings.TrimSpace(c.EndpointURL))
	if err != nil {
		return fmt.Errorf("endpoint_url: %w", err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return fmt.Errorf("endpoint_url %q: scheme must be ws or wss", c.EndpointURL)
	}
	if endpoint.Host == "" {
		return fmt.Errorf("endpoint_url %q: missing host", c.EndpointURL)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("audio.channels must be positive, got %d", c.Audio.Channels)
	}
	return nil
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv(rootDirEnv)); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, configName+".yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	cfg.Recordings.Dir = resolvePath(cfg.RootDir, cfg.Recordings.Dir, filepath.Join("data", "recordings"))
	cfg.Log.File.Path = resolvePath(cfg.RootDir, cfg.Log.File.Path, filepath.Join("data", "logs"))
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
