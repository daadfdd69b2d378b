package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName     = "phoneai-client"
	defaultFileName = serviceName + ".log"
	defaultMaxSize  = 100
)

// Config represents a config.
type Config struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string     `mapstructure:"format" yaml:"format"`
	Stdout bool       `mapstructure:"stdout" yaml:"stdout"`
	File   FileConfig `mapstructure:"file" yaml:"file"`
}

// FileConfig configures the rotating log file.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	Name       string `mapstructure:"name" yaml:"name"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// New builds a logger writing to stdout and, when enabled, a rotating file.
// With no sink enabled it falls back to stderr.
func New(cfg Config) (*zap.Logger, error) {
	var writers []zapcore.WriteSyncer
	if cfg.Stdout {
		writers = append(writers, zapcore.Lock(os.Stdout))
	}
	if cfg.File.Enabled {
		file, err := newFileWriter(cfg.File)
		if err != nil {
			return nil, err
		}
		writers = append(writers, zapcore.AddSync(file))
	}
	if len(writers) == 0 {
		writers = append(writers, zapcore.Lock(os.Stderr))
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.NewMultiWriteSyncer(writers...), parseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", serviceName))), nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func newFileWriter(fileCfg FileConfig) (*lumberjack.Logger, error) {
	dir := strings.TrimSpace(fileCfg.Path)
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	name := strings.TrimSpace(fileCfg.Name)
	if name == "" {
		name = defaultFileName
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    positiveOr(fileCfg.MaxSizeMB, defaultMaxSize),
		MaxBackups: max(fileCfg.MaxBackups, 0),
		MaxAge:     max(fileCfg.MaxAgeDays, 0),
		Compress:   fileCfg.Compress,
		LocalTime:  true,
	}, nil
}

// parseLevel accepts zap level names plus "warning". Unknown values mean info.
func parseLevel(raw string) zapcore.Level {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "warning" {
		raw = "warn"
	}
	level, err := zapcore.ParseLevel(raw)
	if err != nil || raw == "" {
		return zapcore.InfoLevel
	}
	return level
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
