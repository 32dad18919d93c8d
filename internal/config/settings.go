// Package config loads runtime settings and asset manifests.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. BINSTRAP_CACHE_DIR.
const EnvPrefix = "BINSTRAP"

// Settings holds the runtime knobs of a bootstrap run.
type Settings struct {
	CacheDir   string        `mapstructure:"cache_dir"`
	OutputDir  string        `mapstructure:"output_dir"`
	Platform   string        `mapstructure:"platform"`
	Workers    int           `mapstructure:"workers"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	LedgerPath string        `mapstructure:"ledger_path"`
	Manifests  []string      `mapstructure:"manifests"`
	Log        LogSettings   `mapstructure:"log"`
}

// LogSettings configures console verbosity and the optional rotating file.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadSettings reads settings from defaults, the optional file at path and
// BINSTRAP_* environment variables, in increasing priority.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to read settings", err).
				WithModule("config").
				WithOperation("LoadSettings").
				WithField("path", path)
		}
	}

	var s Settings
	hook := mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), mapstructure.StringToSliceHookFunc(","))
	if err := v.Unmarshal(&s, viper.DecodeHook(hook)); err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to decode settings", err).
			WithModule("config").
			WithOperation("LoadSettings")
	}

	if err := s.normalize(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultSettingsPath returns the per-user settings file when it exists.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		p := filepath.Join(dir, "binstrap", name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// DefaultCacheDir is the cache root used when none is configured.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "binstrap")
	}
	return filepath.Join(os.TempDir(), "binstrap")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_dir", DefaultCacheDir())
	v.SetDefault("output_dir", "bin")
	v.SetDefault("platform", "")
	v.SetDefault("workers", 0)
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff", "1s")
	v.SetDefault("timeout", "300s")
	v.SetDefault("user_agent", "")
	v.SetDefault("ledger_path", "")
	v.SetDefault("manifests", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.compress", false)
}

func (s *Settings) normalize() error {
	if strings.TrimSpace(s.CacheDir) == "" {
		s.CacheDir = DefaultCacheDir()
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		s.OutputDir = "bin"
	}

	var err error
	if s.CacheDir, err = filepath.Abs(s.CacheDir); err != nil {
		return errors.Wrap(err, "failed to resolve cache dir")
	}
	if s.OutputDir, err = filepath.Abs(s.OutputDir); err != nil {
		return errors.Wrap(err, "failed to resolve output dir")
	}
	if s.LedgerPath == "" {
		s.LedgerPath = filepath.Join(s.CacheDir, "ledger.db")
	}

	manifests := s.Manifests[:0]
	for _, m := range s.Manifests {
		if m = strings.TrimSpace(m); m != "" {
			manifests = append(manifests, m)
		}
	}
	s.Manifests = manifests
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (s *Settings) Validate() error {
	invalid := func(msg, key string, value interface{}) error {
		return apperrors.ValidationError(apperrors.CodeValidationGeneric, msg, nil).
			WithModule("config").
			WithOperation("Validate").
			WithField(key, value)
	}

	if s.Workers < 0 {
		return invalid("workers must not be negative", "workers", s.Workers)
	}
	if s.MaxRetries < 0 {
		return invalid("max_retries must not be negative", "max_retries", s.MaxRetries)
	}
	if s.Timeout < 0 {
		return invalid("timeout must not be negative", "timeout", s.Timeout.String())
	}
	if s.Backoff < 0 {
		return invalid("backoff must not be negative", "backoff", s.Backoff.String())
	}
	if _, ok := logger.ParseLevel(s.Log.Level); !ok {
		return invalid("unknown log level", "log.level", s.Log.Level)
	}
	return nil
}

// durationDecodeHook accepts Go duration strings as well as plain seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return time.Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed, nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("invalid duration: %s", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case time.Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type: %T", v)
		}
	}
}
