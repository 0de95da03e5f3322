package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"reportweaver/internal/errors"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "REPORTWEAVER"

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("document.path", "")
	v.SetDefault("document.part", "word/document.xml")
	v.SetDefault("document.backup_path", "")
	v.SetDefault("document.paragraph_size_half_points", 22) // 11pt

	v.SetDefault("state_dir", ".reportweaver")
	v.SetDefault("work_dir", "")
	v.SetDefault("parallelism", 1)

	v.SetDefault("anchors.global_fallback", "Conclusion")

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadFromFile reads the pipeline file at path. Relative paths inside it are
// resolved against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "read config %s", path), errors.ErrInvalidConfig),
			"pass --config with a YAML, TOML or JSON pipeline file")
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	cfg.Source = abs
	cfg.ResolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// LoadWithViper unmarshals configuration from a prepared viper instance.
// Paths are left as given.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unmarshal config"), errors.ErrInvalidConfig)
	}
	return &cfg, nil
}
