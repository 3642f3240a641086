package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SMMBOT_"
	// EnvConfigPath names the YAML file to load.
	EnvConfigPath = EnvPrefix + "CONFIG"
	// DefaultPath is used when EnvConfigPath is unset and the file exists.
	DefaultPath = "config/smmbot.yaml"

	filePermission = 0o644
	dirPermission  = 0o755
)

//go:embed default.yaml
var defaultYAML []byte

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) named by SMMBOT_CONFIG, else config/smmbot.yaml if present
//  3. env (prefix SMMBOT_)
func Load(ctx context.Context) (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	return LoadFile(ctx, path)
}

// LoadFile is Load with an explicit file path; an empty path skips the file layer.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", path, ErrLoadConfig, err)
		}
	}

	// SMMBOT_SAFETY__MAX_ACTIONS_PER_HOUR -> safety.max_actions_per_hour
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("env: %w: %w", ErrLoadConfig, err)
	}
	// The path to the file itself is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal: %w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the file at path whenever it changes and hands the result to
// onChange. A failed reload passes a nil Config and the error. Watching stops
// when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config, error)) error {
	provider := file.Provider(path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			onChange(nil, fmt.Errorf("watch %s: %w", path, err))
			return
		}
		onChange(LoadFile(ctx, path))
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	go func() {
		<-ctx.Done()
		_ = provider.Unwatch()
	}()
	return nil
}

// WriteDefault writes the default configuration to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, defaultYAML, filePermission); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
