package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// envPrefix maps "postgres.host" to FRAGMENTER_POSTGRES_HOST.
const envPrefix = "FRAGMENTER"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load reads the YAML file at configPath, applies FRAGMENTER_* overrides and
// defaults, and validates the result.  An empty path loads from the
// environment alone.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigError, "read config file").WithDetail(configPath)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from defaults and FRAGMENTER_* variables.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigError, "unmarshal configuration")
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watcher reloads a config file on change.  Invalid revisions are reported
// to the error callback and the last good Config stays current.
type Watcher struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
}

// Watch loads configPath and starts watching it.  onChange runs on viper's
// watcher goroutine with each new valid Config; onError, when set, receives
// reload failures.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	if configPath == "" {
		return nil, errors.New(errors.ErrCodeConfigError, "watch requires a config file")
	}
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigError, "read config file").WithDetail(configPath)
	}
	cfg, err := unmarshalAndFinalize(v)
	if err != nil {
		return nil, err
	}
	w := &Watcher{v: v, current: cfg}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(errors.Wrap(err, errors.ErrCodeConfigError, "reload config").WithDetail(e.Name))
			}
			return
		}
		w.mu.Lock()
		w.current = next
		w.mu.Unlock()
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the last valid Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// MustLoad panics when Load fails.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}
