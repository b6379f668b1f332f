// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package config loads backyardbot.yaml and overlays command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/backyardbot/backyardbot/internal/logging"
	"github.com/backyardbot/backyardbot/internal/xdg"
)

// Actuator kinds.
const (
	KindGPIO = "gpio"
	KindMQTT = "mqtt"
)

// DatabaseURLEnv is read when database.url is not configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the whole backend configuration.
type Config struct {
	Server       ServerConfig                 `koanf:"server"`
	Metrics      MetricsConfig                `koanf:"metrics"`
	Log          LogConfig                    `koanf:"log"`
	Database     DatabaseConfig               `koanf:"database"`
	Plugins      PluginsConfig                `koanf:"plugins"`
	General      GeneralConfig                `koanf:"general"`
	Localization map[string]map[string]string `koanf:"localization"`
	Actuators    []ActuatorConfig             `koanf:"actuators"`
	MQTT         MQTTConfig                   `koanf:"mqtt"`
	TimeControl  TimeControlConfig            `koanf:"timecontrol"`
}

// ServerConfig configures the socket and HTTP API listener.
type ServerConfig struct {
	Listen         string   `koanf:"listen"`
	WSPath         string   `koanf:"ws_path"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// MetricsConfig configures the observability listener. Empty disables it.
type MetricsConfig struct {
	Listen string `koanf:"listen"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig selects the timetable store. An empty URL keeps the
// timetable in memory.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// PluginsConfig locates manifests and selects plugins by glob.
type PluginsConfig struct {
	Dir     string   `koanf:"dir"`
	Enabled []string `koanf:"enabled"`
}

// GeneralConfig holds settings shared by every plugin.
type GeneralConfig struct {
	// Language lists language codes, most preferred first.
	Language []string `koanf:"language"`
}

// ActuatorConfig binds one zone to a valve.
type ActuatorConfig struct {
	Zone int    `koanf:"zone"`
	Kind string `koanf:"kind"`
	Pin  int    `koanf:"pin"`
	// Topic overrides mqtt.topic_prefix for this zone.
	Topic string `koanf:"topic"`
}

// MQTTConfig configures the broker used by mqtt actuators.
type MQTTConfig struct {
	Broker      string `koanf:"broker"`
	ClientID    string `koanf:"client_id"`
	TopicPrefix string `koanf:"topic_prefix"`
}

// TimeControlConfig configures automatic watering.
type TimeControlConfig struct {
	Tick     time.Duration `koanf:"tick"`
	AutoMode bool          `koanf:"auto_mode"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen: ":8080",
			WSPath: "/ws",
		},
		Metrics: MetricsConfig{Listen: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		General: GeneralConfig{Language: []string{"en"}},
		MQTT: MQTTConfig{
			ClientID:    "backyardbot",
			TopicPrefix: "backyardbot",
		},
		TimeControl: TimeControlConfig{Tick: time.Second},
	}
}

// FlagKeys maps command-line flag names to config keys. Flags not listed
// here are not part of the configuration.
var FlagKeys = map[string]string{
	"listen":         "server.listen",
	"ws-path":        "server.ws_path",
	"metrics-listen": "metrics.listen",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"database-url":   "database.url",
	"plugins-dir":    "plugins.dir",
	"plugins":        "plugins.enabled",
	"language":       "general.language",
	"mqtt-broker":    "mqtt.broker",
	"auto-mode":      "timecontrol.auto_mode",
}

// Load reads the YAML file at path over Default and then applies every
// flag in flags the user changed. An empty path means the XDG default,
// which may be missing. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		def, err := xdg.ConfigFile()
		if err == nil {
			path = def
		}
	}
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, oops.Code(CodeReadFailed).With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code(CodeReadFailed).Wrapf(err, "apply flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code(CodeDecodeFailed).With("path", path).Wrap(err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(DatabaseURLEnv)
	}
	if cfg.Plugins.Dir == "" {
		if dir, err := xdg.PluginsDir(); err == nil {
			cfg.Plugins.Dir = dir
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem with cfg.
func (cfg Config) Validate() error {
	if cfg.Server.Listen == "" {
		return invalid("server.listen", "is required")
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		return invalid("server.ws_path", "must start with /")
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("log.format", "must be json or text, got %q", cfg.Log.Format)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return invalid("log.level", "unknown level %q", cfg.Log.Level)
	}
	if cfg.TimeControl.Tick <= 0 {
		return invalid("timecontrol.tick", "must be positive")
	}

	seen := make(map[int]bool, len(cfg.Actuators))
	for _, a := range cfg.Actuators {
		if a.Zone <= 0 {
			return invalid("actuators", "zone must be positive, got %d", a.Zone)
		}
		if seen[a.Zone] {
			return invalid("actuators", "zone %d configured twice", a.Zone)
		}
		seen[a.Zone] = true

		switch a.Kind {
		case KindGPIO:
		case KindMQTT:
			if cfg.MQTT.Broker == "" {
				return invalid("mqtt.broker", "is required by zone %d", a.Zone)
			}
		default:
			return invalid("actuators", "zone %d has unknown kind %q", a.Zone, a.Kind)
		}
	}
	return nil
}

// UsesMQTT reports whether any actuator needs the broker.
func (cfg Config) UsesMQTT() bool {
	for _, a := range cfg.Actuators {
		if a.Kind == KindMQTT {
			return true
		}
	}
	return false
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalid).With("key", key).Errorf(key+" "+format, args...)
}
