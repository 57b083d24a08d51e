// Package config loads a slackrelay.Config from an optional YAML file and
// the environment.
//
// Sources are applied in order, later ones winning:
//
//  1. slackrelay.DefaultConfig()
//  2. the YAML file, when present
//  3. the flat deployment variables (PORT, SLACK_SIGNING_SECRET, GAS_WEBAPP_URL, ...)
//  4. SLACKRELAY_-prefixed variables, with "__" separating sections
//     (SLACKRELAY_FORWARD__MAX_RETRIES=5)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/xraph/slackrelay"
)

// EnvPrefix namespaces structured environment overrides.
const EnvPrefix = "SLACKRELAY_"

// DefaultPath is the config file read when Load is given "".
const DefaultPath = "slackrelay.yaml"

// legacyEnv maps the flat variable names used by existing deployments to
// config keys.
var legacyEnv = map[string]string{
	"PORT":                    "server.port",
	"SLACK_SIGNING_SECRET":    "slack.signing_secret",
	"GAS_WEBAPP_URL":          "forward.url",
	"INTERNAL_BRIDGE_SECRET":  "forward.secret",
	"REDIS_URL":               "redis.url",
	"SLACK_ALERT_ENABLED":     "alerts.enabled",
	"SLACK_ALERT_WEBHOOK_URL": "alerts.webhook_url",
	"SERVICE_ENV":             "alerts.env",
	"CRON_TOKEN":              "cron.token",
	"LOG_LEVEL":               "log.level",
}

// Load builds the configuration. A missing file is not an error; the
// result is not validated, slackrelay.New does that.
func Load(path string) (slackrelay.Config, error) {
	cfg := slackrelay.DefaultConfig()
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return cfg, fmt.Errorf("config: %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return cfg, fmt.Errorf("config: load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}

	// A Redis URL switches dedup to the shared backend unless a backend
	// was chosen explicitly.
	if cfg.Redis.URL != "" && !k.Exists("dedup.backend") {
		cfg.Dedup.Backend = slackrelay.BackendRedis
	}
	return cfg, nil
}
