package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every clickguard environment variable.
const EnvPrefix = "CLICKGUARD_"

// DefaultConfigFiles are looked up in the working directory when no
// explicit file is given.
var DefaultConfigFiles = []string{"clickguard.yaml", "clickguard.yml"}

// findConfigFile returns the explicit path or the first default file that
// exists.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range DefaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
//
// The comma-separated CLICKHOUSE_HOST, CLICKHOUSE_USER, CLICKHOUSE_PASSWORD
// and CLICKHOUSE_NAME variables, when CLICKHOUSE_HOST is set, replace the
// host list from the file.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"listen":             DefaultListen,
		"history_path":       DefaultHistoryPath,
		"log_format":         DefaultLogFormat,
		"log_level":          DefaultLogLevel,
		"max_execution_time": DefaultMaxExecutionTime,
		"max_concurrency":    DefaultMaxConcurrency,
		"secure":             false,
	}, "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// CLICKGUARD_HISTORY_PATH -> history_path
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			// --history-path -> history_path
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}

	if hosts := hostsFromEnv(os.Getenv); len(hosts) > 0 {
		cfg.Hosts = hosts
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []HostConfig{{Addr: DefaultHostAddr, Password: os.Getenv("CLICKHOUSE_PASSWORD")}}
	}
	for i := range cfg.Hosts {
		if cfg.Hosts[i].Database == "" {
			cfg.Hosts[i].Database = os.Getenv("CLICKHOUSE_DATABASE")
		}
		cfg.Hosts[i].normalize(cfg.Secure || os.Getenv("CLICKHOUSE_SECURE") == "true")
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, used, nil
}

// hostsFromEnv builds the host list from the comma-separated CLICKHOUSE_*
// variables. Users, passwords and names are matched by position; a missing
// user or password reuses the first one given.
func hostsFromEnv(getenv func(string) string) []HostConfig {
	addrs := splitList(getenv("CLICKHOUSE_HOST"))
	if len(addrs) == 0 {
		return nil
	}
	users := splitList(getenv("CLICKHOUSE_USER"))
	passwords := strings.Split(getenv("CLICKHOUSE_PASSWORD"), ",")
	names := splitList(getenv("CLICKHOUSE_NAME"))

	hosts := make([]HostConfig, len(addrs))
	for i, addr := range addrs {
		hosts[i] = HostConfig{
			Addr:     addr,
			User:     at(users, i),
			Password: at(passwords, i),
		}
		if i < len(names) {
			hosts[i].Name = names[i]
		}
	}
	return hosts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// at returns list[i], falling back to the first element.
func at(list []string, i int) string {
	switch {
	case i < len(list):
		return list[i]
	case len(list) > 0:
		return list[0]
	default:
		return ""
	}
}
