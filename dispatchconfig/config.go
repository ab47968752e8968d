// Package dispatchconfig loads the dispatcher's host-pool and
// circuit-breaker configuration from an INI file's [docker] section,
// the way the rest of this family of tools loads job configuration:
// via gopkg.in/ini.v1 plus mapstructure.WeakDecode, with every field
// independently overridable by a like-named environment variable.
package dispatchconfig

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	ini "gopkg.in/ini.v1"

	"github.com/netresearch/dogu/hostpool"
)

const (
	envHosts        = "DOCKER_HOSTS"
	envMaxFails     = "DOCKER_CIRCUIT_BREAKER_MAX_FAILS"
	envResetTimeout = "DOCKER_CIRCUIT_BREAKER_RESET_TIMEOUT"
	envTimeout      = "DOCKER_TIMEOUT"
)

// Config is the dispatcher's fully-resolved, ready-to-wire
// configuration.
type Config struct {
	Partitions          []hostpool.PartitionSpec
	CircuitMaxFails     int
	CircuitResetTimeout time.Duration
	Timeout             time.Duration
}

// rawSection is the shape decoded straight out of the INI [docker]
// section, before partitions are parsed and durations are resolved.
type rawSection struct {
	Hosts        []string `mapstructure:"partition"`
	MaxFails     string   `mapstructure:"circuit_breaker_max_fails"`
	ResetTimeout string   `mapstructure:"circuit_breaker_reset_timeout"`
	Timeout      string   `mapstructure:"timeout"`
}

// Default returns spec.md's documented default configuration: a single
// default partition pointing at localhost:2375 with a cap of 2.
func Default() Config {
	return Config{
		Partitions: []hostpool.PartitionSpec{
			{Regex: nil, Hosts: []string{"localhost:2375"}, MaxRunning: 2},
		},
		CircuitMaxFails:     5,
		CircuitResetTimeout: 60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

// Load reads path as an INI file's [docker] section and resolves it
// into a Config, applying environment-variable overrides afterward. An
// empty path or a missing [docker] section starts from Default(); the
// environment-variable overrides are applied in every case.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true, InsensitiveKeys: true}, path)
		if err != nil {
			return Config{}, fmt.Errorf("load ini file %q: %w", path, err)
		}

		if file.HasSection("docker") {
			section := file.Section("docker")
			var raw rawSection
			if err := mapstructure.WeakDecode(sectionToMap(section), &raw); err != nil {
				return Config{}, fmt.Errorf("decode [docker] section: %w", err)
			}

			if len(raw.Hosts) > 0 {
				partitions, err := parsePartitions(raw.Hosts)
				if err != nil {
					return Config{}, err
				}
				cfg.Partitions = partitions
			}
			if raw.MaxFails != "" {
				n, err := strconv.Atoi(raw.MaxFails)
				if err != nil {
					return Config{}, fmt.Errorf("circuit_breaker_max_fails: %w", err)
				}
				cfg.CircuitMaxFails = n
			}
			if raw.ResetTimeout != "" {
				d, err := time.ParseDuration(raw.ResetTimeout)
				if err != nil {
					return Config{}, fmt.Errorf("circuit_breaker_reset_timeout: %w", err)
				}
				cfg.CircuitResetTimeout = d
			}
			if raw.Timeout != "" {
				d, err := time.ParseDuration(raw.Timeout)
				if err != nil {
					return Config{}, fmt.Errorf("timeout: %w", err)
				}
				cfg.Timeout = d
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnvOverrides lets each recognized option be overridden
// independently by its like-named environment variable, per spec.md
// §6.1.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envHosts); v != "" {
		partitions, err := parsePartitions(strings.Split(v, ";"))
		if err != nil {
			return fmt.Errorf("%s: %w", envHosts, err)
		}
		cfg.Partitions = partitions
	}
	if v := os.Getenv(envMaxFails); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxFails, err)
		}
		cfg.CircuitMaxFails = n
	}
	if v := os.Getenv(envResetTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envResetTimeout, err)
		}
		cfg.CircuitResetTimeout = d
	}
	if v := os.Getenv(envTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTimeout, err)
		}
		cfg.Timeout = d
	}
	return nil
}

// parsePartitions decodes a list of "regex|host1,host2,...|max_running"
// entries. An empty regex field decodes to a nil (default/wildcard)
// partition.
func parsePartitions(entries []string) ([]hostpool.PartitionSpec, error) {
	specs := make([]hostpool.PartitionSpec, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Split(entry, "|")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid partition %q: expected regex|hosts|max_running", entry)
		}

		var re *regexp.Regexp
		if fields[0] != "" {
			compiled, err := regexp.Compile(fields[0])
			if err != nil {
				return nil, fmt.Errorf("invalid partition regex %q: %w", fields[0], err)
			}
			re = compiled
		}

		hosts := strings.Split(fields[1], ",")
		for i := range hosts {
			hosts[i] = strings.TrimSpace(hosts[i])
		}

		max, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid partition max_running %q: %w", fields[2], err)
		}

		specs = append(specs, hostpool.PartitionSpec{Regex: re, Hosts: hosts, MaxRunning: max})
	}
	return specs, nil
}

func sectionToMap(section *ini.Section) map[string]interface{} {
	m := make(map[string]interface{})
	for _, key := range section.Keys() {
		vals := key.ValueWithShadows()
		switch {
		case len(vals) > 1:
			cp := make([]string, len(vals))
			copy(cp, vals)
			m[key.Name()] = cp
		case len(vals) == 1:
			m[key.Name()] = vals[0]
		default:
			m[key.Name()] = ""
		}
	}
	return m
}
