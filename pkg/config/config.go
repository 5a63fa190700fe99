package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/grafana/netverify/pkg/logging"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/targets"
	"github.com/joho/godotenv"
)

const envPrefix = "NETVERIFY_"

var errInvalidConfig = errors.New("invalid configuration")

// Config holds every tunable of a probe run. Fixed credentials and
// signatures live here so they can be overridden without a rebuild.
type Config struct {
	Timeout          time.Duration     `yaml:"timeout"`
	DNSServer        string            `yaml:"dnsServer,omitempty"`
	KVPort           int               `yaml:"kvPort"`
	KVPassword       string            `yaml:"kvPassword"`
	HTTPPorts        []int             `yaml:"httpPorts"`
	HTTPPath         string            `yaml:"httpPath"`
	DefaultSignature string            `yaml:"defaultSignature"`
	Signatures       map[string]string `yaml:"signatures,omitempty"`
	ReadLimit        int               `yaml:"readLimit"`
	SnippetLength    int               `yaml:"snippetLength"`
	LogLevel         string            `yaml:"logLevel"`
	MetricsTextfile  string            `yaml:"metricsTextfile,omitempty"`
}

func Default() Config {
	return Config{
		Timeout:          probe.DefaultTimeout,
		KVPort:           probe.DefaultKVPort,
		KVPassword:       probe.DefaultKVPassword,
		HTTPPorts:        append([]int(nil), probe.DefaultHTTPPorts...),
		HTTPPath:         probe.DefaultHTTPPath,
		DefaultSignature: probe.DefaultSignature,
		Signatures:       maps.Clone(targets.DefaultSignatures),
		ReadLimit:        probe.DefaultHTTPMaxBody,
		SnippetLength:    probe.DefaultSnippetLen,
		LogLevel:         "info",
	}
}

// LoadFile overlays the YAML file at path on c. Unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := yaml.NewDecoder(f, yaml.Strict()).Decode(c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

// LoadEnv overlays NETVERIFY_* variables on c. Values from the process
// environment win over those found in the given dotenv files; missing
// files are ignored.
func (c *Config) LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	dotenv := map[string]string{}
	if len(existing) > 0 {
		var err error
		if dotenv, err = godotenv.Read(existing...); err != nil {
			return fmt.Errorf("reading env files: %w", err)
		}
	}

	return c.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	if v, ok := lookup(envPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTIMEOUT: %w", envPrefix, err))
		} else {
			c.Timeout = d
		}
	}
	if v, ok := lookup(envPrefix + "HTTP_PORTS"); ok {
		ports, err := ParsePorts(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHTTP_PORTS: %w", envPrefix, err))
		} else {
			c.HTTPPorts = ports
		}
	}

	str("DNS_SERVER", &c.DNSServer)
	num("KV_PORT", &c.KVPort)
	str("KV_PASSWORD", &c.KVPassword)
	str("HTTP_PATH", &c.HTTPPath)
	str("SIGNATURE", &c.DefaultSignature)
	num("READ_LIMIT", &c.ReadLimit)
	num("SNIPPET_LENGTH", &c.SnippetLength)
	str("LOG_LEVEL", &c.LogLevel)
	str("METRICS_TEXTFILE", &c.MetricsTextfile)

	return errors.Join(errs...)
}

// ParsePorts parses a comma separated port list.
func ParsePorts(s string) ([]int, error) {
	var ports []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %s", errInvalidConfig, c.Timeout))
	}
	if c.KVPort < 1 || c.KVPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: kv port %d out of range", errInvalidConfig, c.KVPort))
	}
	for _, p := range c.HTTPPorts {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("%w: http port %d out of range", errInvalidConfig, p))
		}
	}
	if c.KVPassword == "" {
		errs = append(errs, fmt.Errorf("%w: empty kv password", errInvalidConfig))
	}
	if c.DefaultSignature == "" {
		errs = append(errs, fmt.Errorf("%w: empty default signature", errInvalidConfig))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("%w: read limit must be positive", errInvalidConfig))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", errInvalidConfig, err))
	}

	return errors.Join(errs...)
}

// ProbeOptions converts c into the options a probe.Prober is built from.
func (c Config) ProbeOptions(log logging.Logger) probe.Options {
	opts := probe.Options{
		Timeout:          c.Timeout,
		KVPort:           c.KVPort,
		KVPassword:       c.KVPassword,
		HTTPPorts:        c.HTTPPorts,
		HTTPPath:         c.HTTPPath,
		DefaultSignature: c.DefaultSignature,
		ReadLimit:        c.ReadLimit,
		SnippetLen:       c.SnippetLength,
		Log:              log,
	}
	if c.DNSServer != "" {
		opts.Lookuper = probe.NewDNSLookuper(c.DNSServer, c.Timeout)
	}
	return opts
}

// Parser returns a line parser using the configured signatures.
func (c Config) Parser() targets.Parser {
	return targets.Parser{Signatures: c.Signatures}
}
