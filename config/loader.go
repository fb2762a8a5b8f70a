package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/mtscore/errors"
)

// DefaultEnvPrefix prefixes every environment override, e.g. MTS_NATS_URLS.
const DefaultEnvPrefix = "MTS"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader that validates the result and reads MTS_*
// environment overrides.
func NewLoader() *Loader {
	return &Loader{validation: true, envPrefix: DefaultEnvPrefix}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables schema and semantic validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the prefix of environment overrides.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file on top of the defaults
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := readLayer(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", "layer "+path)
		}
		merged = deepMergeMaps(merged, layer)
	}

	if l.validation {
		if err := validateSchema(merged); err != nil {
			return nil, err
		}
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode config")
	}
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes a single JSON or YAML document on top of the defaults and
// validates it. The format is "json", "yaml" or "yml".
func Parse(data []byte, format string) (*Config, error) {
	layer, err := decodeLayer(data, format)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode "+format)
	}
	base, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Parse", "encode defaults")
	}
	merged := deepMergeMaps(base, layer)
	if err := validateSchema(merged); err != nil {
		return nil, err
	}
	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readLayer(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeLayer(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

func decodeLayer(data []byte, format string) (map[string]any, error) {
	var layer map[string]any
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
		// yaml.v3 decodes nested mappings as map[string]any; a JSON round trip
		// normalizes numbers and nested values for the schema and decoder.
		normalized, err := json.Marshal(layer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
		layer = nil
		if err := json.Unmarshal(normalized, &layer); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
	case "json", "":
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
		if err := json.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", errors.ErrInvalidConfig, format)
	}
	if layer == nil {
		layer = map[string]any{}
	}
	return layer, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not appended.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var errs []error
	get := func(key string) (string, bool) {
		name := l.envPrefix + "_" + key
		val := os.Getenv(name)
		if val == "" {
			return "", false
		}
		if err := validateEnvVar(name, val); err != nil {
			errs = append(errs, err)
			return "", false
		}
		return val, true
	}

	if val, ok := get("PROCESS_NAME"); ok {
		cfg.Process.Name = val
	}
	if val, ok := get("NATS_ENABLED"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s_NATS_ENABLED=%q", errors.ErrInvalidConfig, l.envPrefix, val))
		}
		cfg.NATS.Enabled = b
	}
	if val, ok := get("NATS_URLS"); ok {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val, ok := get("NATS_SUBJECT_PREFIX"); ok {
		cfg.NATS.SubjectPrefix = val
	}
	if val, ok := get("NATS_USERNAME"); ok {
		cfg.NATS.Username = val
	}
	if val, ok := get("NATS_PASSWORD"); ok {
		cfg.NATS.Password = val
	}
	if val, ok := get("NATS_TOKEN"); ok {
		cfg.NATS.Token = val
	}
	if val, ok := get("HTTP_ADDR"); ok {
		cfg.HTTP.Addr = val
	}
	if val, ok := get("MANAGER_MAILBOX_SIZE"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s_MANAGER_MAILBOX_SIZE=%q", errors.ErrInvalidConfig, l.envPrefix, val))
		}
		cfg.Manager.MailboxSize = n
	}
	if val, ok := get("MANAGER_SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s_MANAGER_SHUTDOWN_TIMEOUT=%q", errors.ErrInvalidConfig, l.envPrefix, val))
		}
		cfg.Manager.ShutdownTimeout = Duration(d)
	}
	return errors.Join(errs...)
}

// SaveToFile writes the configuration as indented JSON, or YAML when path
// ends in .yaml or .yml.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "encode")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return errors.WrapFatal(err, "Config", "SaveToFile", "re-decode")
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return errors.WrapFatal(err, "Config", "SaveToFile", "encode yaml")
		}
	}
	return safeWriteFile(path, data)
}
