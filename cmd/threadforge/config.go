package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// fileConfig is the on-disk configuration, accepted as YAML or JSON.
type fileConfig struct {
	Workers            int    `json:"workers"`
	QueueLimit         int    `json:"queue_limit"`
	ProgressIntervalMS int    `json:"progress_interval_ms"`
	PipelinesDir       string `json:"pipelines_dir"`
	HistoryPath        string `json:"history_path"`
	MetricsAddr        string `json:"metrics_addr"`
	LogLevel           string `json:"log_level"`

	Redis struct {
		Addr      string `json:"addr"`
		Password  string `json:"password"`
		DB        int    `json:"db"`
		Namespace string `json:"namespace"`
	} `json:"redis"`
}

func defaultConfig() fileConfig {
	var cfg fileConfig
	cfg.Workers = 4
	cfg.LogLevel = "info"
	return cfg
}

// loadConfig reads path when given, otherwise returns defaults. YAML files
// are converted to JSON so one strict decoder covers both formats.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	jsonBytes, err := coerceToJSON(path, data)
	if err != nil {
		return cfg, err
	}

	dec := json.NewDecoder(strings.NewReader(string(jsonBytes)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func coerceToJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	v = normalizeYAML(v)
	return json.Marshal(v)
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

func (c fileConfig) progressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}
