package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads, merges, and validates a YAML configuration file. Environment
// variables are expanded before parsing and `$include: [...]` directives are
// resolved relative to the including file, with cycle detection.
func Load(path string) (Config, error) {
	raw, err := loadRawRecursive(path, map[string]bool{})
	if err != nil {
		return Config{}, err
	}

	merged := mergeOnto(toYAMLMap(Default()), raw)

	bytes, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, fmt.Errorf("config: re-marshal merged config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode merged config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config: include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}
	expanded := os.ExpandEnv(string(data))

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	includesVal, hasIncludes := raw[includeKey]
	delete(raw, includeKey)
	if !hasIncludes {
		return raw, nil
	}

	includePaths, err := toStringSlice(includesVal)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", absPath, err)
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includePaths {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(baseDir, inc)
		}
		included, err := loadRawRecursive(inc, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeOnto(merged, included)
	}
	return mergeOnto(merged, raw), nil
}

func toStringSlice(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of paths", includeKey)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", includeKey)
		}
		out = append(out, s)
	}
	return out, nil
}

// mergeOnto deep-merges override onto base, returning a new map. Override
// values win; nested maps are merged recursively, everything else replaced.
func mergeOnto(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if existing, ok := out[k]; ok {
			existingMap, existingIsMap := toMap(existing)
			overrideMap, overrideIsMap := toMap(v)
			if existingIsMap && overrideIsMap {
				out[k] = mergeOnto(existingMap, overrideMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toYAMLMap(cfg Config) map[string]any {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := yaml.Unmarshal(bytes, &m); err != nil {
		return map[string]any{}
	}
	return m
}
