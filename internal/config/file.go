package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// fileValues holds the keys read from the optional YAML file.
// Environment variables always take precedence over it.
var fileValues map[string]string

// loadFile parses a flat YAML mapping of configuration keys, e.g.
//
//	FLEET_STORE_DRIVER: memory
//	FLEET_STALENESS_THRESHOLD: 6s
//	FLEET_REDIS_DB: 2
//
// Scalars of any type are accepted and kept in their textual form.
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			values[key] = val
		case bool:
			values[key] = strconv.FormatBool(val)
		case int:
			values[key] = strconv.Itoa(val)
		case float64:
			values[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case []interface{}:
			// lists become the comma-separated form the env parser expects
			s := ""
			for i, item := range val {
				if i > 0 {
					s += ","
				}
				s += fmt.Sprint(item)
			}
			values[key] = s
		default:
			return nil, fmt.Errorf("config file %s: key %s has unsupported value %v", path, key, v)
		}
	}
	return values, nil
}

// lookup returns the environment value for key, falling back to the file.
func lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fileValues[key]
}
