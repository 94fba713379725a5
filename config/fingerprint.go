// Package config provides an ambient, YAML-backed way to build the
// configuration fingerprint a build context is constructed with. It is not
// part of the core engine — a host is always free to build a
// map[string]resource.Value by hand — but every non-trivial build has a
// config file on disk somewhere, and this mirrors how a FileSource-style
// loader turns one into the shape a build engine actually consumes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/incrementalbuild/resource"
)

// LoadFingerprint reads a YAML document at path and flattens its top-level
// mapping into a configuration fingerprint. Values must already fall
// within resource.Value's closed grammar once YAML decoding is done
// (strings, bools, integers, nested lists/maps of the same); anything else
// is rejected so a bad config file fails at load time rather than at the
// first setResourceAttribute-style round-trip.
func LoadFingerprint(path string) (map[string]resource.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	fingerprint := make(map[string]resource.Value, len(raw))
	for key, value := range raw {
		normalized, err := normalize(value)
		if err != nil {
			return nil, fmt.Errorf("config: %s: key %q: %w", path, key, err)
		}
		fingerprint[key] = normalized
	}
	return fingerprint, nil
}

// normalize converts a yaml.v3-decoded value (which favors
// map[string]interface{}, []interface{}, string, bool, int, float64) into
// resource.Value's grammar, rejecting anything that does not fit (floats,
// timestamps, and any other type gopkg.in/yaml.v3 might produce).
func normalize(v any) (resource.Value, error) {
	switch t := v.(type) {
	case nil, string, bool, int64:
		return t, nil
	case int:
		return int64(t), nil
	case []any:
		out := make([]resource.Value, len(t))
		for i, elem := range t {
			n, err := normalize(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]resource.Value, len(t))
		for k, elem := range t {
			n, err := normalize(elem)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value of type %T is not in the closed configuration grammar", v)
	}
}
