// Package field looks up values inside decoded vendor JSON payloads.
//
// Device APIs mix flat fields ({"progress":{"completion":12.5}}) with per-tool
// nested fields ({"temperature":{"tool0":{"actual":201.3}}}). A single
// group/key/tool lookup covers both shapes, so sensors are described as data
// instead of one accessor per field.
package field

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/bassista/go_devwatch/internal/model"
)

// Extract returns the value stored under payload[group][key].
//
// Lookup order:
//  1. group missing or not an object: not found.
//  2. key directly under group. A null "target" is reported as 0.
//  3. tool set: key under payload[group][tool].
//  4. tool empty: key under the first object child of group, children in
//     sorted order (e.g. state.flags.printing is found as group "state", key "printing").
func Extract(payload map[string]any, group, key, tool string) (any, bool) {
	if payload == nil {
		return nil, false
	}
	groupMap, ok := asMap(payload[group])
	if !ok {
		return nil, false
	}

	if v, ok := groupMap[key]; ok {
		// OctoPrint reports an unset heater target as null.
		if key == "target" && v == nil {
			return float64(0), true
		}
		return v, true
	}

	if tool != "" {
		toolMap, ok := asMap(groupMap[tool])
		if !ok {
			return nil, false
		}
		v, ok := toolMap[key]
		return v, ok
	}

	children := make([]string, 0, len(groupMap))
	for name := range groupMap {
		children = append(children, name)
	}
	sort.Strings(children)
	for _, name := range children {
		child, ok := asMap(groupMap[name])
		if !ok {
			continue
		}
		if v, ok := child[key]; ok {
			return v, true
		}
	}

	return nil, false
}

// Float extracts a numeric value. Null and non-numeric values are not found.
func Float(payload map[string]any, group, key, tool string) (float64, bool) {
	v, ok := Extract(payload, group, key, tool)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Bool extracts a boolean value.
func Bool(payload map[string]any, group, key, tool string) (bool, bool) {
	v, ok := Extract(payload, group, key, tool)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// String extracts a string value.
func String(payload map[string]any, group, key, tool string) (string, bool) {
	v, ok := Extract(payload, group, key, tool)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Round2 rounds f to two decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Number converts a decoded JSON number to float64.
func Number(v any) (float64, bool) {
	return toFloat(v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case model.Payload:
		return m, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
