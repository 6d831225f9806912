package config

import (
	"fmt"
	"strconv"
	"strings"
)

// 参数包是扁平的 key→value，值可能来自 YAML(int)、TOML(int64) 或 CLI(string)。

func stringFromCfg(params map[string]interface{}, key string) (string, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", raw))), true
}

func intFromCfg(params map[string]interface{}, key string) (int, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, true, invalid(key, "需要整数, 得到 %v", v)
		}
		return int(v), true, nil
	default:
		val, err := strconv.Atoi(strings.TrimSpace(fmt.Sprintf("%v", v)))
		if err != nil {
			return 0, true, invalid(key, "需要整数, 得到 %q", fmt.Sprintf("%v", v))
		}
		return val, true, nil
	}
}

func floatFromCfg(params map[string]interface{}, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		val, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", v)), 64)
		if err != nil {
			return 0, true, invalid(key, "需要数值, 得到 %q", fmt.Sprintf("%v", v))
		}
		return val, true, nil
	}
}

func boolFromCfg(params map[string]interface{}, key string) (bool, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return false, false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, true, nil
	default:
		val, err := strconv.ParseBool(strings.TrimSpace(fmt.Sprintf("%v", v)))
		if err != nil {
			return false, true, invalid(key, "需要布尔值, 得到 %q", fmt.Sprintf("%v", v))
		}
		return val, true, nil
	}
}

func sliceFromCfg(params map[string]interface{}, key string) ([]string, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, false
	}
	var parts []string
	switch val := raw.(type) {
	case []string:
		parts = val
	case []interface{}:
		for _, item := range val {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
	default:
		parts = strings.Split(fmt.Sprintf("%v", val), ",")
	}
	out := make([]string, 0, len(parts))
	for _, item := range parts {
		s := strings.ToLower(strings.TrimSpace(item))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, true
}
