package config

import (
	"errors"
	"fmt"
)

// ErrUnknownKey 表示参数包中出现未登记的键。
var ErrUnknownKey = errors.New("unknown configuration key")

// ConfigurationError 构造期配置错误，只在创建引擎前返回。
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "配置错误: " + e.Reason
	}
	return fmt.Sprintf("配置错误 %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func invalid(key, format string, args ...any) error {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
