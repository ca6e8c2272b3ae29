package config

import "fmt"

// ConfigurationError is returned when a path has neither an override nor a default.
type ConfigurationError struct {
	Path string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("attribute %s: no default registered and no override set", e.Path)
}

// TypeError is returned when an attribute holds a value of the wrong shape.
type TypeError struct {
	Path string
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("attribute %s: expected %s, got %s", e.Path, e.Want, describe(e.Got))
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("string %q", v)
	case bool:
		return fmt.Sprintf("bool %v", v)
	case int:
		return fmt.Sprintf("int %v", v)
	case float64:
		return fmt.Sprintf("float %v", v)
	case []any:
		return "sequence"
	default:
		return fmt.Sprintf("%T", v)
	}
}
