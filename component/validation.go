package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/c360/mtscore/errors"
)

// Limits applied to names and component configuration.
const (
	MaxNameLength   = 256
	MaxStringLength = 1024
	MaxJSONSize     = 1024 * 1024
	MaxConfigDepth  = 10
	MaxArraySize    = 1000
)

// ValidateName checks component, interface, command and event names. Names
// may contain letters, digits, '-', '_' and '.'.
func ValidateName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "component", "ValidateName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(
			fmt.Errorf("%w: name length %d exceeds %d", errors.ErrInvalidData, len(name), MaxNameLength),
			"component", "ValidateName", "length check")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				fmt.Errorf("%w: name %q contains %q", errors.ErrInvalidData, name, r),
				"component", "ValidateName", "character check")
		}
	}
	return nil
}

// Validatable is implemented by config structs with semantic checks.
type Validatable interface {
	Validate() error
}

// ConfigValidator bounds the size and shape of raw component configuration.
type ConfigValidator struct {
	maxDepth     int
	maxArraySize int
	maxStringLen int
	maxJSONSize  int
}

// NewConfigValidator creates a validator with the package limits.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		maxDepth:     MaxConfigDepth,
		maxArraySize: MaxArraySize,
		maxStringLen: MaxStringLength,
		maxJSONSize:  MaxJSONSize,
	}
}

// ValidateConfig checks raw JSON against the validator limits. Empty input is valid.
func (v *ConfigValidator) ValidateConfig(raw json.RawMessage) error {
	if len(raw) > v.maxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(raw), v.maxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}
	if len(raw) == 0 {
		return nil
	}

	var value any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}
	return v.validateValue(value, 0)
}

func (v *ConfigValidator) validateValue(value any, depth int) error {
	if depth > v.maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, v.maxDepth),
			"ConfigValidator", "validateValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		return v.validateString(val)
	case json.Number, bool, nil:
		return nil
	case []any:
		if len(val) > v.maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), v.maxArraySize),
				"ConfigValidator", "validateValue", "array size check")
		}
		for i, elem := range val {
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("element %d", i))
			}
		}
	case map[string]any:
		for key, elem := range val {
			if err := v.validateString(key); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", "key "+key)
			}
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", "field "+key)
			}
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("unexpected type %T", value),
			"ConfigValidator", "validateValue", "type check")
	}
	return nil
}

func (v *ConfigValidator) validateString(s string) error {
	if len(s) > v.maxStringLen {
		return errors.WrapInvalid(
			fmt.Errorf("string length %d exceeds maximum %d", len(s), v.maxStringLen),
			"ConfigValidator", "validateString", "length check")
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("string contains control character 0x%02x", r),
				"ConfigValidator", "validateString", "control character check")
		}
	}
	return nil
}

// DecodeConfig validates raw and unmarshals it into target, a pointer to a
// struct holding defaults. Fields absent from raw keep their defaults.
func DecodeConfig(raw json.RawMessage, target any) error {
	if err := NewConfigValidator().ValidateConfig(raw); err != nil {
		return errors.Wrap(err, "component", "DecodeConfig", "config validation")
	}
	if target == nil || reflect.TypeOf(target).Kind() != reflect.Pointer {
		return errors.WrapInvalid(fmt.Errorf("target must be a pointer, got %T", target),
			"component", "DecodeConfig", "target type check")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return errors.WrapInvalid(err, "component", "DecodeConfig", "JSON unmarshaling")
		}
	}
	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrap(err, "component", "DecodeConfig", "semantic validation")
		}
	}
	return nil
}
