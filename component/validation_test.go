package component

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/errors"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "sine", false},
		{"dotted", "robot.arm-1_left", false},
		{"empty", "", true},
		{"space", "two words", true},
		{"slash", "a/b", true},
		{"wildcard", "logs.*", true},
		{"too long", strings.Repeat("x", MaxNameLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(err), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type decodeTarget struct {
	Amplitude float64 `json:"amplitude"`
	Period    string  `json:"period"`
}

func (d *decodeTarget) Validate() error {
	if d.Amplitude < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "decodeTarget", "Validate", "negative amplitude")
	}
	return nil
}

func TestDecodeConfig(t *testing.T) {
	target := decodeTarget{Amplitude: 1, Period: "10ms"}
	require.NoError(t, DecodeConfig(json.RawMessage(`{"amplitude": 2.5}`), &target))
	assert.Equal(t, 2.5, target.Amplitude)
	assert.Equal(t, "10ms", target.Period, "absent fields keep defaults")

	require.NoError(t, DecodeConfig(nil, &target))

	err := DecodeConfig(json.RawMessage(`{"amplitude": -1}`), &target)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	err = DecodeConfig(json.RawMessage(`{"period": "a\u0001b"}`), &target)
	assert.True(t, errors.IsInvalid(err), "control characters rejected")

	deep := strings.Repeat(`{"a":`, MaxConfigDepth+2) + "1" + strings.Repeat("}", MaxConfigDepth+2)
	err = DecodeConfig(json.RawMessage(deep), &map[string]any{})
	assert.True(t, errors.IsInvalid(err), "depth limit")

	err = DecodeConfig(json.RawMessage(`{}`), target)
	assert.True(t, errors.IsInvalid(err), "non-pointer target")
}
