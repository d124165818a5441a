package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"enum", NewEnumError("filter-type", "comb"), ErrInvalidEnum},
		{"wrapped enum", fmt.Errorf("apply: %w", NewEnumError("lfo-target", "x")), ErrInvalidEnum},
		{"missing", Missing("lfo.rate"), ErrIncompletePatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}

	if errors.Is(Missing("x"), ErrInvalidEnum) {
		t.Error("IncompleteError must not match ErrInvalidEnum")
	}
}

func TestEnumErrorMessage(t *testing.T) {
	err := NewEnumError("osc2-waveform", "noise")
	want := `osc2-waveform: unrecognized value "noise"`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
