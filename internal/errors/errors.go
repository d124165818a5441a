package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrInvalidEnum             = errors.New("invalid enum value")
	ErrIncompletePatch         = errors.New("incomplete patch")
	ErrNotFound                = errors.New("patch not found")
	ErrReservedName            = errors.New("name is reserved by a factory patch")
	ErrProtected               = errors.New("factory patches cannot be deleted")
	ErrCorruptPersistedState   = errors.New("persisted state is corrupt")
	ErrAudioBackendUnavailable = errors.New("audio backend unavailable")
	ErrUnknownParam            = errors.New("unknown parameter")
	ErrInvalidNote             = errors.New("invalid MIDI note")
)

// EnumError reports a waveform, filter type or LFO target that is not recognized.
type EnumError struct {
	Field string // "osc1-waveform", "filter-type", "lfo-target"
	Value string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("%s: unrecognized value %q", e.Field, e.Value)
}

func (e *EnumError) Is(target error) bool {
	return target == ErrInvalidEnum
}

// IncompleteError reports the first missing branch of a partial patch object.
type IncompleteError struct {
	Path string // e.g. "envelopes.filter.release"
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete patch: missing %s", e.Path)
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncompletePatch
}

// NewEnumError creates an EnumError
func NewEnumError(field, value string) *EnumError {
	return &EnumError{Field: field, Value: value}
}

// Missing creates an IncompleteError for path
func Missing(path string) *IncompleteError {
	return &IncompleteError{Path: path}
}
