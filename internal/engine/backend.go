package engine

import (
	"fmt"
	"log"

	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
)

const (
	// WaveformSize is the number of samples returned by a scope read.
	WaveformSize = 512
	// SpectrumSize is the number of bins returned by a spectrum read.
	SpectrumSize = 256
)

// Backend is the synthesis graph the engine drives. Implementations must make
// Waveform and Spectrum safe to call from any goroutine without blocking the
// audio thread.
type Backend interface {
	NoteOn(note, velocity uint8) error
	NoteOff(note uint8) error
	// Free is called exactly once per voice, when the engine stops tracking the
	// note (release elapsed or panic).
	Free(note uint8)
	AllNotesOff() error
	// SetParam receives numbers in the parameter's own units. Choice parameters
	// arrive as their index.
	SetParam(id patch.ParamID, value float64) error
	Waveform(dst []float32) int
	Spectrum(dst []complex128) int
	Close() error
}

// SilentBackend accepts everything and produces nothing. It keeps the rest of
// the application usable when no audio output can be opened.
type SilentBackend struct{}

func (SilentBackend) NoteOn(note, velocity uint8) error              { return nil }
func (SilentBackend) NoteOff(note uint8) error                       { return nil }
func (SilentBackend) Free(note uint8)                                {}
func (SilentBackend) AllNotesOff() error                             { return nil }
func (SilentBackend) SetParam(id patch.ParamID, value float64) error { return nil }
func (SilentBackend) Close() error                                   { return nil }

func (SilentBackend) Waveform(dst []float32) int {
	clear(dst)
	return len(dst)
}

func (SilentBackend) Spectrum(dst []complex128) int {
	clear(dst)
	return len(dst)
}

// Factory constructs a backend. It is called at most twice by Open.
type Factory func() (Backend, error)

// Open builds a backend with one retry. When both attempts fail the returned
// error wraps ErrAudioBackendUnavailable and the caller decides whether to
// continue with SilentBackend.
func Open(name string, factory Factory) (Backend, error) {
	b, err := factory()
	if err == nil {
		return b, nil
	}
	log.Printf("[engine] %s backend failed to start, retrying: %v", name, err)

	b, err = factory()
	if err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrAudioBackendUnavailable, name, err)
}
