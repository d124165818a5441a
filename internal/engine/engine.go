// Package engine is the audio engine adapter: it holds the control-rate value
// of every patch parameter, tracks one voice per MIDI note and forwards both to
// a Backend.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/algo-vecmath"

	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
)

// ReapInterval is how often Run frees voices whose release has elapsed.
const ReapInterval = 10 * time.Millisecond

type voiceState uint8

const (
	voiceIdle voiceState = iota
	voiceHeld
	// note-off arrived while sustain was engaged
	voiceSustained
	voiceReleasing
)

type voice struct {
	state    voiceState
	velocity uint8
	started  time.Time
	deadline time.Time
}

// Voice is a read-only view of one tracked note.
type Voice struct {
	Note      uint8
	Velocity  uint8
	Releasing bool
	Started   time.Time
}

// NoteHandle identifies the voice started by NoteOn.
type NoteHandle struct {
	Note     uint8
	Velocity uint8
	Started  time.Time
}

type setter func(v float64)

type Engine struct {
	mu      sync.Mutex
	backend Backend
	params  patch.Patch
	setters map[patch.ParamID]setter
	voices  [128]voice
	active  int
	sustain bool
	now     func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now for voice bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine on top of backend and pushes the default patch to it.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.setters = make(map[patch.ParamID]setter, len(patch.Params))
	for _, prm := range patch.Params {
		e.setters[prm.ID] = func(v float64) {
			prm.Set(&e.params, v)
			if err := e.backend.SetParam(prm.ID, v); err != nil {
				log.Printf("[engine] failed to set %s: %v", prm.ID, err)
			}
		}
	}

	def := patch.Default()
	for _, prm := range patch.Params {
		e.setters[prm.ID](prm.Get(&def))
	}
	return e
}

// Backend returns the backend the engine drives.
func (e *Engine) Backend() Backend {
	return e.backend
}

// Serialize returns the control-rate value of every parameter.
func (e *Engine) Serialize() patch.Patch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Apply validates p, clamps it and then calls every setter exactly once in
// parameter table order. When an enum is not recognized nothing is applied.
func (e *Engine) Apply(p patch.Patch) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	p = p.Clamp()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, prm := range patch.Params {
		e.setters[prm.ID](prm.Get(&p))
	}
	return nil
}

// Set changes one parameter. Numbers are clamped into range; choices take an
// index.
func (e *Engine) Set(id patch.ParamID, v float64) (float64, error) {
	prm, ok := patch.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrUnknownParam, id)
	}
	if prm.Kind == patch.KindToggle {
		v = math.Round(v)
	}
	v = prm.Range.Clamp(v)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.setters[id](v)
	return prm.Get(&e.params), nil
}

// SetChoice sets an enum parameter by its string value.
func (e *Engine) SetChoice(id patch.ParamID, value string) error {
	prm, ok := patch.Lookup(id)
	if !ok || prm.Kind != patch.KindChoice {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownParam, id)
	}
	i, ok := prm.ChoiceIndex(value)
	if !ok {
		return apperrors.NewEnumError(string(id), value)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.setters[id](float64(i))
	return nil
}

// Get returns the current value of one parameter.
func (e *Engine) Get(id patch.ParamID) (float64, error) {
	prm, ok := patch.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrUnknownParam, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return prm.Get(&e.params), nil
}

// NoteOn starts a voice for note, or retriggers the one already sounding.
// Velocity is clamped to 1..127.
func (e *Engine) NoteOn(note, velocity int) (NoteHandle, error) {
	if note < 0 || note > 127 {
		return NoteHandle{}, fmt.Errorf("%w: %d", apperrors.ErrInvalidNote, note)
	}
	vel := uint8(max(1, min(127, velocity)))
	n := uint8(note)

	e.mu.Lock()
	defer e.mu.Unlock()

	v := &e.voices[n]
	if v.state == voiceIdle {
		e.active++
	}
	*v = voice{state: voiceHeld, velocity: vel, started: e.now()}

	if err := e.backend.NoteOn(n, vel); err != nil {
		log.Printf("[engine] note on %d failed: %v", n, err)
	}
	return NoteHandle{Note: n, Velocity: vel, Started: v.started}, nil
}

// NoteOff starts the release of note. The voice is freed once the amplitude
// release time has elapsed. Unknown or already released notes are ignored.
func (e *Engine) NoteOff(note int) {
	if note < 0 || note > 127 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v := &e.voices[note]
	if v.state != voiceHeld {
		return
	}
	if e.sustain {
		v.state = voiceSustained
		return
	}
	e.releaseLocked(uint8(note))
}

func (e *Engine) releaseLocked(note uint8) {
	v := &e.voices[note]
	v.state = voiceReleasing
	release := time.Duration(e.params.Envelopes.Amplitude.Release * float64(time.Second))
	v.deadline = e.now().Add(release)
	if err := e.backend.NoteOff(note); err != nil {
		log.Printf("[engine] note off %d failed: %v", note, err)
	}
}

// SetSustain holds releases while on. Turning it off releases every note whose
// key was lifted in the meantime.
func (e *Engine) SetSustain(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sustain = on
	if on {
		return
	}
	for n := range e.voices {
		if e.voices[n].state == voiceSustained {
			e.releaseLocked(uint8(n))
		}
	}
}

func (e *Engine) Sustain() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sustain
}

// Reap frees every voice whose release ended at or before now and returns how
// many were freed.
func (e *Engine) Reap(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	freed := 0
	for n := range e.voices {
		v := &e.voices[n]
		if v.state != voiceReleasing || v.deadline.After(now) {
			continue
		}
		e.freeLocked(uint8(n))
		freed++
	}
	return freed
}

func (e *Engine) freeLocked(note uint8) {
	e.voices[note] = voice{}
	e.active--
	e.backend.Free(note)
}

// Run reaps released voices until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	t := time.NewTicker(ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Reap(e.now())
		}
	}
}

// Panic drops every voice immediately and tells the backend to silence all
// notes. Release tails may still be heard.
func (e *Engine) Panic() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for n := range e.voices {
		if e.voices[n].state != voiceIdle {
			e.freeLocked(uint8(n))
		}
	}
	e.sustain = false
	if err := e.backend.AllNotesOff(); err != nil {
		log.Printf("[engine] all notes off failed: %v", err)
	}
}

// ActiveVoices is the number of notes being tracked, releasing ones included.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Voices lists the tracked notes in ascending order.
func (e *Engine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Voice, 0, e.active)
	for n, v := range e.voices {
		if v.state == voiceIdle {
			continue
		}
		out = append(out, Voice{
			Note:      uint8(n),
			Velocity:  v.velocity,
			Releasing: v.state == voiceReleasing,
			Started:   v.started,
		})
	}
	return out
}

// Voice reports the voice for note, if one is tracked.
func (e *Engine) Voice(note int) (Voice, bool) {
	if note < 0 || note > 127 {
		return Voice{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.voices[note]
	if v.state == voiceIdle {
		return Voice{}, false
	}
	return Voice{Note: uint8(note), Velocity: v.velocity, Releasing: v.state == voiceReleasing, Started: v.started}, true
}

// WaveformData returns the latest WaveformSize samples of output. The engine
// lock is not taken; backends serve this from a snapshot.
func (e *Engine) WaveformData() []float32 {
	buf := make([]float32, WaveformSize)
	e.backend.Waveform(buf)
	return buf
}

// SpectrumData returns SpectrumSize frequency bins of the latest output.
func (e *Engine) SpectrumData() []complex128 {
	buf := make([]complex128, SpectrumSize)
	e.backend.Spectrum(buf)
	return buf
}

// SpectrumMagnitudes converts SpectrumData to bar heights.
func (e *Engine) SpectrumMagnitudes() []float64 {
	bins := e.SpectrumData()
	re := make([]float64, len(bins))
	im := make([]float64, len(bins))
	for i, c := range bins {
		re[i], im[i] = real(c), imag(c)
	}
	out := make([]float64, len(bins))
	vecmath.Magnitude(out, re, im)
	return out
}

// Loader is implemented by backends that can estimate their render load.
type Loader interface {
	// Load is the fraction (0..1) of each audio period spent rendering.
	Load() float64
}

// Load returns the backend's render load as a percentage, or 0 when the
// backend does not measure it.
func (e *Engine) Load() float64 {
	l, ok := e.backend.(Loader)
	if !ok {
		return 0
	}
	return math.Min(l.Load()*100, 100)
}

// Close silences the backend and releases it.
func (e *Engine) Close() error {
	e.Panic()
	return e.backend.Close()
}
