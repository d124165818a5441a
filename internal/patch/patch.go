// Package patch describes the complete set of synthesis parameters for one sound
// and the JSON documents patches are stored and exchanged in.
package patch

import (
	"slices"

	apperrors "timbuk/internal/errors"
)

type Waveform string

const (
	Sine     Waveform = "sine"
	Sawtooth Waveform = "sawtooth"
	Square   Waveform = "square"
	Triangle Waveform = "triangle"
	Pulse    Waveform = "pulse"
)

// Waveforms lists the oscillator shapes in choice-index order.
var Waveforms = []Waveform{Sine, Sawtooth, Square, Triangle, Pulse}

func (w Waveform) Index() int  { return slices.Index(Waveforms, w) }
func (w Waveform) Valid() bool { return w.Index() >= 0 }

type FilterType string

const (
	Lowpass  FilterType = "lowpass"
	Highpass FilterType = "highpass"
	Bandpass FilterType = "bandpass"
	Notch    FilterType = "notch"
)

var FilterTypes = []FilterType{Lowpass, Highpass, Bandpass, Notch}

func (f FilterType) Index() int  { return slices.Index(FilterTypes, f) }
func (f FilterType) Valid() bool { return f.Index() >= 0 }

// LFOTarget selects what the LFO modulates.
type LFOTarget string

const (
	TargetNone      LFOTarget = "none"
	TargetPitch     LFOTarget = "pitch"
	TargetFilter    LFOTarget = "filter"
	TargetAmplitude LFOTarget = "amplitude"
)

var LFOTargets = []LFOTarget{TargetNone, TargetPitch, TargetFilter, TargetAmplitude}

func (t LFOTarget) Index() int  { return slices.Index(LFOTargets, t) }
func (t LFOTarget) Valid() bool { return t.Index() >= 0 }

type Oscillator struct {
	Waveform Waveform `json:"waveform"`
	Volume   float64  `json:"volume"` // dB, kept while muted
	Muted    bool     `json:"muted"`
	Detune   float64  `json:"detune"` // cents
	Octave   int      `json:"octave"`
}

type Oscillators struct {
	Osc1 Oscillator `json:"osc1"`
	Osc2 Oscillator `json:"osc2"`
}

type Filter struct {
	Type           FilterType `json:"type"`
	Cutoff         float64    `json:"cutoff"`
	Resonance      float64    `json:"resonance"`
	EnvelopeAmount float64    `json:"envelopeAmount"`
}

// ADSR is an attack/decay/sustain/release envelope. Times are in seconds,
// sustain is a level in 0..1.
type ADSR struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

type Envelopes struct {
	Amplitude ADSR `json:"amplitude"`
	Filter    ADSR `json:"filter"`
}

type LFO struct {
	Rate   float64   `json:"rate"`
	Depth  float64   `json:"depth"`
	Target LFOTarget `json:"target"`
}

type Reverb struct {
	Mix float64 `json:"mix"`
}

type Delay struct {
	Time     float64 `json:"time"`
	Feedback float64 `json:"feedback"`
	Mix      float64 `json:"mix"`
}

type Effects struct {
	Reverb Reverb `json:"reverb"`
	Delay  Delay  `json:"delay"`
}

type Master struct {
	Volume float64 `json:"volume"` // dB
	Warmth float64 `json:"warmth"`
}

// Patch is always fully populated; see UnmarshalJSON for how partial documents
// are rejected.
type Patch struct {
	Oscillators Oscillators `json:"oscillators"`
	Filter      Filter      `json:"filter"`
	Envelopes   Envelopes   `json:"envelopes"`
	LFO         LFO         `json:"lfo"`
	Effects     Effects     `json:"effects"`
	Master      Master      `json:"master"`
}

// Osc returns oscillator n (1 or 2).
func (p *Patch) Osc(n int) *Oscillator {
	if n == 2 {
		return &p.Oscillators.Osc2
	}
	return &p.Oscillators.Osc1
}

// Validate checks the enum fields. Numeric fields are never rejected.
func (p Patch) Validate() error {
	for _, prm := range Params {
		if prm.Kind != KindChoice {
			continue
		}
		if prm.Get(&p) < 0 {
			return apperrors.NewEnumError(string(prm.ID), prm.Text(&p))
		}
	}
	return nil
}

// Clamp returns a copy of p with every numeric field forced into its range.
func (p Patch) Clamp() Patch {
	for _, prm := range Params {
		if prm.Kind == KindChoice {
			continue
		}
		prm.Set(&p, prm.Range.Clamp(prm.Get(&p)))
	}
	return p
}

// Default builds a patch from the default value of every parameter.
func Default() Patch {
	var p Patch
	for _, prm := range Params {
		prm.Set(&p, prm.Range.Default)
	}
	return p
}
