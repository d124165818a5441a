package render

import (
	"math"

	"timbuk/internal/patch"
)

type stage uint8

const (
	stageIdle stage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

// envelope is a linear ADSR advanced one sample at a time.
type envelope struct {
	stage       stage
	level       float64
	releaseFrom float64
}

func (e *envelope) trigger() {
	e.stage = stageAttack
}

func (e *envelope) release() {
	if e.stage == stageIdle || e.stage == stageRelease {
		return
	}
	e.stage = stageRelease
	e.releaseFrom = e.level
}

func (e *envelope) next(a patch.ADSR, dt float64) float64 {
	switch e.stage {
	case stageAttack:
		e.level += dt / math.Max(a.Attack, 1e-4)
		if e.level >= 1 {
			e.level = 1
			e.stage = stageDecay
		}
	case stageDecay:
		e.level -= (1 - a.Sustain) * dt / math.Max(a.Decay, 1e-4)
		if e.level <= a.Sustain {
			e.level = a.Sustain
			e.stage = stageSustain
		}
	case stageSustain:
		e.level = a.Sustain
	case stageRelease:
		e.level -= e.releaseFrom * dt / math.Max(a.Release, 1e-4)
		if e.level <= 0 {
			e.level = 0
			e.stage = stageIdle
		}
	}
	return e.level
}

func oscillate(w patch.Waveform, phase float64) float64 {
	switch w {
	case patch.Sawtooth:
		return 2*phase - 1
	case patch.Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case patch.Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	case patch.Pulse:
		if phase < 0.25 {
			return 1
		}
		return -1
	}
	return math.Sin(2 * math.Pi * phase)
}

// svf is a topology-preserving state variable filter.
type svf struct {
	ic1, ic2 float64
}

func (f *svf) process(x, cutoff, q float64, typ patch.FilterType, sampleRate float64) float64 {
	g := math.Tan(math.Pi * cutoff / sampleRate)
	k := 1 / q
	a1 := 1 / (1 + g*(g+k))
	a2 := g * a1
	a3 := g * a2

	v3 := x - f.ic2
	v1 := a1*f.ic1 + a2*v3
	v2 := f.ic2 + a2*f.ic1 + a3*v3
	f.ic1 = 2*v1 - f.ic1
	f.ic2 = 2*v2 - f.ic2

	low, band := v2, v1
	high := x - k*band - low
	switch typ {
	case patch.Highpass:
		return high
	case patch.Bandpass:
		return band
	case patch.Notch:
		return low + high
	}
	return low
}

type voice struct {
	note   uint8
	gain   float64
	phase  [2]float64
	amp    envelope
	filt   envelope
	filter svf
	age    uint64
}

func (v *voice) active() bool {
	return v.amp.stage != stageIdle
}

func (v *voice) start(note, velocity uint8, age uint64) {
	if v.note != note || !v.active() {
		*v = voice{}
	}
	v.note = note
	// -20 dB at the softest velocity, 0 dB at the hardest
	v.gain = dbToGain(-20 + 20*float64(velocity)/127)
	v.age = age
	v.amp.trigger()
	v.filt.trigger()
}

func (v *voice) stop() {
	v.amp.release()
	v.filt.release()
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

func oscGain(o patch.Oscillator) float64 {
	if o.Muted {
		return 0
	}
	return dbToGain(o.Volume)
}

func noteFreq(note uint8, o patch.Oscillator, cents float64) float64 {
	semis := float64(int(note)-69) + 12*float64(o.Octave) + (o.Detune+cents)/100
	return 440 * math.Pow(2, semis/12)
}
