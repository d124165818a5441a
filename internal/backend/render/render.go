// Package render is a small in-process synthesizer used as the default audio
// backend. Control calls never block the audio callback: parameters are
// published through atomics and note events through a buffered channel.
package render

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"timbuk/internal/patch"
)

const (
	maxVoices   = 16
	eventBuffer = 1024
	blockSize   = 256
	outputGain  = 0.3
	maxParams   = 64
)

type eventKind uint8

const (
	evNoteOn eventKind = iota
	evNoteOff
	evFree
	evAllOff
)

type event struct {
	kind     eventKind
	note     uint8
	velocity uint8
}

// Renderer produces mono samples from the current parameters and note events.
// Process must only be called from one goroutine.
type Renderer struct {
	sampleRate float64
	params     [maxParams]atomic.Uint64
	events     chan event
	dropped    atomic.Uint64
	load       atomic.Uint64

	// audio thread state
	cur    patch.Patch
	voices [maxVoices]voice
	age    uint64
	lfo    float64
	delay  *delayLine
	reverb *reverb
	scope  *scope
}

// NewRenderer allocates every buffer the audio thread will use.
func NewRenderer(sampleRate int) *Renderer {
	if len(patch.Params) > maxParams {
		panic(fmt.Sprintf("render: %d parameters do not fit the register file", len(patch.Params)))
	}
	sr := float64(sampleRate)
	r := &Renderer{
		sampleRate: sr,
		events:     make(chan event, eventBuffer),
		delay:      newDelayLine(sr),
		reverb:     newReverb(sr),
		scope:      newScope(),
	}
	def := patch.Default()
	for i, prm := range patch.Params {
		r.params[i].Store(math.Float64bits(prm.Get(&def)))
	}
	return r
}

func (r *Renderer) post(ev event) {
	select {
	case r.events <- ev:
	default:
		if r.dropped.Add(1) == 1 {
			log.Println("[render] event queue full, dropping note events")
		}
	}
}

func (r *Renderer) NoteOn(note, velocity uint8) error {
	r.post(event{kind: evNoteOn, note: note, velocity: velocity})
	return nil
}

func (r *Renderer) NoteOff(note uint8) error {
	r.post(event{kind: evNoteOff, note: note})
	return nil
}

func (r *Renderer) Free(note uint8) {
	r.post(event{kind: evFree, note: note})
}

func (r *Renderer) AllNotesOff() error {
	r.post(event{kind: evAllOff})
	return nil
}

func (r *Renderer) SetParam(id patch.ParamID, value float64) error {
	i := patch.Index(id)
	if i < 0 {
		return fmt.Errorf("render: unknown parameter %s", id)
	}
	r.params[i].Store(math.Float64bits(value))
	return nil
}

// Param reads the register for id.
func (r *Renderer) Param(id patch.ParamID) float64 {
	i := patch.Index(id)
	if i < 0 {
		return math.NaN()
	}
	return math.Float64frombits(r.params[i].Load())
}

func (r *Renderer) Waveform(dst []float32) int {
	return r.scope.snapshot(dst)
}

func (r *Renderer) Spectrum(dst []complex128) int {
	return r.scope.spectrum(dst)
}

// Load is the share of real time spent in Process over the last block.
func (r *Renderer) Load() float64 {
	return math.Float64frombits(r.load.Load())
}

func (r *Renderer) Close() error { return nil }

// activeVoices counts sounding voices. Audio thread only.
func (r *Renderer) activeVoices() int {
	n := 0
	for i := range r.voices {
		if r.voices[i].active() {
			n++
		}
	}
	return n
}

func (r *Renderer) refresh() {
	for i, prm := range patch.Params {
		prm.Set(&r.cur, math.Float64frombits(r.params[i].Load()))
	}
}

func (r *Renderer) drain() {
	for {
		select {
		case ev := <-r.events:
			r.handle(ev)
		default:
			return
		}
	}
}

func (r *Renderer) handle(ev event) {
	switch ev.kind {
	case evNoteOn:
		r.age++
		r.allocate(ev.note).start(ev.note, ev.velocity, r.age)
	case evNoteOff, evFree:
		for i := range r.voices {
			if v := &r.voices[i]; v.active() && v.note == ev.note {
				v.stop()
			}
		}
	case evAllOff:
		for i := range r.voices {
			r.voices[i].stop()
		}
	}
}

// allocate returns the voice already playing note, a free voice, or the
// oldest one.
func (r *Renderer) allocate(note uint8) *voice {
	var free, oldest *voice
	for i := range r.voices {
		v := &r.voices[i]
		if v.active() && v.note == note {
			return v
		}
		if !v.active() && free == nil {
			free = v
		}
		if oldest == nil || v.age < oldest.age {
			oldest = v
		}
	}
	if free != nil {
		return free
	}
	return oldest
}

// Process fills out with mono samples in -1..1.
func (r *Renderer) Process(out []float32) {
	for len(out) > 0 {
		n := min(len(out), blockSize)
		r.processBlock(out[:n])
		r.scope.push(out[:n])
		out = out[n:]
	}
}

func (r *Renderer) processBlock(out []float32) {
	start := time.Now()
	r.refresh()
	r.drain()

	p := &r.cur
	dt := 1 / r.sampleRate
	gains := [2]float64{oscGain(p.Oscillators.Osc1), oscGain(p.Oscillators.Osc2)}
	master := dbToGain(p.Master.Volume) * outputGain
	nyquist := 0.45 * r.sampleRate

	for i := range out {
		r.lfo += p.LFO.Rate * dt
		if r.lfo >= 1 {
			r.lfo -= 1
		}
		lfo := math.Sin(2*math.Pi*r.lfo) * p.LFO.Depth

		var pitchCents, filterOct, ampMod float64
		switch p.LFO.Target {
		case patch.TargetPitch:
			pitchCents = lfo * 100
		case patch.TargetFilter:
			filterOct = lfo * 2
		case patch.TargetAmplitude:
			ampMod = (lfo + p.LFO.Depth) / 2
		}

		var mix float64
		for vi := range r.voices {
			v := &r.voices[vi]
			if !v.active() {
				continue
			}
			var s float64
			for o := 0; o < 2; o++ {
				osc := *p.Osc(o + 1)
				s += oscillate(osc.Waveform, v.phase[o]) * gains[o]
				v.phase[o] += noteFreq(v.note, osc, pitchCents) * dt
				v.phase[o] -= math.Floor(v.phase[o])
			}

			fenv := v.filt.next(p.Envelopes.Filter, dt)
			cutoff := p.Filter.Cutoff * math.Pow(2, fenv*p.Filter.EnvelopeAmount*4+filterOct)
			cutoff = math.Max(20, math.Min(nyquist, cutoff))
			s = v.filter.process(s, cutoff, p.Filter.Resonance, p.Filter.Type, r.sampleRate)

			mix += s * v.amp.next(p.Envelopes.Amplitude, dt) * v.gain
		}
		mix *= 1 - ampMod

		mix = r.delay.process(mix, p.Effects.Delay, r.sampleRate)
		mix = r.reverb.process(mix, p.Effects.Reverb.Mix)
		mix = saturate(mix*master, p.Master.Warmth)
		out[i] = float32(math.Max(-1, math.Min(1, mix)))
	}

	period := float64(len(out)) / r.sampleRate
	r.load.Store(math.Float64bits(time.Since(start).Seconds() / period))
}
