package engine

import (
	"fmt"
	"log"

	"timbuk/internal/patch"
)

func oscParam(n int, field string) patch.ParamID {
	return patch.ParamID(fmt.Sprintf("osc%d-%s", n, field))
}

func (e *Engine) setOrLog(id patch.ParamID, v float64) {
	if _, err := e.Set(id, v); err != nil {
		log.Printf("[engine] %v", err)
	}
}

func (e *Engine) SetOscWaveform(n int, w patch.Waveform) error {
	return e.SetChoice(oscParam(n, "waveform"), string(w))
}

func (e *Engine) SetOscVolume(n int, db float64) { e.setOrLog(oscParam(n, "volume"), db) }
func (e *Engine) SetOscDetune(n int, cents float64) {
	e.setOrLog(oscParam(n, "detune"), cents)
}
func (e *Engine) SetOscOctave(n int, octave int) { e.setOrLog(oscParam(n, "octave"), float64(octave)) }

func (e *Engine) SetOscMuted(n int, muted bool) {
	v := 0.0
	if muted {
		v = 1
	}
	e.setOrLog(oscParam(n, "muted"), v)
}

func (e *Engine) SetFilterType(t patch.FilterType) error {
	return e.SetChoice("filter-type", string(t))
}

func (e *Engine) SetFilterCutoff(hz float64)        { e.setOrLog("filter-cutoff", hz) }
func (e *Engine) SetFilterResonance(q float64)      { e.setOrLog("filter-resonance", q) }
func (e *Engine) SetFilterEnvelopeAmount(a float64) { e.setOrLog("filter-env", a) }

func (e *Engine) setEnvelope(prefix string, env patch.ADSR) {
	e.setOrLog(patch.ParamID(prefix+"-attack"), env.Attack)
	e.setOrLog(patch.ParamID(prefix+"-decay"), env.Decay)
	e.setOrLog(patch.ParamID(prefix+"-sustain"), env.Sustain)
	e.setOrLog(patch.ParamID(prefix+"-release"), env.Release)
}

func (e *Engine) SetAmplitudeEnvelope(env patch.ADSR) { e.setEnvelope("amp", env) }
func (e *Engine) SetFilterEnvelope(env patch.ADSR)    { e.setEnvelope("filter", env) }

func (e *Engine) SetLFORate(hz float64) { e.setOrLog("lfo-rate", hz) }
func (e *Engine) SetLFODepth(d float64) { e.setOrLog("lfo-depth", d) }
func (e *Engine) SetLFOTarget(t patch.LFOTarget) error {
	return e.SetChoice("lfo-target", string(t))
}

func (e *Engine) SetReverbMix(mix float64) { e.setOrLog("reverb-mix", mix) }

func (e *Engine) SetDelay(d patch.Delay) {
	e.setOrLog("delay-time", d.Time)
	e.setOrLog("delay-feedback", d.Feedback)
	e.setOrLog("delay-mix", d.Mix)
}

func (e *Engine) SetMasterVolume(db float64) { e.setOrLog("master-volume", db) }
func (e *Engine) SetWarmth(w float64)        { e.setOrLog("analog-warmth", w) }

// Typed getters read the same registers as Serialize.

func (e *Engine) Oscillator(n int) patch.Oscillator {
	p := e.Serialize()
	return *p.Osc(n)
}

func (e *Engine) Filter() patch.Filter       { return e.Serialize().Filter }
func (e *Engine) Envelopes() patch.Envelopes { return e.Serialize().Envelopes }
func (e *Engine) LFO() patch.LFO             { return e.Serialize().LFO }
func (e *Engine) Effects() patch.Effects     { return e.Serialize().Effects }
func (e *Engine) Master() patch.Master       { return e.Serialize().Master }
