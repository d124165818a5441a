package patch

import (
	"encoding/json"
	"fmt"

	apperrors "timbuk/internal/errors"
)

// level decodes an oscillator volume. JSON null is how -Infinity was written by
// older exports and means the oscillator is muted.
type level struct {
	set  bool
	null bool
	db   float64
}

func (l *level) UnmarshalJSON(b []byte) error {
	l.set = true
	if string(b) == "null" {
		l.null = true
		return nil
	}
	return json.Unmarshal(b, &l.db)
}

type wireOscillator struct {
	Waveform *string  `json:"waveform"`
	Volume   level    `json:"volume"`
	Muted    *bool    `json:"muted"`
	Detune   *float64 `json:"detune"`
	Octave   *float64 `json:"octave"`
}

type wireADSR struct {
	Attack  *float64 `json:"attack"`
	Decay   *float64 `json:"decay"`
	Sustain *float64 `json:"sustain"`
	Release *float64 `json:"release"`
}

type wirePatch struct {
	Oscillators *struct {
		Osc1 *wireOscillator `json:"osc1"`
		Osc2 *wireOscillator `json:"osc2"`
	} `json:"oscillators"`
	Filter *struct {
		Type           *string  `json:"type"`
		Cutoff         *float64 `json:"cutoff"`
		Resonance      *float64 `json:"resonance"`
		EnvelopeAmount *float64 `json:"envelopeAmount"`
	} `json:"filter"`
	Envelopes *struct {
		Amplitude *wireADSR `json:"amplitude"`
		Filter    *wireADSR `json:"filter"`
	} `json:"envelopes"`
	LFO *struct {
		Rate   *float64 `json:"rate"`
		Depth  *float64 `json:"depth"`
		Target *string  `json:"target"`
	} `json:"lfo"`
	Effects *struct {
		Reverb *struct {
			Mix *float64 `json:"mix"`
		} `json:"reverb"`
		Delay *struct {
			Time     *float64 `json:"time"`
			Feedback *float64 `json:"feedback"`
			Mix      *float64 `json:"mix"`
		} `json:"delay"`
	} `json:"effects"`
	Master *struct {
		Volume *float64 `json:"volume"`
		Warmth *float64 `json:"warmth"`
	} `json:"master"`
}

// decoder collects the first missing path while copying fields.
type decoder struct {
	err error
}

func (d *decoder) present(path string, ok bool) bool {
	if !ok && d.err == nil {
		d.err = apperrors.Missing(path)
	}
	return ok && d.err == nil
}

func (d *decoder) num(path string, src *float64, dst *float64) {
	if d.present(path, src != nil) {
		*dst = *src
	}
}

func (d *decoder) str(path string, src *string, dst *string) {
	if d.present(path, src != nil) {
		*dst = *src
	}
}

func (d *decoder) oscillator(path string, w *wireOscillator, o *Oscillator) {
	if !d.present(path, w != nil) {
		return
	}
	var wave string
	d.str(path+".waveform", w.Waveform, &wave)
	o.Waveform = Waveform(wave)

	if d.present(path+".volume", w.Volume.set) {
		if w.Volume.null {
			o.Volume = -60
			o.Muted = true
		} else {
			o.Volume = w.Volume.db
		}
	}
	if w.Muted != nil {
		o.Muted = o.Muted || *w.Muted
	}

	d.num(path+".detune", w.Detune, &o.Detune)
	var octave float64
	d.num(path+".octave", w.Octave, &octave)
	// clamp before converting so huge values cannot wrap
	o.Octave = int(octaveRange.Quantize(octave))
}

func (d *decoder) adsr(path string, w *wireADSR, a *ADSR) {
	if !d.present(path, w != nil) {
		return
	}
	d.num(path+".attack", w.Attack, &a.Attack)
	d.num(path+".decay", w.Decay, &a.Decay)
	d.num(path+".sustain", w.Sustain, &a.Sustain)
	d.num(path+".release", w.Release, &a.Release)
}

// UnmarshalJSON decodes a patch and rejects any document with a missing branch
// or field. Enum strings are kept as-is; Validate reports unknown ones.
func (p *Patch) UnmarshalJSON(b []byte) error {
	var w wirePatch
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}

	var out Patch
	d := &decoder{}

	if d.present("oscillators", w.Oscillators != nil) {
		d.oscillator("oscillators.osc1", w.Oscillators.Osc1, &out.Oscillators.Osc1)
		d.oscillator("oscillators.osc2", w.Oscillators.Osc2, &out.Oscillators.Osc2)
	}

	if f := w.Filter; d.present("filter", f != nil) {
		var typ string
		d.str("filter.type", f.Type, &typ)
		out.Filter.Type = FilterType(typ)
		d.num("filter.cutoff", f.Cutoff, &out.Filter.Cutoff)
		d.num("filter.resonance", f.Resonance, &out.Filter.Resonance)
		d.num("filter.envelopeAmount", f.EnvelopeAmount, &out.Filter.EnvelopeAmount)
	}

	if e := w.Envelopes; d.present("envelopes", e != nil) {
		d.adsr("envelopes.amplitude", e.Amplitude, &out.Envelopes.Amplitude)
		d.adsr("envelopes.filter", e.Filter, &out.Envelopes.Filter)
	}

	if l := w.LFO; d.present("lfo", l != nil) {
		d.num("lfo.rate", l.Rate, &out.LFO.Rate)
		d.num("lfo.depth", l.Depth, &out.LFO.Depth)
		var target string
		d.str("lfo.target", l.Target, &target)
		out.LFO.Target = LFOTarget(target)
	}

	if fx := w.Effects; d.present("effects", fx != nil) {
		if r := fx.Reverb; d.present("effects.reverb", r != nil) {
			d.num("effects.reverb.mix", r.Mix, &out.Effects.Reverb.Mix)
		}
		if dl := fx.Delay; d.present("effects.delay", dl != nil) {
			d.num("effects.delay.time", dl.Time, &out.Effects.Delay.Time)
			d.num("effects.delay.feedback", dl.Feedback, &out.Effects.Delay.Feedback)
			d.num("effects.delay.mix", dl.Mix, &out.Effects.Delay.Mix)
		}
	}

	if m := w.Master; d.present("master", m != nil) {
		d.num("master.volume", m.Volume, &out.Master.Volume)
		d.num("master.warmth", m.Warmth, &out.Master.Warmth)
	}

	if d.err != nil {
		return d.err
	}
	*p = out
	return nil
}

// Decode parses a patch document.
func Decode(b []byte) (Patch, error) {
	var p Patch
	err := json.Unmarshal(b, &p)
	return p, err
}
