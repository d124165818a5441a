package patch

import (
	"fmt"
	"math"
)

// ParamID is the flattened name of one patch field, e.g. "osc1-volume".
type ParamID string

type Group int

const (
	GroupOscillators Group = iota
	GroupFilter
	GroupEnvelopes
	GroupLFO
	GroupEffects
	GroupMaster
)

func (g Group) String() string {
	switch g {
	case GroupOscillators:
		return "oscillators"
	case GroupFilter:
		return "filter"
	case GroupEnvelopes:
		return "envelopes"
	case GroupLFO:
		return "lfo"
	case GroupEffects:
		return "effects"
	case GroupMaster:
		return "master"
	}
	return fmt.Sprintf("group(%d)", int(g))
}

type Kind int

const (
	KindNumber Kind = iota
	KindToggle
	KindChoice
)

// Format selects how a value is rendered for display. It never changes the
// stored value.
type Format int

const (
	FormatDecimal Format = iota
	FormatDecibels
	FormatCents
	FormatInteger
	FormatFrequency
	FormatPercent
	FormatTime
	FormatRate
	FormatSeconds
	FormatToggle
	FormatChoice
)

// Range declares the bounds of a parameter. Step is the UI quantization grid;
// Exponential marks perceptually log-scaled controls.
type Range struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Default     float64 `json:"default"`
	Step        float64 `json:"step"`
	Exponential bool    `json:"exponential,omitempty"`
}

var octaveRange = Range{Min: -2, Max: 2, Default: 0, Step: 1}

// Clamp forces v into [Min, Max]. NaN becomes Default.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Default
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Quantize clamps v and rounds it to the nearest step.
func (r Range) Quantize(v float64) float64 {
	v = r.Clamp(v)
	if r.Step <= 0 {
		return v
	}
	q := math.Round(v/r.Step) * r.Step
	// keep the grid from pushing the value back out of range
	return math.Max(r.Min, math.Min(r.Max, q))
}

// Normalize maps v into 0..1, on a log scale when the range is exponential.
func (r Range) Normalize(v float64) float64 {
	v = r.Clamp(v)
	if r.Max == r.Min {
		return 0
	}
	if r.Exponential && r.Min > 0 {
		return math.Log(v/r.Min) / math.Log(r.Max/r.Min)
	}
	return (v - r.Min) / (r.Max - r.Min)
}

// Denormalize is the inverse of Normalize.
func (r Range) Denormalize(n float64) float64 {
	n = math.Max(0, math.Min(1, n))
	if r.Exponential && r.Min > 0 {
		return r.Min * math.Pow(r.Max/r.Min, n)
	}
	return r.Min + n*(r.Max-r.Min)
}

// Param binds one flattened parameter to its field in Patch.
type Param struct {
	ID      ParamID
	Label   string
	Group   Group
	Kind    Kind
	Range   Range
	Choices []string
	Format  Format

	// Get returns the field as a number; choices are reported as their index
	// (-1 when the stored string is not recognized).
	Get func(*Patch) float64
	// Set stores a number; choices take an index.
	Set func(*Patch, float64)
	// Text returns the raw string of a choice field.
	Text func(*Patch) string
}

// ChoiceIndex returns the index of s among the param's choices.
func (p Param) ChoiceIndex(s string) (int, bool) {
	for i, c := range p.Choices {
		if c == s {
			return i, true
		}
	}
	return -1, false
}

// Params is ordered by group: oscillators, filter, envelopes, lfo, effects,
// master. Applying a patch walks it in this order.
var Params = buildParams()

var paramsByID = func() map[ParamID]int {
	m := make(map[ParamID]int, len(Params))
	for i, p := range Params {
		m[p.ID] = i
	}
	return m
}()

// Lookup finds a parameter by its flattened ID.
func Lookup(id ParamID) (Param, bool) {
	i, ok := paramsByID[id]
	if !ok {
		return Param{}, false
	}
	return Params[i], true
}

// Index returns the position of id in Params, or -1.
func Index(id ParamID) int {
	i, ok := paramsByID[id]
	if !ok {
		return -1
	}
	return i
}

func names[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func choiceIndex(v float64, n int) int {
	i := int(math.Round(v))
	return max(0, min(n-1, i))
}

func number(id, label string, g Group, r Range, f Format, field func(*Patch) *float64) Param {
	if r.Step == 0 {
		r.Step = 0.01
	}
	return Param{
		ID: ParamID(id), Label: label, Group: g, Kind: KindNumber, Range: r, Format: f,
		Get: func(p *Patch) float64 { return *field(p) },
		Set: func(p *Patch, v float64) { *field(p) = v },
	}
}

func envelopeParams(prefix, label string, env func(*Patch) *ADSR, defaults ADSR) []Param {
	return []Param{
		number(prefix+"-attack", label+" Attack", GroupEnvelopes, Range{Min: 0.001, Max: 5, Default: defaults.Attack}, FormatTime,
			func(p *Patch) *float64 { return &env(p).Attack }),
		number(prefix+"-decay", label+" Decay", GroupEnvelopes, Range{Min: 0.001, Max: 5, Default: defaults.Decay}, FormatTime,
			func(p *Patch) *float64 { return &env(p).Decay }),
		number(prefix+"-sustain", label+" Sustain", GroupEnvelopes, Range{Min: 0, Max: 1, Default: defaults.Sustain}, FormatPercent,
			func(p *Patch) *float64 { return &env(p).Sustain }),
		number(prefix+"-release", label+" Release", GroupEnvelopes, Range{Min: 0.01, Max: 10, Default: defaults.Release}, FormatTime,
			func(p *Patch) *float64 { return &env(p).Release }),
	}
}

func oscillatorParams(n int, wave Waveform, muted bool) []Param {
	prefix := fmt.Sprintf("osc%d-", n)
	label := fmt.Sprintf("Osc %d ", n)
	mutedDefault := 0.0
	if muted {
		mutedDefault = 1
	}
	return []Param{
		{
			ID: ParamID(prefix + "waveform"), Label: label + "Waveform", Group: GroupOscillators, Kind: KindChoice,
			Range:   Range{Min: 0, Max: float64(len(Waveforms) - 1), Default: float64(wave.Index()), Step: 1},
			Choices: names(Waveforms), Format: FormatChoice,
			Get:  func(p *Patch) float64 { return float64(p.Osc(n).Waveform.Index()) },
			Set:  func(p *Patch, v float64) { p.Osc(n).Waveform = Waveforms[choiceIndex(v, len(Waveforms))] },
			Text: func(p *Patch) string { return string(p.Osc(n).Waveform) },
		},
		number(prefix+"volume", label+"Volume", GroupOscillators, Range{Min: -60, Max: 0, Default: -6, Step: 0.1}, FormatDecibels,
			func(p *Patch) *float64 { return &p.Osc(n).Volume }),
		{
			ID: ParamID(prefix + "muted"), Label: label + "Mute", Group: GroupOscillators, Kind: KindToggle,
			Range: Range{Min: 0, Max: 1, Default: mutedDefault, Step: 1}, Format: FormatToggle,
			Get: func(p *Patch) float64 {
				if p.Osc(n).Muted {
					return 1
				}
				return 0
			},
			Set: func(p *Patch, v float64) { p.Osc(n).Muted = v >= 0.5 },
		},
		number(prefix+"detune", label+"Detune", GroupOscillators, Range{Min: -100, Max: 100, Default: 0, Step: 1}, FormatCents,
			func(p *Patch) *float64 { return &p.Osc(n).Detune }),
		{
			ID: ParamID(prefix + "octave"), Label: label + "Octave", Group: GroupOscillators, Kind: KindNumber,
			Range: octaveRange, Format: FormatInteger,
			Get: func(p *Patch) float64 { return float64(p.Osc(n).Octave) },
			Set: func(p *Patch, v float64) { p.Osc(n).Octave = int(octaveRange.Quantize(v)) },
		},
	}
}

func buildParams() []Param {
	var ps []Param
	ps = append(ps, oscillatorParams(1, Sine, false)...)
	ps = append(ps, oscillatorParams(2, Sawtooth, true)...)

	ps = append(ps,
		Param{
			ID: "filter-type", Label: "Filter Type", Group: GroupFilter, Kind: KindChoice,
			Range:   Range{Min: 0, Max: float64(len(FilterTypes) - 1), Default: 0, Step: 1},
			Choices: names(FilterTypes), Format: FormatChoice,
			Get:  func(p *Patch) float64 { return float64(p.Filter.Type.Index()) },
			Set:  func(p *Patch, v float64) { p.Filter.Type = FilterTypes[choiceIndex(v, len(FilterTypes))] },
			Text: func(p *Patch) string { return string(p.Filter.Type) },
		},
		number("filter-cutoff", "Cutoff", GroupFilter, Range{Min: 20, Max: 20000, Default: 1000, Step: 1, Exponential: true}, FormatFrequency,
			func(p *Patch) *float64 { return &p.Filter.Cutoff }),
		number("filter-resonance", "Resonance", GroupFilter, Range{Min: 0.1, Max: 30, Default: 1, Step: 0.1}, FormatDecimal,
			func(p *Patch) *float64 { return &p.Filter.Resonance }),
		number("filter-env", "Filter Env Amount", GroupFilter, Range{Min: 0, Max: 1, Default: 0}, FormatPercent,
			func(p *Patch) *float64 { return &p.Filter.EnvelopeAmount }),
	)

	ps = append(ps, envelopeParams("amp", "Amp", func(p *Patch) *ADSR { return &p.Envelopes.Amplitude },
		ADSR{Attack: 0.01, Decay: 0.1, Sustain: 0.3, Release: 1})...)
	ps = append(ps, envelopeParams("filter", "Filter", func(p *Patch) *ADSR { return &p.Envelopes.Filter },
		ADSR{Attack: 0.1, Decay: 0.2, Sustain: 0.2, Release: 0.8})...)

	ps = append(ps,
		number("lfo-rate", "LFO Rate", GroupLFO, Range{Min: 0.1, Max: 20, Default: 1}, FormatRate,
			func(p *Patch) *float64 { return &p.LFO.Rate }),
		number("lfo-depth", "LFO Depth", GroupLFO, Range{Min: 0, Max: 1, Default: 0}, FormatPercent,
			func(p *Patch) *float64 { return &p.LFO.Depth }),
		Param{
			ID: "lfo-target", Label: "LFO Target", Group: GroupLFO, Kind: KindChoice,
			Range:   Range{Min: 0, Max: float64(len(LFOTargets) - 1), Default: 0, Step: 1},
			Choices: names(LFOTargets), Format: FormatChoice,
			Get:  func(p *Patch) float64 { return float64(p.LFO.Target.Index()) },
			Set:  func(p *Patch, v float64) { p.LFO.Target = LFOTargets[choiceIndex(v, len(LFOTargets))] },
			Text: func(p *Patch) string { return string(p.LFO.Target) },
		},
	)

	ps = append(ps,
		number("reverb-mix", "Reverb Mix", GroupEffects, Range{Min: 0, Max: 1, Default: 0}, FormatPercent,
			func(p *Patch) *float64 { return &p.Effects.Reverb.Mix }),
		number("delay-time", "Delay Time", GroupEffects, Range{Min: 0.01, Max: 2, Default: 0.125, Step: 0.001}, FormatSeconds,
			func(p *Patch) *float64 { return &p.Effects.Delay.Time }),
		number("delay-feedback", "Delay Feedback", GroupEffects, Range{Min: 0, Max: 0.95, Default: 0.3}, FormatPercent,
			func(p *Patch) *float64 { return &p.Effects.Delay.Feedback }),
		number("delay-mix", "Delay Mix", GroupEffects, Range{Min: 0, Max: 1, Default: 0}, FormatPercent,
			func(p *Patch) *float64 { return &p.Effects.Delay.Mix }),
	)

	ps = append(ps,
		number("master-volume", "Master Volume", GroupMaster, Range{Min: -60, Max: 12, Default: 0, Step: 0.1}, FormatDecibels,
			func(p *Patch) *float64 { return &p.Master.Volume }),
		number("analog-warmth", "Analog Warmth", GroupMaster, Range{Min: 0, Max: 1, Default: 0}, FormatPercent,
			func(p *Patch) *float64 { return &p.Master.Warmth }),
	)

	return ps
}
