package patch

import "math/rand/v2"

// RandomizeOscillators gives both oscillators a random shape, level, detune
// and octave. Mute switches are left alone. Values stay on each control's
// step grid.
func (p *Patch) RandomizeOscillators(r *rand.Rand) {
	for _, prm := range Params {
		if prm.Group != GroupOscillators {
			continue
		}
		switch prm.Kind {
		case KindToggle:
			continue
		case KindChoice:
			prm.Set(p, float64(r.IntN(len(prm.Choices))))
		default:
			v := prm.Range.Min + r.Float64()*(prm.Range.Max-prm.Range.Min)
			prm.Set(p, prm.Range.Quantize(v))
		}
	}
}
