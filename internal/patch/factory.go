package patch

const factoryAuthor = "Sam Soko"

// Init is the clean starting patch used by "new patch".
func Init() Patch {
	return Default()
}

func osc(w Waveform, volume, detune float64, octave int) Oscillator {
	return Oscillator{Waveform: w, Volume: volume, Detune: detune, Octave: octave}
}

func adsr(a, d, s, r float64) ADSR {
	return ADSR{Attack: a, Decay: d, Sustain: s, Release: r}
}

// Factory returns the built-in patches in display order. The slice is freshly
// allocated on each call.
func Factory() []File {
	entry := func(name, category, description string, tags []string, data Patch) File {
		return File{
			Name:        name,
			Category:    category,
			Author:      factoryAuthor,
			Description: description,
			Tags:        tags,
			Data:        data,
		}
	}

	return []File{
		entry("Init", "Init", "Clean initial patch", []string{"basic", "init"}, Init()),
		entry("Warm Bass", "Bass", "Classic analog bass with warmth", []string{"bass", "warm", "analog"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Sawtooth, -3, -2, -2), Osc2: osc(Pulse, -6, 2, -1)},
			Filter:      Filter{Type: Lowpass, Cutoff: 500, Resonance: 3, EnvelopeAmount: 0.6},
			Envelopes:   Envelopes{Amplitude: adsr(0.005, 0.2, 0.7, 0.3), Filter: adsr(0.01, 0.4, 0.3, 0.6)},
			LFO:         LFO{Rate: 3, Depth: 0.15, Target: TargetFilter},
			Effects:     Effects{Reverb: Reverb{Mix: 0.1}, Delay: Delay{Time: 0.083, Feedback: 0.2, Mix: 0.05}},
			Master:      Master{Volume: -3, Warmth: 0.4},
		}),
		entry("Bright Lead", "Lead", "Cutting lead for solos", []string{"lead", "bright", "solo"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Sawtooth, -3, -1, 0), Osc2: osc(Square, -3, 5, 0)},
			Filter:      Filter{Type: Lowpass, Cutoff: 2500, Resonance: 2.5, EnvelopeAmount: 0.4},
			Envelopes:   Envelopes{Amplitude: adsr(0.02, 0.15, 0.6, 0.4), Filter: adsr(0.05, 0.3, 0.4, 0.7)},
			LFO:         LFO{Rate: 6, Depth: 0.25, Target: TargetPitch},
			Effects:     Effects{Reverb: Reverb{Mix: 0.2}, Delay: Delay{Time: 0.25, Feedback: 0.4, Mix: 0.1}},
			Master:      Master{Volume: -6, Warmth: 0.2},
		}),
		entry("Ethereal Pad", "Pad", "Lush atmospheric pad", []string{"pad", "atmospheric", "ethereal"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Sine, -9, -5, 0), Osc2: osc(Triangle, -9, 5, 0)},
			Filter:      Filter{Type: Lowpass, Cutoff: 1800, Resonance: 1.2, EnvelopeAmount: 0.3},
			Envelopes:   Envelopes{Amplitude: adsr(2, 3, 0.8, 4), Filter: adsr(2.5, 3.5, 0.5, 5)},
			LFO:         LFO{Rate: 0.3, Depth: 0.2, Target: TargetFilter},
			Effects:     Effects{Reverb: Reverb{Mix: 0.5}, Delay: Delay{Time: 0.75, Feedback: 0.7, Mix: 0.3}},
			Master:      Master{Volume: -9, Warmth: 0.5},
		}),
		entry("Techno Arp", "Arpeggio", "Driving techno arpeggio", []string{"arp", "techno", "driving"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Square, -6, 0, 1), Osc2: osc(Sawtooth, -12, -7, 0)},
			Filter:      Filter{Type: Bandpass, Cutoff: 1500, Resonance: 6, EnvelopeAmount: 0.7},
			Envelopes:   Envelopes{Amplitude: adsr(0.001, 0.1, 0, 0.05), Filter: adsr(0.01, 0.2, 0, 0.1)},
			LFO:         LFO{Rate: 8, Depth: 0.3, Target: TargetFilter},
			Effects:     Effects{Reverb: Reverb{Mix: 0.1}, Delay: Delay{Time: 0.167, Feedback: 0.4, Mix: 0.2}},
			Master:      Master{Volume: -9, Warmth: 0.3},
		}),
		entry("Vintage Strings", "Strings", "Classic string ensemble sound", []string{"strings", "vintage", "ensemble"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Sawtooth, -12, -3, 0), Osc2: osc(Sawtooth, -12, 3, 0)},
			Filter:      Filter{Type: Lowpass, Cutoff: 2000, Resonance: 1.5, EnvelopeAmount: 0.2},
			Envelopes:   Envelopes{Amplitude: adsr(0.8, 1.5, 0.6, 2), Filter: adsr(1, 2, 0.4, 3)},
			LFO:         LFO{Rate: 1.5, Depth: 0.1, Target: TargetAmplitude},
			Effects:     Effects{Reverb: Reverb{Mix: 0.3}, Delay: Delay{Time: 0.333, Feedback: 0.5, Mix: 0.15}},
			Master:      Master{Volume: -12, Warmth: 0.6},
		}),
		entry("Synth Brass", "Brass", "Bold synthetic brass", []string{"brass", "bold", "synthetic"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Sawtooth, -3, 0, -1), Osc2: osc(Pulse, -3, 12, 0)},
			Filter:      Filter{Type: Lowpass, Cutoff: 1200, Resonance: 4, EnvelopeAmount: 0.5},
			Envelopes:   Envelopes{Amplitude: adsr(0.05, 0.3, 0.8, 0.2), Filter: adsr(0.1, 0.5, 0.6, 0.3)},
			LFO:         LFO{Rate: 4, Depth: 0.2, Target: TargetAmplitude},
			Effects:     Effects{Reverb: Reverb{Mix: 0.15}, Delay: Delay{Time: 0.2, Feedback: 0.3, Mix: 0.05}},
			Master:      Master{Volume: -6, Warmth: 0.4},
		}),
		entry("Cosmic FX", "FX", "Spacey effects and textures", []string{"fx", "space", "texture"}, Patch{
			Oscillators: Oscillators{Osc1: osc(Triangle, -12, -10, 1), Osc2: osc(Sine, -12, 10, 2)},
			Filter:      Filter{Type: Notch, Cutoff: 3000, Resonance: 2, EnvelopeAmount: 0.8},
			Envelopes:   Envelopes{Amplitude: adsr(3, 4, 0.2, 5), Filter: adsr(2, 5, 0, 6)},
			LFO:         LFO{Rate: 0.2, Depth: 0.4, Target: TargetFilter},
			Effects:     Effects{Reverb: Reverb{Mix: 0.7}, Delay: Delay{Time: 1, Feedback: 0.8, Mix: 0.4}},
			Master:      Master{Volume: -15, Warmth: 0.7},
		}),
	}
}
