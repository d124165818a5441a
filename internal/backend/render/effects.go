package render

import (
	"math"

	"timbuk/internal/patch"
)

const maxDelaySeconds = 2

type delayLine struct {
	buf []float64
	pos int
}

func newDelayLine(sampleRate float64) *delayLine {
	return &delayLine{buf: make([]float64, int(sampleRate*maxDelaySeconds)+1)}
}

func (d *delayLine) process(x float64, p patch.Delay, sampleRate float64) float64 {
	n := len(d.buf)
	lag := min(n-1, max(1, int(p.Time*sampleRate)))
	read := d.pos - lag
	if read < 0 {
		read += n
	}
	wet := d.buf[read]
	d.buf[d.pos] = x + wet*p.Feedback
	d.pos = (d.pos + 1) % n
	return x*(1-p.Mix) + wet*p.Mix
}

// comb lengths in samples at 44.1 kHz
var combTunings = []int{1116, 1188, 1277, 1356}

type comb struct {
	buf   []float64
	pos   int
	store float64
}

type reverb struct {
	combs []comb
}

func newReverb(sampleRate float64) *reverb {
	r := &reverb{combs: make([]comb, len(combTunings))}
	for i, n := range combTunings {
		r.combs[i].buf = make([]float64, max(1, int(float64(n)*sampleRate/44100)))
	}
	return r
}

func (r *reverb) process(x, mix float64) float64 {
	if mix == 0 {
		return x
	}
	var wet float64
	for i := range r.combs {
		c := &r.combs[i]
		out := c.buf[c.pos]
		c.store = out*0.8 + c.store*0.2
		c.buf[c.pos] = x + c.store*0.84
		c.pos = (c.pos + 1) % len(c.buf)
		wet += out
	}
	wet /= float64(len(r.combs))
	return x*(1-mix) + wet*mix
}

// saturate is the analog warmth stage: a normalized tanh drive.
func saturate(x, warmth float64) float64 {
	if warmth <= 0 {
		return x
	}
	drive := 1 + 4*warmth
	return math.Tanh(x*drive) / math.Tanh(drive)
}
