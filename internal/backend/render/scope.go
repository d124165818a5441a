package render

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"
	"github.com/mjibson/go-dsp/fft"
)

const (
	scopeSize = 512
	freshBit  = 4
)

// scope is a triple buffer of the most recent scopeSize output samples. The
// audio thread only ever writes and swaps; readers never make it wait.
type scope struct {
	bufs [3][scopeSize]float32

	// index of the published buffer, plus freshBit when the writer has
	// published since the last read
	shared atomic.Uint32

	// writer side, audio thread only
	write int
	pos   int

	// reader side
	readMu sync.Mutex
	read   int
	window []float64
}

func newScope() *scope {
	s := &scope{write: 0, read: 2}
	s.shared.Store(1)
	s.window = hann(scopeSize)
	return s
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// push appends samples, publishing each time a buffer fills.
func (s *scope) push(samples []float32) {
	for len(samples) > 0 {
		n := copy(s.bufs[s.write][s.pos:], samples)
		samples = samples[n:]
		s.pos += n
		if s.pos == scopeSize {
			old := s.shared.Swap(uint32(s.write) | freshBit)
			s.write = int(old &^ freshBit)
			s.pos = 0
		}
	}
}

// snapshot copies the latest published buffer into dst.
func (s *scope) snapshot(dst []float32) int {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if s.shared.Load()&freshBit != 0 {
		old := s.shared.Swap(uint32(s.read))
		s.read = int(old &^ freshBit)
	}
	return copy(dst, s.bufs[s.read][:])
}

// spectrum windows the latest snapshot and returns its lower half of bins.
func (s *scope) spectrum(dst []complex128) int {
	var frame [scopeSize]float32
	s.snapshot(frame[:])

	x := make([]float64, scopeSize)
	for i, v := range frame {
		x[i] = float64(v)
	}
	vecmath.MulBlockInPlace(x, s.window)

	bins := fft.FFTReal(x)
	return copy(dst, bins[:scopeSize/2])
}
