package render

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

const channelCount = 2

// Backend plays a Renderer through the system audio output.
type Backend struct {
	*Renderer
	player *oto.Player
}

// stereoReader adapts the mono renderer to oto's interleaved float32 stream.
type stereoReader struct {
	r    *Renderer
	mono []float32
}

func (s *stereoReader) Read(buf []byte) (int, error) {
	frames := len(buf) / (channelCount * 4)
	if frames > len(s.mono) {
		frames = len(s.mono)
	}
	mono := s.mono[:frames]
	s.r.Process(mono)

	for i, v := range mono {
		bits := math.Float32bits(v)
		off := i * channelCount * 4
		binary.LittleEndian.PutUint32(buf[off:], bits)
		binary.LittleEndian.PutUint32(buf[off+4:], bits)
	}
	return frames * channelCount * 4, nil
}

// Open starts audio output. bufferSize is in frames; zero lets the driver
// choose.
func Open(sampleRate, bufferSize int) (*Backend, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatFloat32LE,
	}
	if bufferSize > 0 {
		op.BufferSize = time.Duration(bufferSize) * time.Second / time.Duration(sampleRate)
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	<-ready

	r := NewRenderer(sampleRate)
	scratch := max(bufferSize, 4096)
	player := ctx.NewPlayer(&stereoReader{r: r, mono: make([]float32, scratch)})
	player.Play()
	log.Printf("[render] audio output started at %d Hz", sampleRate)

	return &Backend{Renderer: r, player: player}, nil
}

// Close stops playback. oto keeps one context per process, so the output
// device stays open until exit.
func (b *Backend) Close() error {
	b.player.Pause()
	return b.player.Err()
}
