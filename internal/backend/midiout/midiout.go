// Package midiout drives an external MIDI synthesizer: notes become Note
// On/Off messages and patch parameters become control changes.
package midiout

import (
	"fmt"
	"log"
	"math"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"timbuk/internal/patch"
)

// CC numbers for each parameter. Filter and envelope controls use the General
// MIDI sound controllers; the rest sit in undefined controller ranges.
var ccMapping = []struct {
	id patch.ParamID
	cc uint8
}{
	{"osc1-waveform", 20}, {"osc1-volume", 21}, {"osc1-muted", 22}, {"osc1-detune", 23}, {"osc1-octave", 24},
	{"osc2-waveform", 25}, {"osc2-volume", 26}, {"osc2-muted", 27}, {"osc2-detune", 28}, {"osc2-octave", 29},
	{"filter-type", 30}, {"filter-cutoff", 74}, {"filter-resonance", 71}, {"filter-env", 31},
	{"amp-attack", 73}, {"amp-decay", 75}, {"amp-sustain", 79}, {"amp-release", 72},
	{"filter-attack", 102}, {"filter-decay", 103}, {"filter-sustain", 104}, {"filter-release", 105},
	{"lfo-rate", 76}, {"lfo-depth", 77}, {"lfo-target", 106},
	{"reverb-mix", 91}, {"delay-time", 107}, {"delay-feedback", 108}, {"delay-mix", 95},
	{"master-volume", 7}, {"analog-warmth", 109},
}

const ccAllNotesOff = 123

// CC returns the controller number assigned to id.
func CC(id patch.ParamID) (uint8, bool) {
	for _, m := range ccMapping {
		if m.id == id {
			return m.cc, true
		}
	}
	return 0, false
}

// Scale converts a parameter value to a 7-bit controller value. Choices are
// sent as their index, toggles as 0 or 127, numbers over their range.
func Scale(prm patch.Param, v float64) uint8 {
	switch prm.Kind {
	case patch.KindChoice:
		return uint8(max(0, min(127, int(math.Round(v)))))
	case patch.KindToggle:
		if v >= 0.5 {
			return 127
		}
		return 0
	}
	return uint8(math.Round(prm.Range.Normalize(v) * 127))
}

// Port is the part of a MIDI output the backend needs.
type Port interface {
	Send(data []byte) error
	Close() error
}

// Backend implements engine.Backend over a MIDI output.
type Backend struct {
	out     Port
	channel uint8
	held    [128]bool
	closer  func()
}

// New wraps an already opened port.
func New(out Port, channel uint8) *Backend {
	return &Backend{out: out, channel: channel & 0x0F}
}

// reopening wraps a driver port and reopens it if the driver dropped it.
type reopening struct {
	drivers.Out
}

func (r reopening) Send(data []byte) error {
	if !r.IsOpen() {
		if err := r.Open(); err != nil {
			return err
		}
	}
	return r.Out.Send(data)
}

// Open opens output port portIndex and sends on channel (0-based).
func Open(portIndex int, channel uint8) (*Backend, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, err
	}

	if portIndex < 0 || portIndex >= len(outs) {
		return nil, fmt.Errorf("output port index %d out of range", portIndex)
	}

	out := outs[portIndex]
	if err := out.Open(); err != nil {
		return nil, err
	}
	log.Println("[midi] opened MIDI output port", out.String(), "channel", channel+1)

	b := New(reopening{out}, channel)
	b.closer = drivers.Close
	return b, nil
}

// FindOutPort returns the number of the first output whose name contains
// nameFragment, case-insensitively.
func FindOutPort(nameFragment string) (int, error) {
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return -1, fmt.Errorf("no MIDI outputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out.Number(), nil
		}
	}

	return -1, fmt.Errorf("no MIDI output contains %q", nameFragment)
}

// FindInPort is FindOutPort for inputs.
func FindInPort(nameFragment string) (int, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return -1, fmt.Errorf("no MIDI inputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), lower) {
			return in.Number(), nil
		}
	}

	return -1, fmt.Errorf("no MIDI input contains %q", nameFragment)
}

// Ports lists the available outputs, one per line.
func Ports() string {
	return midi.GetOutPorts().String()
}

// InPorts lists the available inputs, one per line.
func InPorts() string {
	return midi.GetInPorts().String()
}

func (b *Backend) send(msg midi.Message) error {
	return b.out.Send(msg.Bytes())
}

func (b *Backend) NoteOn(note, velocity uint8) error {
	b.held[note&0x7F] = true
	return b.send(midi.NoteOn(b.channel, note, velocity))
}

func (b *Backend) NoteOff(note uint8) error {
	b.held[note&0x7F] = false
	return b.send(midi.NoteOff(b.channel, note))
}

// Free has nothing to reclaim: the voice lives in the external synth.
func (b *Backend) Free(note uint8) {}

// AllNotesOff sends a note off for every note this backend started, then the
// channel mode message for synths that honour it.
func (b *Backend) AllNotesOff() error {
	var firstErr error
	for n, on := range b.held {
		if !on {
			continue
		}
		b.held[n] = false
		if err := b.send(midi.NoteOff(b.channel, uint8(n))); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.send(midi.ControlChange(b.channel, ccAllNotesOff, 0)); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *Backend) SetParam(id patch.ParamID, value float64) error {
	cc, ok := CC(id)
	if !ok {
		return fmt.Errorf("no controller assigned to %s", id)
	}
	prm, _ := patch.Lookup(id)
	return b.send(midi.ControlChange(b.channel, cc, Scale(prm, value)))
}

// Waveform reports silence; there is no audio tap on an external synth.
func (b *Backend) Waveform(dst []float32) int {
	clear(dst)
	return len(dst)
}

func (b *Backend) Spectrum(dst []complex128) int {
	clear(dst)
	return len(dst)
}

func (b *Backend) Close() error {
	err := b.out.Close()
	if b.closer != nil {
		b.closer()
	}
	return err
}
