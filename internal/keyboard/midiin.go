package keyboard

import (
	"fmt"
	"log"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const ccSustain = 64

// HandleMIDI forwards one incoming message to m. Messages on other channels
// are ignored unless channel is negative.
func HandleMIDI(m *Mapper, msg midi.Message, channel int) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if channel < 0 || int(ch) == channel {
			m.MIDINoteOn(int(key), int(vel))
		}
	case msg.GetNoteEnd(&ch, &key):
		if channel < 0 || int(ch) == channel {
			m.MIDINoteOff(int(key))
		}
	case msg.GetControlChange(&ch, &cc, &val):
		if cc == ccSustain && (channel < 0 || int(ch) == channel) {
			m.SetSustain(val >= 64)
		}
	}
}

// ListenMIDI feeds notes and the sustain pedal from in to m until stop is
// called.
func ListenMIDI(in drivers.In, m *Mapper, channel int) (stop func(), err error) {
	stop, err = midi.ListenTo(in, func(msg midi.Message, _ int32) {
		HandleMIDI(m, msg, channel)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", in, err)
	}
	log.Printf("[keyboard] listening on MIDI input %s", in)
	return stop, nil
}
