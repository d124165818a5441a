// Package keyboard turns computer keys, pointer strikes and MIDI input into
// engine note events.
package keyboard

import (
	"math"
	"strconv"
	"sync"
	"time"

	"timbuk/internal/engine"
)

const (
	DefaultOctave = 4
	MinOctave     = 0
	MaxOctave     = 8

	// DefaultVelocity is used for computer keys, which carry no strike force.
	DefaultVelocity = 100

	// baseNote is the note the first mapped key produces at DefaultOctave (C3).
	baseNote = 48

	SustainKey = ' '
)

// keyOffsets maps physical keys to semitones above the lowest mapped key. The
// table never changes; the octave shift moves the whole layout.
var keyOffsets = map[rune]int{
	'z': 0, 's': 1, 'x': 2, 'd': 3, 'c': 4, 'v': 5, 'g': 6, 'b': 7, 'h': 8, 'n': 9, 'j': 10, 'm': 11,
	'q': 12, '2': 13, 'w': 14, '3': 15, 'e': 16, 'r': 17, '5': 18, 't': 19, '6': 20, 'y': 21, '7': 22, 'u': 23,
	'i': 24, '9': 25, 'o': 26, '0': 27, 'p': 28,
}

// Player is the engine surface the mapper drives.
type Player interface {
	NoteOn(note, velocity int) (engine.NoteHandle, error)
	NoteOff(note int)
	SetSustain(on bool)
	Panic()
}

type EventType int

const (
	NoteOn EventType = iota
	NoteOff
	SustainOn
	SustainOff
	OctaveChanged
	Panic
)

// Event is published to the listener after the engine has been told.
type Event struct {
	Type     EventType
	Note     int
	Velocity int
	Octave   int
	Duration time.Duration
}

type held struct {
	note     int
	velocity int
	started  time.Time
}

// Mapper tracks which notes it started so that octave changes and panic
// release exactly what was played. It is safe for concurrent use by the
// terminal and MIDI input goroutines.
type Mapper struct {
	mu       sync.Mutex
	player   Player
	octave   int
	sustain  bool
	held     map[string]held
	holders  [128]int
	listener func(Event)
	now      func() time.Time
}

type Option func(*Mapper)

// WithListener registers fn for note, sustain and octave events.
func WithListener(fn func(Event)) Option {
	return func(m *Mapper) { m.listener = fn }
}

func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

func NewMapper(player Player, opts ...Option) *Mapper {
	m := &Mapper{
		player: player,
		octave: DefaultOctave,
		held:   make(map[string]held),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NoteFor returns the note key produces at the current octave.
func (m *Mapper) NoteFor(key rune) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noteFor(key)
}

func (m *Mapper) noteFor(key rune) (int, bool) {
	off, ok := keyOffsets[lower(key)]
	if !ok {
		return 0, false
	}
	n := baseNote + off + 12*(m.octave-DefaultOctave)
	if n < 0 || n > 127 {
		return 0, false
	}
	return n, true
}

func lower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func keySource(key rune) string { return "key:" + string(lower(key)) }

func (m *Mapper) emit(events []Event) {
	if m.listener == nil {
		return
	}
	for _, ev := range events {
		m.listener(ev)
	}
}

// start must be called with m.mu held. The engine has one voice per note, so
// a second source holding a sounding note joins it instead of retriggering.
func (m *Mapper) start(source string, note, velocity int) []Event {
	if _, ok := m.held[source]; ok {
		return nil
	}
	if m.holders[note] > 0 {
		m.held[source] = held{note: note, velocity: velocity, started: m.now()}
		m.holders[note]++
		return nil
	}
	if _, err := m.player.NoteOn(note, velocity); err != nil {
		return nil
	}
	m.held[source] = held{note: note, velocity: velocity, started: m.now()}
	m.holders[note]++
	return []Event{{Type: NoteOn, Note: note, Velocity: velocity, Octave: m.octave}}
}

// stop forgets source and reports whether it was held. The note is released
// when its last holder lets go.
func (m *Mapper) stop(source string) ([]Event, bool) {
	h, ok := m.held[source]
	if !ok {
		return nil, false
	}
	delete(m.held, source)
	m.holders[h.note]--
	if m.holders[h.note] > 0 {
		return nil, true
	}
	m.player.NoteOff(h.note)
	return []Event{{Type: NoteOff, Note: h.note, Velocity: h.velocity, Octave: m.octave, Duration: m.now().Sub(h.started)}}, true
}

// KeyDown handles a physical key press. Repeats are ignored. It reports
// whether the key is mapped.
func (m *Mapper) KeyDown(key rune, repeat bool) bool {
	if key == SustainKey {
		if !repeat {
			m.SetSustain(true)
		}
		return true
	}

	m.mu.Lock()
	note, ok := m.noteFor(key)
	if !ok || repeat {
		m.mu.Unlock()
		return ok
	}
	events := m.start(keySource(key), note, DefaultVelocity)
	m.mu.Unlock()

	m.emit(events)
	return true
}

// KeyUp releases the note the key started, even if the octave changed since.
func (m *Mapper) KeyUp(key rune) bool {
	if key == SustainKey {
		m.SetSustain(false)
		return true
	}
	m.mu.Lock()
	events, ok := m.stop(keySource(key))
	m.mu.Unlock()

	m.emit(events)
	return ok
}

// PositionVelocity maps a strike position (0 at the top edge of a key, 1 at
// the bottom) to a velocity in 64..127.
func PositionVelocity(y float64) int {
	if math.IsNaN(y) {
		y = 0.5
	}
	y = math.Max(0, math.Min(1, y))
	return 64 + int(math.Round(y*63))
}

func pointerSource(note int) string { return "pointer:" + strconv.Itoa(note) }
func midiSource(note int) string    { return "midi:" + strconv.Itoa(note) }

// PointerDown starts note from an on-screen key struck at height y.
func (m *Mapper) PointerDown(note int, y float64) {
	if note < 0 || note > 127 {
		return
	}
	m.mu.Lock()
	events := m.start(pointerSource(note), note, PositionVelocity(y))
	m.mu.Unlock()
	m.emit(events)
}

func (m *Mapper) PointerUp(note int) {
	m.mu.Lock()
	events, _ := m.stop(pointerSource(note))
	m.mu.Unlock()
	m.emit(events)
}

// MIDINoteOn forwards a note from an external controller. Velocity 0 is a
// note off, as running status senders use it.
func (m *Mapper) MIDINoteOn(note, velocity int) {
	if velocity == 0 {
		m.MIDINoteOff(note)
		return
	}
	if note < 0 || note > 127 {
		return
	}
	m.mu.Lock()
	events := m.start(midiSource(note), note, velocity)
	m.mu.Unlock()
	m.emit(events)
}

func (m *Mapper) MIDINoteOff(note int) {
	m.mu.Lock()
	events, _ := m.stop(midiSource(note))
	m.mu.Unlock()
	m.emit(events)
}

// SetSustain engages or lifts the sustain pedal. Notes whose keys were lifted
// while it was down are released when it lifts.
func (m *Mapper) SetSustain(on bool) {
	m.mu.Lock()
	if m.sustain == on {
		m.mu.Unlock()
		return
	}
	m.sustain = on
	m.player.SetSustain(on)
	m.mu.Unlock()

	typ := SustainOff
	if on {
		typ = SustainOn
	}
	m.emit([]Event{{Type: typ}})
}

func (m *Mapper) Sustain() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sustain
}

// Octave is the displayed octave of the lowest mapped key.
func (m *Mapper) Octave() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.octave
}

// ShiftOctave moves the layout by delta octaves within [MinOctave, MaxOctave]
// and returns the resulting octave. Held notes keep sounding.
func (m *Mapper) ShiftOctave(delta int) int {
	m.mu.Lock()
	old := m.octave
	m.octave = max(MinOctave, min(MaxOctave, m.octave+delta))
	octave := m.octave
	m.mu.Unlock()

	if octave != old {
		m.emit([]Event{{Type: OctaveChanged, Octave: octave}})
	}
	return octave
}

// Held returns the notes this mapper currently holds, lowest first.
func (m *Mapper) Held() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seen [128]bool
	for _, h := range m.held {
		seen[h.note] = true
	}
	var out []int
	for n, ok := range seen {
		if ok {
			out = append(out, n)
		}
	}
	return out
}

// Panic releases every tracked note, lifts sustain and then silences the
// engine. All of it happens before Panic returns.
func (m *Mapper) Panic() {
	m.mu.Lock()
	var events []Event
	for source := range m.held {
		ev, _ := m.stop(source)
		events = append(events, ev...)
	}
	m.sustain = false
	m.player.Panic()
	m.mu.Unlock()

	m.emit(append(events, Event{Type: Panic}))
}
