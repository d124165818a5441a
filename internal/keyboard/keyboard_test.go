package keyboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"timbuk/internal/engine"
	apperrors "timbuk/internal/errors"
)

type fakePlayer struct {
	calls   []string
	sustain bool
}

func (p *fakePlayer) NoteOn(note, velocity int) (engine.NoteHandle, error) {
	if note < 0 || note > 127 {
		return engine.NoteHandle{}, apperrors.ErrInvalidNote
	}
	p.calls = append(p.calls, fmt.Sprintf("on %d %d", note, velocity))
	return engine.NoteHandle{Note: uint8(note), Velocity: uint8(velocity)}, nil
}

func (p *fakePlayer) NoteOff(note int) {
	p.calls = append(p.calls, fmt.Sprintf("off %d", note))
}

func (p *fakePlayer) SetSustain(on bool) {
	p.sustain = on
	p.calls = append(p.calls, fmt.Sprintf("sustain %v", on))
}

func (p *fakePlayer) Panic() {
	p.calls = append(p.calls, "panic")
}

func TestKeyTableCoversThreeOctaves(t *testing.T) {
	m := NewMapper(&fakePlayer{})

	tests := map[rune]int{'z': 48, 's': 49, 'm': 59, 'q': 60, 'y': 69, 'u': 71, 'i': 72, 'p': 76, 'Z': 48}
	for key, want := range tests {
		got, ok := m.NoteFor(key)
		if !ok || got != want {
			t.Errorf("NoteFor(%q) = %d, %v; want %d", key, got, ok, want)
		}
	}
	if _, ok := m.NoteFor('a'); ok {
		t.Error("'a' should not be mapped")
	}
	if NoteName(48) != "C3" || NoteName(76) != "E5" {
		t.Errorf("table ends are %s..%s", NoteName(48), NoteName(76))
	}
}

func TestOctaveShiftMovesLayoutOnly(t *testing.T) {
	m := NewMapper(&fakePlayer{})

	if got := m.ShiftOctave(1); got != 5 {
		t.Fatalf("octave = %d", got)
	}
	if n, _ := m.NoteFor('z'); n != 60 {
		t.Errorf("z at octave 5 = %d, want 60", n)
	}
	if n, _ := m.NoteFor('p'); n != 88 {
		t.Errorf("p at octave 5 = %d, want 88", n)
	}

	for i := 0; i < 10; i++ {
		m.ShiftOctave(1)
	}
	if m.Octave() != MaxOctave {
		t.Errorf("octave not bounded above: %d", m.Octave())
	}
	for i := 0; i < 20; i++ {
		m.ShiftOctave(-1)
	}
	if m.Octave() != MinOctave {
		t.Errorf("octave not bounded below: %d", m.Octave())
	}
	if n, ok := m.NoteFor('z'); !ok || n != 0 {
		t.Errorf("z at octave 0 = %d, %v", n, ok)
	}
}

func TestKeyUpReleasesNoteStartedBeforeOctaveChange(t *testing.T) {
	p := &fakePlayer{}
	m := NewMapper(p)

	m.KeyDown('q', false)
	m.KeyDown('q', true)
	m.ShiftOctave(2)
	m.KeyUp('q')

	want := []string{"on 60 100", "off 60"}
	if !slices.Equal(p.calls, want) {
		t.Errorf("calls = %q, want %q", p.calls, want)
	}
	if len(m.Held()) != 0 {
		t.Errorf("still holding %v", m.Held())
	}
}

func TestKeyUpWithoutKeyDown(t *testing.T) {
	p := &fakePlayer{}
	m := NewMapper(p)
	if m.KeyUp('q') {
		t.Error("KeyUp reported a release for an idle key")
	}
	if len(p.calls) != 0 {
		t.Errorf("unexpected calls %q", p.calls)
	}
}

func TestSustainKey(t *testing.T) {
	p := &fakePlayer{}
	var events []EventType
	m := NewMapper(p, WithListener(func(ev Event) { events = append(events, ev.Type) }))

	m.KeyDown(SustainKey, false)
	m.KeyDown(SustainKey, true)
	m.KeyDown('z', false)
	m.KeyUp('z')
	m.KeyUp(SustainKey)

	want := []string{"sustain true", "on 48 100", "off 48", "sustain false"}
	if !slices.Equal(p.calls, want) {
		t.Errorf("calls = %q, want %q", p.calls, want)
	}
	wantEvents := []EventType{SustainOn, NoteOn, NoteOff, SustainOff}
	if !slices.Equal(events, wantEvents) {
		t.Errorf("events = %v, want %v", events, wantEvents)
	}
}

func TestPanicReleasesTrackedNotesThenEngine(t *testing.T) {
	p := &fakePlayer{}
	m := NewMapper(p)

	m.KeyDown('z', false)
	m.PointerDown(64, 1)
	m.MIDINoteOn(30, 90)
	m.SetSustain(true)
	p.calls = nil

	m.Panic()

	if len(p.calls) != 4 || p.calls[3] != "panic" {
		t.Fatalf("calls = %q", p.calls)
	}
	offs := slices.Clone(p.calls[:3])
	slices.Sort(offs)
	if !slices.Equal(offs, []string{"off 30", "off 48", "off 64"}) {
		t.Errorf("released %q", offs)
	}
	if m.Sustain() || len(m.Held()) != 0 {
		t.Error("panic left state behind")
	}
}

func TestPanicDrivesEngine(t *testing.T) {
	e := engine.New(engine.SilentBackend{})
	m := NewMapper(e)

	m.KeyDown('q', false)
	m.KeyDown('w', false)
	m.Panic()

	if e.ActiveVoices() != 0 {
		t.Errorf("engine still has %d voices", e.ActiveVoices())
	}
}

func TestSharedNoteReleasesWithLastHolder(t *testing.T) {
	p := &fakePlayer{}
	m := NewMapper(p)

	m.KeyDown('z', false)
	m.PointerDown(48, 0.5)
	m.MIDINoteOn(48, 100)
	if !m.KeyUp('z') {
		t.Error("KeyUp did not report the held key")
	}
	m.MIDINoteOff(48)
	if !slices.Equal(p.calls, []string{"on 48 100"}) {
		t.Fatalf("calls while the pointer holds 48 = %q", p.calls)
	}
	if !slices.Equal(m.Held(), []int{48}) {
		t.Errorf("held = %v", m.Held())
	}
	m.PointerUp(48)
	if !slices.Equal(p.calls, []string{"on 48 100", "off 48"}) {
		t.Errorf("calls = %q", p.calls)
	}

	e := engine.New(engine.SilentBackend{})
	m = NewMapper(e)
	m.KeyDown('z', false)
	m.PointerDown(48, 0.5)
	m.KeyUp('z')
	if v, ok := e.Voice(48); !ok || v.Releasing {
		t.Errorf("voice 48 = %+v, %v while the pointer holds it", v, ok)
	}
	m.Panic()
	if e.ActiveVoices() != 0 || len(m.Held()) != 0 {
		t.Error("panic left a shared note behind")
	}
}

func TestPositionVelocity(t *testing.T) {
	tests := []struct {
		y    float64
		want int
	}{
		{0, 64}, {1, 127}, {0.5, 96}, {-3, 64}, {7, 127},
	}
	for _, tt := range tests {
		if got := PositionVelocity(tt.y); got != tt.want {
			t.Errorf("PositionVelocity(%v) = %d, want %d", tt.y, got, tt.want)
		}
	}

	p := &fakePlayer{}
	m := NewMapper(p)
	m.PointerDown(60, 0)
	m.PointerUp(60)
	m.PointerDown(60, 1)
	if !slices.Equal(p.calls, []string{"on 60 64", "off 60", "on 60 127"}) {
		t.Errorf("calls = %q", p.calls)
	}
}

func TestNoteOffEventCarriesDuration(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var last Event
	m := NewMapper(&fakePlayer{},
		WithClock(func() time.Time { return now }),
		WithListener(func(ev Event) { last = ev }))

	m.KeyDown('q', false)
	now = now.Add(750 * time.Millisecond)
	m.KeyUp('q')

	if last.Type != NoteOff || last.Note != 60 || last.Duration != 750*time.Millisecond {
		t.Errorf("last event = %+v", last)
	}
}

func TestGateAutoRelease(t *testing.T) {
	p := &fakePlayer{}
	m := NewMapper(p)
	g := NewGate(m, 100*time.Millisecond)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if !g.Press('q', t0) {
		t.Fatal("q not mapped")
	}
	g.Press('q', t0.Add(80*time.Millisecond))
	if n := g.Expire(t0.Add(150 * time.Millisecond)); n != 0 {
		t.Fatalf("released %d keys while repeating", n)
	}
	if n := g.Expire(t0.Add(180 * time.Millisecond)); n != 1 {
		t.Fatalf("released %d keys after hold", n)
	}
	if !slices.Equal(p.calls, []string{"on 60 100", "off 60"}) {
		t.Errorf("calls = %q", p.calls)
	}
	if g.Press('#', t0) {
		t.Error("unmapped key accepted")
	}
}

func TestHandleMIDI(t *testing.T) {
	p := &fakePlayer{}
	m := NewMapper(p)

	HandleMIDI(m, midi.NoteOn(0, 60, 80), 0)
	HandleMIDI(m, midi.NoteOn(1, 62, 80), 0)
	HandleMIDI(m, midi.ControlChange(0, 64, 127), 0)
	HandleMIDI(m, midi.NoteOn(0, 60, 0), 0)
	HandleMIDI(m, midi.ControlChange(0, 64, 0), -1)

	want := []string{"on 60 80", "sustain true", "off 60", "sustain false"}
	if !slices.Equal(p.calls, want) {
		t.Errorf("calls = %q, want %q", p.calls, want)
	}
}

func TestStatusLine(t *testing.T) {
	line := StatusLine(4, true, []int{60, 64}, "Ready")
	for _, want := range []string{"oct 4", "SUSTAIN", "C4 E4", "Ready"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q lacks %q", line, want)
		}
	}
}

func TestParseNote(t *testing.T) {
	tests := []struct {
		tok  string
		note int
		rest bool
	}{
		{"C4", 60, false},
		{"c4", 60, false},
		{"C#4", 61, false},
		{"Db4", 61, false},
		{"A4", 69, false},
		{"B-1", 11, false},
		{"G9", 127, false},
		{"r", 0, true},
		{"REST", 0, true},
	}
	for _, tt := range tests {
		n, rest, err := ParseNote(tt.tok)
		if err != nil || n != tt.note || rest != tt.rest {
			t.Errorf("ParseNote(%q) = %d, %v, %v", tt.tok, n, rest, err)
		}
	}

	for _, bad := range []string{"", "C", "H4", "C#", "Cx", "G#9"} {
		if _, _, err := ParseNote(bad); !errors.Is(err, apperrors.ErrInvalidNote) {
			t.Errorf("ParseNote(%q) error = %v", bad, err)
		}
	}
}

func TestNoteArg(t *testing.T) {
	for arg, want := range map[string]int{"60": 60, " 0": 0, "C4": 60, "a#3": 58} {
		if n, err := NoteArg(arg); err != nil || n != want {
			t.Errorf("NoteArg(%q) = %d, %v", arg, n, err)
		}
	}
	for _, bad := range []string{"128", "-1", "r", "xyz"} {
		if _, err := NoteArg(bad); !errors.Is(err, apperrors.ErrInvalidNote) {
			t.Errorf("NoteArg(%q) error = %v", bad, err)
		}
	}
}

func TestParseNotesAndPlay(t *testing.T) {
	steps, err := ParseNotes("C4, E4 | r; G4")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 4 || !steps[2].Rest || steps[3].Note != 67 {
		t.Fatalf("steps = %+v", steps)
	}
	if _, err := ParseNotes(" , "); err == nil {
		t.Error("expected error for empty sequence")
	}

	p := &fakePlayer{}
	timing := Timing{Note: time.Millisecond, Gap: time.Millisecond, Velocity: 90}
	if err := Play(context.Background(), p, steps, timing); err != nil {
		t.Fatal(err)
	}
	want := []string{"on 60 90", "off 60", "on 64 90", "off 64", "on 67 90", "off 67"}
	if !slices.Equal(p.calls, want) {
		t.Errorf("calls = %q", p.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.calls = nil
	if err := Play(ctx, p, steps, DefaultTiming); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled play = %v", err)
	}
	if !slices.Equal(p.calls, []string{"on 60 100", "off 60"}) {
		t.Errorf("cancelled play left %q", p.calls)
	}
}

func TestScale(t *testing.T) {
	got, err := Scale(Minor, 57)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int{57, 59, 60, 62, 64, 65, 67}) {
		t.Errorf("A minor = %v", got)
	}
	if got, _ := Scale(Blues, 125); !slices.Equal(got, []int{125}) {
		t.Errorf("clipped blues = %v", got)
	}
	if _, err := Scale("lydian", 60); !errors.Is(err, apperrors.ErrInvalidEnum) {
		t.Errorf("unknown scale error = %v", err)
	}
}
