package engine

import (
	"errors"
	"testing"
	"time"

	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
)

type call struct {
	op    string
	note  uint8
	vel   uint8
	param patch.ParamID
	value float64
}

type recordingBackend struct {
	SilentBackend
	calls []call
	freed map[uint8]int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{freed: map[uint8]int{}}
}

func (b *recordingBackend) NoteOn(note, vel uint8) error {
	b.calls = append(b.calls, call{op: "on", note: note, vel: vel})
	return nil
}

func (b *recordingBackend) NoteOff(note uint8) error {
	b.calls = append(b.calls, call{op: "off", note: note})
	return nil
}

func (b *recordingBackend) Free(note uint8) {
	b.freed[note]++
	b.calls = append(b.calls, call{op: "free", note: note})
}

func (b *recordingBackend) AllNotesOff() error {
	b.calls = append(b.calls, call{op: "panic"})
	return nil
}

func (b *recordingBackend) SetParam(id patch.ParamID, v float64) error {
	b.calls = append(b.calls, call{op: "set", param: id, value: v})
	return nil
}

func (b *recordingBackend) reset() { b.calls = nil }

func (b *recordingBackend) sets() []call {
	var out []call
	for _, c := range b.calls {
		if c.op == "set" {
			out = append(out, c)
		}
	}
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *recordingBackend, *fakeClock) {
	t.Helper()
	b := newRecordingBackend()
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := New(b, WithClock(clk.Now))
	b.reset()
	return e, b, clk
}

func factory(t *testing.T, name string) patch.Patch {
	t.Helper()
	for _, f := range patch.Factory() {
		if f.Name == name {
			return f.Data
		}
	}
	t.Fatalf("no factory patch %q", name)
	return patch.Patch{}
}

func TestApplySerializeRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, f := range patch.Factory() {
		if err := e.Apply(f.Data); err != nil {
			t.Fatalf("apply %s: %v", f.Name, err)
		}
		if got := e.Serialize(); got != f.Data {
			t.Errorf("%s: serialize after apply\n got %+v\nwant %+v", f.Name, got, f.Data)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	e, b, _ := newTestEngine(t)
	if err := e.Apply(factory(t, "Cosmic FX")); err != nil {
		t.Fatal(err)
	}
	first := b.sets()
	b.reset()

	if err := e.Apply(e.Serialize()); err != nil {
		t.Fatal(err)
	}
	second := b.sets()

	if len(first) != len(second) {
		t.Fatalf("setter calls differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("call %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestApplyCallsEverySetterOnceInGroupOrder(t *testing.T) {
	e, b, _ := newTestEngine(t)
	if err := e.Apply(factory(t, "Warm Bass")); err != nil {
		t.Fatal(err)
	}

	sets := b.sets()
	if len(sets) != len(patch.Params) {
		t.Fatalf("expected %d setter calls, got %d", len(patch.Params), len(sets))
	}
	seen := map[patch.ParamID]bool{}
	last := patch.GroupOscillators
	for _, c := range sets {
		if seen[c.param] {
			t.Errorf("%s set twice", c.param)
		}
		seen[c.param] = true
		prm, _ := patch.Lookup(c.param)
		if prm.Group < last {
			t.Errorf("%s applied after group %s", c.param, last)
		}
		last = prm.Group
	}
}

func TestApplyClampsNumbers(t *testing.T) {
	e, _, _ := newTestEngine(t)
	p := patch.Default()
	p.Filter.Cutoff = 5
	p.Master.Volume = 40
	p.Effects.Delay.Feedback = 2

	if err := e.Apply(p); err != nil {
		t.Fatalf("out-of-range numbers must not be rejected: %v", err)
	}
	got := e.Serialize()
	if got.Filter.Cutoff != 20 || got.Master.Volume != 12 || got.Effects.Delay.Feedback != 0.95 {
		t.Errorf("values not clamped: %+v %+v %+v", got.Filter, got.Master, got.Effects.Delay)
	}
}

func TestApplyInvalidEnumChangesNothing(t *testing.T) {
	e, b, _ := newTestEngine(t)
	if err := e.Apply(factory(t, "Ethereal Pad")); err != nil {
		t.Fatal(err)
	}
	before := e.Serialize()
	b.reset()

	bad := factory(t, "Techno Arp")
	bad.LFO.Target = "wobble"

	err := e.Apply(bad)
	if !errors.Is(err, apperrors.ErrInvalidEnum) {
		t.Fatalf("expected ErrInvalidEnum, got %v", err)
	}
	if e.Serialize() != before {
		t.Error("rejected apply changed engine state")
	}
	if len(b.calls) != 0 {
		t.Errorf("rejected apply reached the backend: %+v", b.calls)
	}
}

func TestSetUnknownParam(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.Set("osc3-volume", -3); !errors.Is(err, apperrors.ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
	if err := e.SetChoice("filter-type", "comb"); !errors.Is(err, apperrors.ErrInvalidEnum) {
		t.Errorf("expected ErrInvalidEnum, got %v", err)
	}
}

func TestTypedSetters(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if err := e.SetOscWaveform(2, patch.Pulse); err != nil {
		t.Fatal(err)
	}
	e.SetOscMuted(2, false)
	e.SetOscOctave(2, 5)
	e.SetFilterCutoff(440)
	e.SetAmplitudeEnvelope(patch.ADSR{Attack: 0.2, Decay: 0.3, Sustain: 0.4, Release: 0.5})
	if err := e.SetLFOTarget(patch.TargetPitch); err != nil {
		t.Fatal(err)
	}

	osc := e.Oscillator(2)
	if osc.Waveform != patch.Pulse || osc.Muted || osc.Octave != 2 {
		t.Errorf("osc2 = %+v", osc)
	}
	if e.Filter().Cutoff != 440 {
		t.Errorf("cutoff = %v", e.Filter().Cutoff)
	}
	if e.Envelopes().Amplitude.Release != 0.5 {
		t.Errorf("amp envelope = %+v", e.Envelopes().Amplitude)
	}
	if e.LFO().Target != patch.TargetPitch {
		t.Errorf("lfo target = %v", e.LFO().Target)
	}
}

func TestNoteOnRetriggers(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.NoteOn(60, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := e.NoteOn(60, 50); err != nil {
		t.Fatal(err)
	}

	if n := e.ActiveVoices(); n != 1 {
		t.Fatalf("expected 1 active voice, got %d", n)
	}
	v, ok := e.Voice(60)
	if !ok || v.Velocity != 50 {
		t.Errorf("voice = %+v, %v; want velocity 50", v, ok)
	}
}

func TestNoteOnValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.NoteOn(128, 100); !errors.Is(err, apperrors.ErrInvalidNote) {
		t.Errorf("expected ErrInvalidNote, got %v", err)
	}
	h, err := e.NoteOn(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Velocity != 1 {
		t.Errorf("velocity 0 should clamp to 1, got %d", h.Velocity)
	}
}

func TestNoteOffWithoutNoteOnIsNoop(t *testing.T) {
	e, b, _ := newTestEngine(t)
	e.NoteOff(64)
	e.NoteOff(-1)

	if len(b.calls) != 0 {
		t.Errorf("backend saw %+v", b.calls)
	}
	if e.ActiveVoices() != 0 {
		t.Error("voice count changed")
	}
}

func TestReleaseFreesAfterAmpRelease(t *testing.T) {
	e, b, clk := newTestEngine(t)
	e.SetAmplitudeEnvelope(patch.ADSR{Attack: 0.01, Decay: 0.1, Sustain: 0.5, Release: 0.5})

	if _, err := e.NoteOn(60, 100); err != nil {
		t.Fatal(err)
	}
	e.NoteOff(60)

	clk.Advance(400 * time.Millisecond)
	if n := e.Reap(clk.Now()); n != 0 {
		t.Fatalf("freed %d voices before release elapsed", n)
	}
	if v, ok := e.Voice(60); !ok || !v.Releasing {
		t.Fatalf("voice should still be releasing: %+v %v", v, ok)
	}

	clk.Advance(100 * time.Millisecond)
	if n := e.Reap(clk.Now()); n != 1 {
		t.Fatalf("expected 1 voice freed, got %d", n)
	}
	clk.Advance(time.Second)
	e.Reap(clk.Now())

	if b.freed[60] != 1 {
		t.Errorf("voice freed %d times, want exactly once", b.freed[60])
	}
	if e.ActiveVoices() != 0 {
		t.Error("voice still tracked")
	}
}

func TestRetriggerDuringRelease(t *testing.T) {
	e, b, clk := newTestEngine(t)
	e.NoteOn(60, 100)
	e.NoteOff(60)
	e.NoteOn(60, 90)

	clk.Advance(time.Minute)
	e.Reap(clk.Now())

	if _, ok := e.Voice(60); !ok {
		t.Error("retriggered voice was reaped")
	}
	if b.freed[60] != 0 {
		t.Error("retriggered voice was freed")
	}
}

func TestSustainDefersRelease(t *testing.T) {
	e, b, clk := newTestEngine(t)
	e.SetSustain(true)
	e.NoteOn(60, 100)
	e.NoteOff(60)

	clk.Advance(time.Minute)
	e.Reap(clk.Now())
	if v, ok := e.Voice(60); !ok || v.Releasing {
		t.Fatalf("sustained voice should be held: %+v %v", v, ok)
	}
	for _, c := range b.calls {
		if c.op == "off" {
			t.Fatal("note off sent while sustained")
		}
	}

	e.SetSustain(false)
	if v, _ := e.Voice(60); !v.Releasing {
		t.Error("releasing sustain should start the release")
	}
}

func TestPanicClearsEverything(t *testing.T) {
	e, b, _ := newTestEngine(t)
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)
	e.NoteOn(67, 100)
	e.NoteOff(64)
	e.SetSustain(true)

	e.Panic()

	if e.ActiveVoices() != 0 || len(e.Voices()) != 0 {
		t.Errorf("voices left after panic: %+v", e.Voices())
	}
	if e.Sustain() {
		t.Error("sustain still engaged")
	}
	for _, n := range []uint8{60, 64, 67} {
		if b.freed[n] != 1 {
			t.Errorf("note %d freed %d times", n, b.freed[n])
		}
	}
	if last := b.calls[len(b.calls)-1]; last.op != "panic" {
		t.Errorf("last backend call = %+v, want all notes off", last)
	}

	wave := e.WaveformData()
	if len(wave) != WaveformSize {
		t.Fatalf("waveform length %d", len(wave))
	}
	for i, s := range wave {
		if s != 0 {
			t.Fatalf("sample %d = %v after panic on silent backend", i, s)
		}
	}
}

func TestVisualizationSizes(t *testing.T) {
	e := New(SilentBackend{})
	if n := len(e.SpectrumData()); n != SpectrumSize {
		t.Errorf("spectrum length %d", n)
	}
	if n := len(e.SpectrumMagnitudes()); n != SpectrumSize {
		t.Errorf("magnitudes length %d", n)
	}
	if e.Load() != 0 {
		t.Error("silent backend should report no load")
	}
}

func TestOpenRetriesOnce(t *testing.T) {
	attempts := 0
	failing := func() (Backend, error) {
		attempts++
		return nil, errors.New("no device")
	}

	_, err := Open("test", failing)
	if !errors.Is(err, apperrors.ErrAudioBackendUnavailable) {
		t.Errorf("expected ErrAudioBackendUnavailable, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}

	attempts = 0
	flaky := func() (Backend, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("busy")
		}
		return SilentBackend{}, nil
	}
	if _, err := Open("test", flaky); err != nil {
		t.Errorf("second attempt should succeed: %v", err)
	}
}
