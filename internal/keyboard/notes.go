package keyboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	apperrors "timbuk/internal/errors"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI note as pitch class and octave, with middle C as C4.
func NoteName(note int) string {
	if note < 0 || note > 127 {
		return "?"
	}
	return noteNames[note%12] + strconv.Itoa(note/12-1)
}

// ParseNote reads a token such as "C4", "F#3" or "Eb5". "r" and "rest" are
// rests.
func ParseNote(tok string) (note int, rest bool, err error) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return 0, false, fmt.Errorf("%w: empty token", apperrors.ErrInvalidNote)
	}

	if strings.EqualFold(t, "r") || strings.EqualFold(t, "rest") {
		return 0, true, nil
	}

	if len(t) < 2 {
		return 0, false, fmt.Errorf("%w: %q is too short", apperrors.ErrInvalidNote, t)
	}

	var semitone int
	switch unicode.ToUpper(rune(t[0])) {
	case 'C':
		semitone = 0
	case 'D':
		semitone = 2
	case 'E':
		semitone = 4
	case 'F':
		semitone = 5
	case 'G':
		semitone = 7
	case 'A':
		semitone = 9
	case 'B':
		semitone = 11
	default:
		return 0, false, fmt.Errorf("%w: invalid note letter %q", apperrors.ErrInvalidNote, t[0])
	}

	rem := t[1:]
	switch rem[0] {
	case '#':
		semitone++
		rem = rem[1:]
	case 'b', 'B':
		semitone--
		rem = rem[1:]
	}
	if rem == "" {
		return 0, false, fmt.Errorf("%w: %q is missing an octave", apperrors.ErrInvalidNote, t)
	}

	octave, err := strconv.Atoi(rem)
	if err != nil {
		return 0, false, fmt.Errorf("%w: invalid octave in %q", apperrors.ErrInvalidNote, t)
	}

	n := 12*(octave+1) + semitone
	if n < 0 || n > 127 {
		return 0, false, fmt.Errorf("%w: %q is out of MIDI range (%d)", apperrors.ErrInvalidNote, t, n)
	}
	return n, false, nil
}

// Step is one entry of a parsed note sequence.
type Step struct {
	Note int
	Rest bool
}

// ParseNotes splits text on whitespace, commas, semicolons and bars.
func ParseNotes(text string) ([]Step, error) {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	})
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no notes provided", apperrors.ErrInvalidNote)
	}

	steps := make([]Step, 0, len(tokens))
	for _, tok := range tokens {
		n, rest, err := ParseNote(tok)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Note: n, Rest: rest})
	}
	return steps, nil
}

// Timing of a played sequence.
type Timing struct {
	Note     time.Duration
	Gap      time.Duration
	Velocity int
}

var DefaultTiming = Timing{Note: 300 * time.Millisecond, Gap: 60 * time.Millisecond, Velocity: DefaultVelocity}

// Play sends steps to p one after another. A rest lasts as long as a note and
// its gap. It stops early, releasing the sounding note, when ctx is done.
func Play(ctx context.Context, p Player, steps []Step, timing Timing) error {
	wait := func(d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}

	for _, s := range steps {
		if s.Rest {
			if err := wait(timing.Note + timing.Gap); err != nil {
				return err
			}
			continue
		}

		if _, err := p.NoteOn(s.Note, timing.Velocity); err != nil {
			return fmt.Errorf("note on failed for %d: %w", s.Note, err)
		}
		err := wait(timing.Note)
		p.NoteOff(s.Note)
		if err != nil {
			return err
		}
		if err := wait(timing.Gap); err != nil {
			return err
		}
	}
	return nil
}

type ScaleKind string

const (
	Major      ScaleKind = "major"
	Minor      ScaleKind = "minor"
	Pentatonic ScaleKind = "pentatonic"
	Blues      ScaleKind = "blues"
)

var scaleIntervals = map[ScaleKind][]int{
	Major:      {0, 2, 4, 5, 7, 9, 11},
	Minor:      {0, 2, 3, 5, 7, 8, 10},
	Pentatonic: {0, 2, 4, 7, 9},
	Blues:      {0, 3, 5, 6, 7, 10},
}

// Scale returns one octave of kind starting at root. Notes above 127 are
// dropped.
func Scale(kind ScaleKind, root int) ([]int, error) {
	intervals, ok := scaleIntervals[kind]
	if !ok {
		return nil, apperrors.NewEnumError("scale", string(kind))
	}
	out := make([]int, 0, len(intervals))
	for _, iv := range intervals {
		if n := root + iv; n >= 0 && n <= 127 {
			out = append(out, n)
		}
	}
	return out, nil
}

// NoteArg reads a note given either as a MIDI number ("60") or a name
// ("C4").
func NoteArg(s string) (int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("%w: %d is out of MIDI range", apperrors.ErrInvalidNote, n)
		}
		return n, nil
	}
	n, rest, err := ParseNote(s)
	if err != nil {
		return 0, err
	}
	if rest {
		return 0, fmt.Errorf("%w: a rest is not a note", apperrors.ErrInvalidNote)
	}
	return n, nil
}
