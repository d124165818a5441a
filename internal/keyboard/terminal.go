package keyboard

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	term "github.com/eiannone/keyboard"
)

// DefaultGate is how long a terminal key sounds after its last press event.
const DefaultGate = 250 * time.Millisecond

// Gate stands in for key-up events on terminals, which only report presses.
// A key is released once no press for it arrived within the hold time;
// auto-repeat keeps it sounding.
type Gate struct {
	mu        sync.Mutex
	mapper    *Mapper
	hold      time.Duration
	deadlines map[rune]time.Time
}

func NewGate(m *Mapper, hold time.Duration) *Gate {
	if hold <= 0 {
		hold = DefaultGate
	}
	return &Gate{mapper: m, hold: hold, deadlines: make(map[rune]time.Time)}
}

// Press reports a key press at now. It reports whether the key is mapped.
func (g *Gate) Press(key rune, now time.Time) bool {
	key = lower(key)
	g.mu.Lock()
	_, sounding := g.deadlines[key]
	g.mu.Unlock()

	if !g.mapper.KeyDown(key, sounding) {
		return false
	}
	g.mu.Lock()
	g.deadlines[key] = now.Add(g.hold)
	g.mu.Unlock()
	return true
}

// Expire releases every key whose hold ran out at or before now.
func (g *Gate) Expire(now time.Time) int {
	g.mu.Lock()
	var due []rune
	for k, d := range g.deadlines {
		if !d.After(now) {
			due = append(due, k)
			delete(g.deadlines, k)
		}
	}
	g.mu.Unlock()

	for _, k := range due {
		g.mapper.KeyUp(k)
	}
	return len(due)
}

// Reset forgets pending keys without releasing them, for use after a panic.
func (g *Gate) Reset() {
	g.mu.Lock()
	clear(g.deadlines)
	g.mu.Unlock()
}

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "236", Dark: "252"})
	accentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sustainStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// StatusLine renders the one-line terminal readout.
func StatusLine(octave int, sustain bool, held []int, message string) string {
	names := make([]string, len(held))
	for i, n := range held {
		names[i] = NoteName(n)
	}
	sus := statusStyle.Render("sustain off")
	if sustain {
		sus = sustainStyle.Render("SUSTAIN")
	}
	parts := []string{
		accentStyle.Render(fmt.Sprintf("oct %d", octave)),
		sus,
		statusStyle.Render("notes: " + strings.Join(names, " ")),
	}
	if message != "" {
		parts = append(parts, statusStyle.Render(message))
	}
	return strings.Join(parts, statusStyle.Render(" | "))
}

// Terminal plays the mapper from the controlling terminal. Space toggles
// sustain, arrows shift the octave, Enter panics, Esc or Ctrl-C quits.
type Terminal struct {
	Mapper *Mapper
	Gate   *Gate
	Out    io.Writer
	// Status supplies the trailing message of the status line, if set.
	Status func() string
}

func (t *Terminal) render() {
	if t.Out == nil {
		return
	}
	msg := ""
	if t.Status != nil {
		msg = t.Status()
	}
	fmt.Fprintf(t.Out, "\r\033[K%s", StatusLine(t.Mapper.Octave(), t.Mapper.Sustain(), t.Mapper.Held(), msg))
}

// Run reads keys until ctx is done or the user quits.
func (t *Terminal) Run(ctx context.Context) error {
	keys, err := term.GetKeys(16)
	if err != nil {
		return fmt.Errorf("failed to open terminal keyboard: %w", err)
	}
	defer term.Close()

	if t.Gate == nil {
		t.Gate = NewGate(t.Mapper, DefaultGate)
	}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	defer t.Mapper.Panic()

	t.render()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			if t.Gate.Expire(now) > 0 {
				t.render()
			}
		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				return fmt.Errorf("terminal keyboard: %w", ev.Err)
			}
			switch ev.Key {
			case term.KeyEsc, term.KeyCtrlC:
				return nil
			case term.KeySpace:
				t.Mapper.SetSustain(!t.Mapper.Sustain())
			case term.KeyArrowUp, term.KeyArrowRight:
				t.Mapper.ShiftOctave(1)
			case term.KeyArrowDown, term.KeyArrowLeft:
				t.Mapper.ShiftOctave(-1)
			case term.KeyEnter:
				t.Gate.Reset()
				t.Mapper.Panic()
				log.Println("[keyboard] panic")
			default:
				if ev.Rune == SustainKey {
					t.Mapper.SetSustain(!t.Mapper.Sustain())
					break
				}
				t.Gate.Press(ev.Rune, time.Now())
			}
			t.render()
		}
	}
}
