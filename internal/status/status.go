// Package status holds the transient user-facing status line and turns
// errors into the messages shown on it.
package status

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	apperrors "timbuk/internal/errors"
)

const (
	DefaultTimeout = 3 * time.Second
	Ready          = "Ready"
)

type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warning Level = "warning"
	Error   Level = "error"
)

type Message struct {
	Text  string    `json:"text"`
	Level Level     `json:"level"`
	At    time.Time `json:"at"`
}

// Board shows one message at a time. A message other than Ready reverts to
// Ready once the timeout has passed; the check happens on read so no timer
// goroutine is needed.
type Board struct {
	mu      sync.Mutex
	current Message
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Board)

func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

func New(timeout time.Duration, opts ...Option) *Board {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b := &Board{timeout: timeout, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.current = Message{Text: Ready, Level: Info, At: b.now()}
	return b
}

func (b *Board) Show(level Level, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = Message{Text: text, Level: level, At: b.now()}
}

func (b *Board) Info(text string)    { b.Show(Info, text) }
func (b *Board) Success(text string) { b.Show(Success, text) }
func (b *Board) Warn(text string)    { b.Show(Warning, text) }

// Fail logs err and shows its user-facing message.
func (b *Board) Fail(err error) {
	log.Printf("[app] %v", err)
	b.Show(Error, UserMessage(err))
}

// Current returns the message being shown.
func (b *Board) Current() Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current.Text != Ready && b.now().Sub(b.current.At) >= b.timeout {
		b.current = Message{Text: Ready, Level: Info, At: b.now()}
	}
	return b.current
}

// Text is Current().Text.
func (b *Board) Text() string { return b.Current().Text }

// UserMessage returns the message attached for users with Wrap, falling back
// to the error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}
	return err.Error()
}

// Kind classifies err for transports that map failures to status codes.
func Kind(err error) ftag.Kind {
	if k := ftag.Get(err); k != "" {
		return k
	}
	return kindOf(err)
}

func kindOf(err error) ftag.Kind {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ftag.NotFound
	case errors.Is(err, apperrors.ErrReservedName):
		return ftag.AlreadyExists
	case errors.Is(err, apperrors.ErrProtected):
		return ftag.PermissionDenied
	case errors.Is(err, apperrors.ErrInvalidEnum),
		errors.Is(err, apperrors.ErrIncompletePatch),
		errors.Is(err, apperrors.ErrUnknownParam),
		errors.Is(err, apperrors.ErrInvalidNote):
		return ftag.InvalidArgument
	}
	return ftag.Internal
}

// Wrap attaches issue as the user-facing message and tags err with its kind.
// errors.Is keeps matching the wrapped sentinel.
func Wrap(err error, issue string) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err,
		fmsg.WithDesc(issue, issue),
		ftag.With(kindOf(err)),
	)
}
