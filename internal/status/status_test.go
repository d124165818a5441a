package status

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"

	apperrors "timbuk/internal/errors"
)

func TestBoardAutoClears(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	b := New(3*time.Second, WithClock(func() time.Time { return now }))

	if got := b.Current(); got.Text != Ready || got.Level != Info {
		t.Fatalf("initial message = %+v", got)
	}

	b.Success("Saved patch Night Drive")
	now = now.Add(2 * time.Second)
	if got := b.Current(); got.Text != "Saved patch Night Drive" || got.Level != Success {
		t.Errorf("message cleared early: %+v", got)
	}

	now = now.Add(time.Second)
	if got := b.Text(); got != Ready {
		t.Errorf("message after timeout = %q", got)
	}

	b.Warn("High CPU usage")
	b.Info("Loaded Init")
	if got := b.Current(); got.Text != "Loaded Init" {
		t.Errorf("newest message should win: %+v", got)
	}
}

func TestDefaultTimeout(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	b := New(0, WithClock(func() time.Time { return now }))
	b.Info("hello")
	now = now.Add(DefaultTimeout - time.Millisecond)
	if b.Text() != "hello" {
		t.Error("cleared before the default timeout")
	}
	now = now.Add(time.Millisecond)
	if b.Text() != Ready {
		t.Error("not cleared at the default timeout")
	}
}

func TestWrapKeepsSentinelAndMessage(t *testing.T) {
	base := fmt.Errorf("%w: %q", apperrors.ErrReservedName, "Init")
	err := Wrap(base, "Cannot overwrite factory patch")

	if !errors.Is(err, apperrors.ErrReservedName) {
		t.Error("errors.Is lost the sentinel")
	}
	if got := UserMessage(err); got != "Cannot overwrite factory patch" {
		t.Errorf("UserMessage = %q", got)
	}
	if Kind(err) != ftag.AlreadyExists {
		t.Errorf("Kind = %v", Kind(err))
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestKindWithoutWrap(t *testing.T) {
	tests := []struct {
		err  error
		want ftag.Kind
	}{
		{apperrors.ErrNotFound, ftag.NotFound},
		{apperrors.ErrProtected, ftag.PermissionDenied},
		{apperrors.NewEnumError("filter.type", "comb"), ftag.InvalidArgument},
		{fmt.Errorf("load: %w", apperrors.ErrIncompletePatch), ftag.InvalidArgument},
		{errors.New("disk on fire"), ftag.Internal},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFailShowsUserMessage(t *testing.T) {
	b := New(time.Minute)
	b.Fail(errors.New("plain failure"))
	if got := b.Current(); got.Level != Error || got.Text != "plain failure" {
		t.Errorf("message = %+v", got)
	}
	b.Fail(Wrap(apperrors.ErrNotFound, "Patch not found"))
	if got := b.Text(); got != "Patch not found" {
		t.Errorf("message = %q", got)
	}
}
