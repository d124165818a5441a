// Package controls binds UI controls to engine parameters: input clamping,
// step quantization, knob geometry and display formatting.
package controls

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
)

const (
	// MinRotation and MaxRotation bound the knob sweep in degrees.
	MinRotation = -135.0
	MaxRotation = 135.0

	// DragRange is how many pixels of vertical drag cover the full range.
	DragRange = 200.0
)

// Target is the engine surface a Binder drives.
type Target interface {
	Set(id patch.ParamID, v float64) (float64, error)
	SetChoice(id patch.ParamID, value string) error
	Serialize() patch.Patch
}

type Binder struct {
	target Target
}

func New(target Target) *Binder {
	return &Binder{target: target}
}

func lookup(id patch.ParamID) (patch.Param, error) {
	prm, ok := patch.Lookup(id)
	if !ok {
		return patch.Param{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownParam, id)
	}
	return prm, nil
}

// Change clamps raw, quantizes it to the control's step and forwards it. The
// stored value is returned.
func (b *Binder) Change(id patch.ParamID, raw float64) (float64, error) {
	prm, err := lookup(id)
	if err != nil {
		return 0, err
	}
	return b.target.Set(id, prm.Range.Quantize(raw))
}

// Choose sets an enum control by name.
func (b *Binder) Choose(id patch.ParamID, choice string) error {
	prm, err := lookup(id)
	if err != nil {
		return err
	}
	if prm.Kind != patch.KindChoice {
		return fmt.Errorf("%s is not a choice control", id)
	}
	return b.target.SetChoice(id, choice)
}

// Toggle sets an on/off control.
func (b *Binder) Toggle(id patch.ParamID, on bool) error {
	prm, err := lookup(id)
	if err != nil {
		return err
	}
	if prm.Kind != patch.KindToggle {
		return fmt.Errorf("%s is not a toggle", id)
	}
	v := 0.0
	if on {
		v = 1
	}
	_, err = b.target.Set(id, v)
	return err
}

// SetValue applies a loosely typed value, as received from JSON or a
// command line: numbers and numeric strings for knobs, booleans or on/off for
// toggles, names for choices. The updated descriptor is returned.
func (b *Binder) SetValue(id patch.ParamID, raw any) (Descriptor, error) {
	prm, err := lookup(id)
	if err != nil {
		return Descriptor{}, err
	}

	switch prm.Kind {
	case patch.KindChoice:
		err = b.Choose(id, cast.ToString(raw))
	case patch.KindToggle:
		var on bool
		if on, err = toBool(raw); err == nil {
			err = b.Toggle(id, on)
		}
	default:
		var v float64
		if v, err = cast.ToFloat64E(raw); err == nil {
			_, err = b.Change(id, v)
		}
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("set %s: %w", id, err)
	}
	return b.Describe(id)
}

func toBool(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
	}
	return cast.ToBoolE(v)
}

// Drag returns the value reached by dragging a knob deltaY pixels upwards from
// start. The drag moves along the knob's normalized travel so exponential
// controls feel even across their range.
func Drag(prm patch.Param, start, deltaY float64) float64 {
	n := prm.Range.Normalize(start) + deltaY/DragRange
	return prm.Range.Quantize(prm.Range.Denormalize(n))
}

// Rotation is the knob angle in degrees for v.
func Rotation(prm patch.Param, v float64) float64 {
	return MinRotation + prm.Range.Normalize(v)*(MaxRotation-MinRotation)
}

// Descriptor is everything a front end needs to draw one control.
type Descriptor struct {
	ID          patch.ParamID `json:"id"`
	Label       string        `json:"label"`
	Group       string        `json:"group"`
	Kind        string        `json:"kind"`
	Range       patch.Range   `json:"range"`
	Choices     []string      `json:"choices,omitempty"`
	Value       float64       `json:"value"`
	Text        string        `json:"text"`
	Rotation    float64       `json:"rotation,omitempty"`
	Description string        `json:"description,omitempty"`
}

func kindName(k patch.Kind) string {
	switch k {
	case patch.KindToggle:
		return "toggle"
	case patch.KindChoice:
		return "choice"
	}
	return "number"
}

// Descriptors lists every control with its current value.
func (b *Binder) Descriptors() []Descriptor {
	p := b.target.Serialize()
	out := make([]Descriptor, 0, len(patch.Params))
	for _, prm := range patch.Params {
		v := prm.Get(&p)
		d := Descriptor{
			ID:      prm.ID,
			Label:   prm.Label,
			Group:   prm.Group.String(),
			Kind:    kindName(prm.Kind),
			Range:   prm.Range,
			Choices: prm.Choices,
			Value:   v,
			Text:    Text(prm, &p),
		}
		if prm.Kind == patch.KindNumber {
			d.Rotation = Rotation(prm, v)
		}
		out = append(out, d)
	}
	return out
}

// Describe returns the descriptor of a single control.
func (b *Binder) Describe(id patch.ParamID) (Descriptor, error) {
	if _, err := lookup(id); err != nil {
		return Descriptor{}, err
	}
	for _, d := range b.Descriptors() {
		if d.ID == id {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownParam, id)
}

// Text formats the parameter's current value in p. Oscillator volumes read
// "-∞" while the oscillator is muted.
func Text(prm patch.Param, p *patch.Patch) string {
	if prm.Kind == patch.KindChoice && prm.Text != nil {
		return prm.Text(p)
	}
	if prm.Format == patch.FormatDecibels && isOscVolume(prm.ID) {
		muted, _ := patch.Lookup(prm.ID[:len("oscN-")] + "muted")
		if muted.Get(p) >= 0.5 {
			return "-∞"
		}
	}
	return Format(prm, prm.Get(p))
}

func isOscVolume(id patch.ParamID) bool {
	return id == "osc1-volume" || id == "osc2-volume"
}

// Format renders v for display. It never changes the stored value.
func Format(prm patch.Param, v float64) string {
	switch prm.Format {
	case patch.FormatDecibels:
		if math.IsInf(v, -1) {
			return "-∞"
		}
		return fmt.Sprintf("%.1fdB", v)
	case patch.FormatCents:
		return fmt.Sprintf("%.0f¢", v)
	case patch.FormatInteger:
		return fmt.Sprintf("%d", int(math.Round(v)))
	case patch.FormatFrequency:
		if v < 1000 {
			return fmt.Sprintf("%.0fHz", v)
		}
		return fmt.Sprintf("%.1fkHz", v/1000)
	case patch.FormatPercent:
		return fmt.Sprintf("%.0f%%", v*100)
	case patch.FormatTime:
		if v < 1 {
			return fmt.Sprintf("%.0fms", v*1000)
		}
		return fmt.Sprintf("%.2fs", v)
	case patch.FormatRate:
		return fmt.Sprintf("%.1fHz", v)
	case patch.FormatSeconds:
		return fmt.Sprintf("%.3fs", v)
	case patch.FormatToggle:
		if v >= 0.5 {
			return "on"
		}
		return "off"
	case patch.FormatChoice:
		i := int(math.Round(v))
		if i >= 0 && i < len(prm.Choices) {
			return prm.Choices[i]
		}
		return "?"
	case patch.FormatDecimal:
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
