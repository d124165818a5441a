package patch

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "timbuk/internal/errors"
)

const (
	BundleVersion = "1.0"
	Synthesizer   = "Timbuk by Sam Soko"
)

// File is a catalog entry as written to disk: metadata plus the full patch.
type File struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Data        Patch     `json:"data"`
}

// UnmarshalJSON decodes a file and requires its data branch. Metadata fields
// are optional.
func (f *File) UnmarshalJSON(b []byte) error {
	type plain File
	var w struct {
		plain
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Data) == 0 {
		return apperrors.Missing("data")
	}
	p, err := Decode(w.Data)
	if err != nil {
		return err
	}
	*f = File(w.plain)
	f.Data = p
	return nil
}

// Bundle is the "all patches" export document.
type Bundle struct {
	Factory     []File    `json:"factory"`
	User        []File    `json:"user"`
	Exported    time.Time `json:"exported"`
	Version     string    `json:"version"`
	Synthesizer string    `json:"synthesizer"`
}

// HasTag reports whether the entry carries tag.
func (f File) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Marshal renders a file the way exports are written: indented JSON.
func (f File) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch %q to JSON: %w", f.Name, err)
	}
	return b, nil
}
