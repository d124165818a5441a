package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
)

// ErrUnrecognizedDocument is returned by Import for JSON that is neither a
// bundle, a patch file nor a bare patch.
var ErrUnrecognizedDocument = errors.New("not a patch document")

// ExportPatch renders one entry as an indented patch file.
func (s *Store) ExportPatch(name string) ([]byte, error) {
	f, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return f.Marshal()
}

// ExportAll renders every factory and user patch as one bundle.
func (s *Store) ExportAll() ([]byte, error) {
	s.mu.Lock()
	bundle := patch.Bundle{
		Factory:     append([]patch.File(nil), s.factory...),
		User:        s.userSorted(),
		Exported:    s.now(),
		Version:     patch.BundleVersion,
		Synthesizer: patch.Synthesizer,
	}
	s.mu.Unlock()

	b, err := json.MarshalIndent(&bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch bundle: %w", err)
	}
	return b, nil
}

// ExportFileName is the suggested file name for an exported patch.
func ExportFileName(name string) string {
	safe := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
	return safe + "_timbuk_patch.json"
}

// ImportResult reports what Import did with each entry.
type ImportResult struct {
	Imported []string          `json:"imported"`
	Skipped  map[string]string `json:"skipped,omitempty"`
}

type probe struct {
	User        json.RawMessage `json:"user"`
	Name        *string         `json:"name"`
	Data        json.RawMessage `json:"data"`
	Oscillators json.RawMessage `json:"oscillators"`
}

// Import accepts an export bundle, a single patch file, or bare patch data.
// Bare data is saved under fallbackName with any directory and .json suffix
// removed. Entries that are invalid or use a factory name are skipped.
func (s *Store) Import(data []byte, fallbackName string) (ImportResult, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", ErrUnrecognizedDocument, err)
	}

	res := ImportResult{Skipped: map[string]string{}}
	var files []patch.File

	switch {
	case p.User != nil:
		var raws []json.RawMessage
		if err := json.Unmarshal(p.User, &raws); err != nil {
			return ImportResult{}, fmt.Errorf("%w: user: %w", ErrUnrecognizedDocument, err)
		}
		for i, raw := range raws {
			var f patch.File
			if err := json.Unmarshal(raw, &f); err != nil {
				res.Skipped[fmt.Sprintf("#%d", i+1)] = err.Error()
				continue
			}
			files = append(files, f)
		}
	case p.Name != nil && p.Data != nil:
		var f patch.File
		if err := json.Unmarshal(data, &f); err != nil {
			return ImportResult{}, fmt.Errorf("import %q: %w", *p.Name, err)
		}
		files = append(files, f)
	case p.Oscillators != nil:
		pd, err := patch.Decode(data)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import %q: %w", fallbackName, err)
		}
		name := strings.TrimSuffix(filepath.Base(fallbackName), ".json")
		files = append(files, patch.File{Name: name, Data: pd})
	default:
		return ImportResult{}, ErrUnrecognizedDocument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, f := range files {
		f.Name = strings.TrimSpace(f.Name)
		switch {
		case f.Name == "":
			res.Skipped["(unnamed)"] = "missing name"
			continue
		case s.isFactory(f.Name):
			res.Skipped[f.Name] = apperrors.ErrReservedName.Error()
			continue
		}
		if err := f.Data.Validate(); err != nil {
			res.Skipped[f.Name] = err.Error()
			continue
		}
		f.Data = f.Data.Clamp()
		f.Category = cmpOrDefault(f.Category, defaultCategory)
		f.Author = cmpOrDefault(f.Author, s.author)
		f.Tags = normalizeTags(f.Tags)
		if f.Created.IsZero() {
			f.Created = now
		}
		if f.Modified.IsZero() {
			f.Modified = now
		}
		s.user[f.Name] = f
		res.Imported = append(res.Imported, f.Name)
	}

	for name, why := range res.Skipped {
		log.Printf("[store] skipped %s on import: %s", name, why)
	}
	if len(res.Imported) > 0 {
		s.persist(KeyPatches)
	}
	return res, nil
}

func cmpOrDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
