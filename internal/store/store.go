// Package store is the patch catalog: immutable factory patches, user patches,
// the recently used list and favorites, persisted through a Storage.
package store

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
)

const (
	KeyPatches   = "timbuk_patches"
	KeyRecent    = "timbuk_recent_patches"
	KeyFavorites = "timbuk_favorite_patches"

	// MaxRecent bounds the recently used list.
	MaxRecent = 10

	defaultCategory = "User"
	defaultAuthor   = "User"
)

// Meta is the user-editable part of a catalog entry.
type Meta struct {
	Category    string
	Author      string
	Description string
	Tags        []string
}

// Entry is a catalog entry with its flags for listing.
type Entry struct {
	patch.File
	Factory  bool `json:"factory"`
	Favorite bool `json:"favorite"`
}

// Catalog groups entries the way the patch browser shows them.
type Catalog struct {
	Factory   []Entry `json:"factory"`
	User      []Entry `json:"user"`
	Recent    []Entry `json:"recent"`
	Favorites []Entry `json:"favorites"`
}

type Store struct {
	mu        sync.Mutex
	storage   Storage
	factory   []patch.File
	user      map[string]patch.File
	recent    []string
	favorites []string
	recovered []error
	onError   func(error)
	now       func() time.Time
	author    string
}

type Option func(*Store)

// WithClock replaces time.Now for created/modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithErrorHandler is called with every persistence failure, after it has
// been logged. The handler runs with the store locked and must not call back
// into it.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onError = fn }
}

// WithAuthor sets the author stamped on saves that do not name one.
func WithAuthor(author string) Option {
	return func(s *Store) { s.author = author }
}

// Open loads the persisted collections. A key that cannot be read or decoded
// is reset to empty; the failure is logged and reported by Recovered.
func Open(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		factory: patch.Factory(),
		user:    make(map[string]patch.File),
		now:     time.Now,
		author:  defaultAuthor,
	}
	for _, opt := range opts {
		opt(s)
	}

	var files []json.RawMessage
	if s.load(KeyPatches, &files) {
		for i, raw := range files {
			var f patch.File
			if err := json.Unmarshal(raw, &f); err != nil {
				s.corrupt(KeyPatches, fmt.Errorf("entry %d: %w", i, err))
				continue
			}
			if err := f.Data.Validate(); err != nil {
				s.corrupt(KeyPatches, fmt.Errorf("entry %q: %w", f.Name, err))
				continue
			}
			if f.Name == "" || s.isFactory(f.Name) {
				s.corrupt(KeyPatches, fmt.Errorf("entry %d has an invalid name %q", i, f.Name))
				continue
			}
			s.user[f.Name] = f
		}
	}

	var names []string
	if s.load(KeyRecent, &names) {
		s.recent = dedupe(names, MaxRecent)
	}
	names = nil
	if s.load(KeyFavorites, &names) {
		s.favorites = dedupe(names, 0)
	}

	log.Printf("[store] loaded %d user patches, %d recent, %d favorites", len(s.user), len(s.recent), len(s.favorites))
	return s
}

func (s *Store) load(key string, v any) bool {
	b, err := s.storage.Load(key)
	if err != nil {
		s.corrupt(key, err)
		return false
	}
	if b == nil {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.corrupt(key, err)
		return false
	}
	return true
}

func (s *Store) corrupt(key string, err error) {
	err = fmt.Errorf("%w: %s: %w", apperrors.ErrCorruptPersistedState, key, err)
	log.Printf("[store] %v; continuing without it", err)
	s.recovered = append(s.recovered, err)
}

func dedupe(names []string, limit int) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Recovered lists the persisted keys that were reset when the store opened.
func (s *Store) Recovered() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recovered)
}

func (s *Store) isFactory(name string) bool {
	return slices.ContainsFunc(s.factory, func(f patch.File) bool { return f.Name == name })
}

// IsFactory reports whether name belongs to a built-in patch.
func (s *Store) IsFactory(name string) bool {
	return s.isFactory(name)
}

func (s *Store) get(name string) (patch.File, bool) {
	for _, f := range s.factory {
		if f.Name == name {
			return f, true
		}
	}
	f, ok := s.user[name]
	return f, ok
}

// Get returns the factory or user entry called name.
func (s *Store) Get(name string) (patch.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.get(name)
	if !ok {
		return patch.File{}, fmt.Errorf("%w: %q", apperrors.ErrNotFound, name)
	}
	return f, nil
}

// Load is Get for patches the user opens: it also moves name to the front of
// the recently used list.
func (s *Store) Load(name string) (patch.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.get(name)
	if !ok {
		return patch.File{}, fmt.Errorf("%w: %q", apperrors.ErrNotFound, name)
	}
	s.touch(name)
	s.persist(KeyRecent)
	return f, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Save stores p as a user patch, replacing any user patch of the same name.
// Names of factory patches are reserved.
func (s *Store) Save(name string, p patch.Patch, meta Meta) (patch.File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return patch.File{}, fmt.Errorf("patch name must not be empty")
	}
	if err := p.Validate(); err != nil {
		return patch.File{}, fmt.Errorf("save %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isFactory(name) {
		return patch.File{}, fmt.Errorf("%w: %q", apperrors.ErrReservedName, name)
	}

	now := s.now()
	f := patch.File{
		Name:        name,
		Category:    cmp.Or(strings.TrimSpace(meta.Category), defaultCategory),
		Author:      cmp.Or(strings.TrimSpace(meta.Author), s.author),
		Description: meta.Description,
		Tags:        normalizeTags(meta.Tags),
		Created:     now,
		Modified:    now,
		Data:        p.Clamp(),
	}
	if old, ok := s.user[name]; ok && !old.Created.IsZero() {
		f.Created = old.Created
	}
	s.user[name] = f
	s.touch(name)

	s.persist(KeyPatches, KeyRecent)
	return f, nil
}

// Delete removes a user patch and drops it from recent and favorites.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isFactory(name) {
		return fmt.Errorf("%w: %q", apperrors.ErrProtected, name)
	}
	if _, ok := s.user[name]; !ok {
		return fmt.Errorf("%w: %q", apperrors.ErrNotFound, name)
	}
	delete(s.user, name)
	s.recent = slices.DeleteFunc(s.recent, func(n string) bool { return n == name })
	s.favorites = slices.DeleteFunc(s.favorites, func(n string) bool { return n == name })

	s.persist(KeyPatches, KeyRecent, KeyFavorites)
	return nil
}

func (s *Store) touch(name string) {
	s.recent = slices.DeleteFunc(s.recent, func(n string) bool { return n == name })
	s.recent = slices.Insert(s.recent, 0, name)
	if len(s.recent) > MaxRecent {
		s.recent = s.recent[:MaxRecent]
	}
}

// Touch moves name to the front of the recently used list. Only catalog
// entries are recorded.
func (s *Store) Touch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(name); !ok {
		return fmt.Errorf("%w: %q", apperrors.ErrNotFound, name)
	}
	s.touch(name)
	s.persist(KeyRecent)
	return nil
}

// Recent returns the recently used names, most recent first.
func (s *Store) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recent)
}

// ToggleFavorite flips name's favorite flag and returns the new state.
func (s *Store) ToggleFavorite(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(name); !ok {
		return false, fmt.Errorf("%w: %q", apperrors.ErrNotFound, name)
	}
	on := !slices.Contains(s.favorites, name)
	if on {
		s.favorites = append(s.favorites, name)
	} else {
		s.favorites = slices.DeleteFunc(s.favorites, func(n string) bool { return n == name })
	}
	s.persist(KeyFavorites)
	return on, nil
}

func (s *Store) IsFavorite(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.favorites, name)
}

// Favorites returns favorite names in the order they were added.
func (s *Store) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites)
}

func (s *Store) entry(f patch.File) Entry {
	return Entry{File: f, Factory: s.isFactory(f.Name), Favorite: slices.Contains(s.favorites, f.Name)}
}

func (s *Store) userSorted() []patch.File {
	files := make([]patch.File, 0, len(s.user))
	for _, f := range s.user {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

func (s *Store) entries(names []string) []Entry {
	out := make([]Entry, 0, len(names))
	for _, n := range names {
		if f, ok := s.get(n); ok {
			out = append(out, s.entry(f))
		}
	}
	return out
}

// List returns the whole catalog. User patches are sorted by name.
func (s *Store) List() Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Catalog
	for _, f := range s.factory {
		c.Factory = append(c.Factory, s.entry(f))
	}
	for _, f := range s.userSorted() {
		c.User = append(c.User, s.entry(f))
	}
	c.Recent = s.entries(s.recent)
	c.Favorites = s.entries(s.favorites)
	return c
}

// Names returns factory names followed by user names.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.factory)+len(s.user))
	for _, f := range s.factory {
		names = append(names, f.Name)
	}
	for _, f := range s.userSorted() {
		names = append(names, f.Name)
	}
	return names
}

// Search matches query case-insensitively against name, category,
// description and tags.
func (s *Store) Search(query string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	match := func(f patch.File) bool {
		if strings.Contains(strings.ToLower(f.Name), q) ||
			strings.Contains(strings.ToLower(f.Category), q) ||
			strings.Contains(strings.ToLower(f.Description), q) {
			return true
		}
		return slices.ContainsFunc(f.Tags, func(t string) bool {
			return strings.Contains(strings.ToLower(t), q)
		})
	}

	var out []Entry
	for _, f := range s.factory {
		if match(f) {
			out = append(out, s.entry(f))
		}
	}
	for _, f := range s.userSorted() {
		if match(f) {
			out = append(out, s.entry(f))
		}
	}
	return out
}

// Flush rewrites every collection. It is called on shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(KeyPatches, KeyRecent, KeyFavorites)
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

// persist writes keys; failures are logged and passed to the error handler
// while the in-memory state stays authoritative.
func (s *Store) persist(keys ...string) error {
	var firstErr error
	for _, key := range keys {
		var v any
		switch key {
		case KeyPatches:
			v = s.userSorted()
		case KeyRecent:
			v = nonNil(s.recent)
		case KeyFavorites:
			v = nonNil(s.favorites)
		}
		b, err := json.Marshal(v)
		if err == nil {
			err = s.storage.Save(key, b)
		}
		if err != nil {
			err = fmt.Errorf("failed to persist %s: %w", key, err)
			log.Printf("[store] %v", err)
			if s.onError != nil {
				s.onError(err)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
