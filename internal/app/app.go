// Package app wires the synthesizer together and exposes the operations a
// front end triggers from menus and shortcuts.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"timbuk/internal/backend/midiout"
	"timbuk/internal/backend/render"
	"timbuk/internal/config"
	"timbuk/internal/controls"
	"timbuk/internal/engine"
	apperrors "timbuk/internal/errors"
	"timbuk/internal/keyboard"
	"timbuk/internal/patch"
	"timbuk/internal/status"
	"timbuk/internal/store"
)

// NewPatchName is the working name of a patch created with NewPatch.
const NewPatchName = "New Patch"

// ErrNameRequired is returned by QuickSave when the current patch has no
// name of its own yet.
var ErrNameRequired = errors.New("patch needs a name before it can be saved")

type App struct {
	Config config.Config
	Engine *engine.Engine
	Store  *store.Store
	Binder *controls.Binder
	Keys   *keyboard.Mapper
	Status *status.Board

	// Degraded is set when audio output could not start and the engine runs
	// on the silent backend.
	Degraded bool

	mu      sync.Mutex
	current string
	now     func() time.Time
	stop    []func()
}

// Deps are the collaborators New does not build itself.
type Deps struct {
	Backend engine.Backend
	Storage store.Storage
	Now     func() time.Time
}

// New builds the components in dependency order: engine, store, control
// binder, keyboard mapper, status board. Nothing is started.
func New(cfg config.Config, deps Deps) *App {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	backend := deps.Backend
	if backend == nil {
		backend = engine.SilentBackend{}
	}
	storage := deps.Storage
	if storage == nil {
		storage = store.NewMemoryStorage()
	}

	a := &App{Config: cfg, now: now, current: patch.Factory()[0].Name}
	a.Status = status.New(cfg.StatusTimeout, status.WithClock(now))
	a.Engine = engine.New(backend, engine.WithClock(now))
	a.Store = store.Open(storage,
		store.WithClock(now),
		store.WithAuthor(cfg.Author),
		store.WithErrorHandler(func(err error) {
			a.Status.Show(status.Warning, "Could not write patches to disk")
		}),
	)
	a.Binder = controls.New(a.Engine)
	a.Keys = keyboard.NewMapper(a.Engine)

	if rec := a.Store.Recovered(); len(rec) > 0 {
		a.Status.Warn(fmt.Sprintf("Reset %d damaged patch collection(s)", len(rec)))
	}
	return a
}

// OpenBackend starts the backend named in cfg. When it cannot start, the
// silent backend is returned together with the error so the caller can run
// degraded.
func OpenBackend(cfg config.Config) (engine.Backend, error) {
	var factory engine.Factory
	switch cfg.Backend {
	case config.BackendSilent:
		return engine.SilentBackend{}, nil
	case config.BackendMIDI:
		factory = func() (engine.Backend, error) {
			idx, err := midiout.FindOutPort(cfg.MIDI.OutPort)
			if err != nil {
				return nil, err
			}
			return midiout.Open(idx, uint8(cfg.MIDI.Channel-1))
		}
	default:
		frames := int(cfg.BufferSize.Seconds() * float64(cfg.SampleRate))
		factory = func() (engine.Backend, error) {
			return render.Open(cfg.SampleRate, frames)
		}
	}

	b, err := engine.Open(cfg.Backend, factory)
	if err != nil {
		return engine.SilentBackend{}, err
	}
	return b, nil
}

// Open is the composition root used by the commands: it opens the backend,
// the on-disk store and, when configured, the MIDI input, then starts the
// voice reaper. Close undoes it.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	storage, err := store.NewFileStorage(filepath.Join(cfg.DataDir, "patches"))
	if err != nil {
		return nil, err
	}

	backend, berr := OpenBackend(cfg)
	a := New(cfg, Deps{Backend: backend, Storage: storage})
	if berr != nil {
		a.Degraded = true
		log.Printf("[app] %v; continuing without sound", berr)
		a.Status.Fail(status.Wrap(berr, "Audio output unavailable, running silent"))
	}

	if cfg.MIDI.InPort != "" {
		if err := a.listenMIDI(cfg); err != nil {
			log.Printf("[app] MIDI input disabled: %v", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	go a.Engine.Run(runCtx)
	a.stop = append(a.stop, cancel)
	return a, nil
}

func (a *App) listenMIDI(cfg config.Config) error {
	idx, err := midiout.FindInPort(cfg.MIDI.InPort)
	if err != nil {
		return err
	}
	in, err := midi.InPort(idx)
	if err != nil {
		return fmt.Errorf("failed to open MIDI input %d: %w", idx, err)
	}
	stop, err := keyboard.ListenMIDI(in, a.Keys, cfg.MIDI.Channel-1)
	if err != nil {
		return err
	}
	a.stop = append(a.stop, stop)
	return nil
}

// Current is the name of the patch being edited.
func (a *App) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) setCurrent(name string) {
	a.mu.Lock()
	a.current = name
	a.mu.Unlock()
}

// NewPatch resets the engine to the Init patch under a working name.
func (a *App) NewPatch() error {
	if err := a.Engine.Apply(patch.Init()); err != nil {
		return a.fail(err, "Could not create a new patch")
	}
	a.setCurrent(NewPatchName)
	a.Status.Info("Created new patch")
	return nil
}

// LoadPatch applies a stored patch and marks it recently used.
func (a *App) LoadPatch(name string) error {
	f, err := a.Store.Load(name)
	if err != nil {
		return a.fail(err, fmt.Sprintf("Patch '%s' not found", name))
	}
	if err := a.Engine.Apply(f.Data); err != nil {
		return a.fail(err, fmt.Sprintf("Patch '%s' is invalid", name))
	}
	a.setCurrent(f.Name)
	a.Status.Success("Loaded: " + f.Name)
	return nil
}

// SavePatch stores the engine's current sound as a user patch.
func (a *App) SavePatch(name string, meta store.Meta) (patch.File, error) {
	f, err := a.Store.Save(name, a.Engine.Serialize(), meta)
	if err != nil {
		return patch.File{}, a.fail(err, saveIssue(err))
	}
	a.setCurrent(f.Name)
	a.Status.Success("Saved: " + f.Name)
	return f, nil
}

func saveIssue(err error) string {
	if errors.Is(err, apperrors.ErrReservedName) {
		return "Cannot overwrite factory patches"
	}
	return "Could not save patch"
}

// QuickSave overwrites the current user patch, keeping its metadata. New and
// factory patches need a name first.
func (a *App) QuickSave() (patch.File, error) {
	name := a.Current()
	if name == NewPatchName || a.Store.IsFactory(name) {
		return patch.File{}, a.fail(ErrNameRequired, "Choose a name to save this patch")
	}
	meta := store.Meta{}
	if old, err := a.Store.Get(name); err == nil {
		meta = store.Meta{Category: old.Category, Author: old.Author, Description: old.Description, Tags: old.Tags}
	}
	return a.SavePatch(name, meta)
}

// DeletePatch removes a user patch. Factory patches are protected.
func (a *App) DeletePatch(name string) error {
	if err := a.Store.Delete(name); err != nil {
		issue := fmt.Sprintf("Patch '%s' not found", name)
		if a.Store.IsFactory(name) {
			issue = "Cannot delete factory patches"
		}
		return a.fail(err, issue)
	}
	a.Status.Warn("Deleted: " + name)
	return nil
}

// ToggleFavorite flips the favorite flag and reports the new state.
func (a *App) ToggleFavorite(name string) (bool, error) {
	on, err := a.Store.ToggleFavorite(name)
	if err != nil {
		return false, a.fail(err, fmt.Sprintf("Patch '%s' not found", name))
	}
	if on {
		a.Status.Success("Added to favorites: " + name)
	} else {
		a.Status.Info("Removed from favorites: " + name)
	}
	return on, nil
}

// ExportPatch returns the patch file and a suggested file name.
func (a *App) ExportPatch(name string) ([]byte, string, error) {
	b, err := a.Store.ExportPatch(name)
	if err != nil {
		return nil, "", a.fail(err, fmt.Sprintf("Patch '%s' not found", name))
	}
	a.Status.Success("Exported: " + name)
	return b, store.ExportFileName(name), nil
}

// ExportAll returns the bundle of every patch and a suggested file name.
func (a *App) ExportAll() ([]byte, string, error) {
	b, err := a.Store.ExportAll()
	if err != nil {
		return nil, "", a.fail(err, "Could not export patches")
	}
	a.Status.Success("Exported all patches")
	return b, fmt.Sprintf("timbuk_all_patches_%d.json", a.now().UnixMilli()), nil
}

// Import adds the patches in data. A document holding a single patch is
// loaded straight away.
func (a *App) Import(data []byte, fileName string) (store.ImportResult, error) {
	res, err := a.Store.Import(data, fileName)
	if err != nil {
		return res, a.fail(err, "Failed to import patches: Invalid file format")
	}
	switch {
	case len(res.Imported) == 1 && len(res.Skipped) == 0:
		if err := a.LoadPatch(res.Imported[0]); err != nil {
			return res, err
		}
	case len(res.Imported) == 0:
		a.Status.Warn("No patches imported")
	default:
		a.Status.Success(fmt.Sprintf("Imported %d patches", len(res.Imported)))
	}
	return res, nil
}

// Snapshot is what a front end polls to draw the header and status line.
type Snapshot struct {
	Patch    string         `json:"patch"`
	Status   status.Message `json:"status"`
	Voices   int            `json:"voices"`
	Load     float64        `json:"load"`
	Octave   int            `json:"octave"`
	Sustain  bool           `json:"sustain"`
	Degraded bool           `json:"degraded"`
}

func (a *App) Snapshot() Snapshot {
	return Snapshot{
		Patch:    a.Current(),
		Status:   a.Status.Current(),
		Voices:   a.Engine.ActiveVoices(),
		Load:     a.Engine.Load(),
		Octave:   a.Keys.Octave(),
		Sustain:  a.Keys.Sustain(),
		Degraded: a.Degraded,
	}
}

// ApplyPatch replaces the engine's sound with p, keeping the current name.
func (a *App) ApplyPatch(p patch.Patch) error {
	if err := a.Engine.Apply(p); err != nil {
		return a.fail(err, "Patch is invalid")
	}
	a.Status.Info("Applied patch")
	return nil
}

// RandomizeOscillators rolls new oscillator settings on the current sound.
func (a *App) RandomizeOscillators() error {
	p := a.Engine.Serialize()
	seed := uint64(a.now().UnixNano())
	p.RandomizeOscillators(rand.New(rand.NewPCG(seed, seed>>32)))
	if err := a.Engine.Apply(p); err != nil {
		return a.fail(err, "Could not randomize oscillators")
	}
	a.Status.Info("Randomized oscillators")
	return nil
}

// Panic releases everything the keyboard holds and silences the engine.
func (a *App) Panic() {
	a.Keys.Panic()
	a.Status.Warn("All notes stopped")
}

// Close silences the engine, stops background work and flushes the store.
func (a *App) Close() error {
	for i := len(a.stop) - 1; i >= 0; i-- {
		a.stop[i]()
	}
	a.stop = nil
	return errors.Join(a.Engine.Close(), a.Store.Flush())
}

func (a *App) fail(err error, issue string) error {
	err = status.Wrap(err, issue)
	a.Status.Fail(err)
	return err
}
