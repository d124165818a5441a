package app

import (
	"errors"
	"slices"
	"strconv"
	"testing"
	"time"

	"timbuk/internal/config"
	"timbuk/internal/engine"
	apperrors "timbuk/internal/errors"
	"timbuk/internal/patch"
	"timbuk/internal/status"
	"timbuk/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestApp(t *testing.T) (*App, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)}
	cfg := config.Default()
	cfg.Backend = config.BackendSilent
	a := New(cfg, Deps{Storage: store.NewMemoryStorage(), Now: c.Now})
	t.Cleanup(func() { a.Close() })
	return a, c
}

func TestStartsOnInit(t *testing.T) {
	a, _ := newTestApp(t)
	if a.Current() != "Init" {
		t.Errorf("current = %q", a.Current())
	}
	if a.Engine.Serialize() != patch.Init() {
		t.Error("engine does not hold the Init patch")
	}
	if a.Status.Text() != status.Ready {
		t.Errorf("status = %q", a.Status.Text())
	}
}

func TestLoadSaveFlow(t *testing.T) {
	a, _ := newTestApp(t)

	if err := a.LoadPatch("Warm Bass"); err != nil {
		t.Fatal(err)
	}
	if a.Engine.Filter().Cutoff != 500 {
		t.Errorf("cutoff = %v", a.Engine.Filter().Cutoff)
	}
	if a.Status.Text() != "Loaded: Warm Bass" {
		t.Errorf("status = %q", a.Status.Text())
	}

	a.Engine.SetFilterCutoff(800)
	if _, err := a.SavePatch("Warm Bass", store.Meta{}); !errors.Is(err, apperrors.ErrReservedName) {
		t.Fatalf("expected ErrReservedName, got %v", err)
	}
	if a.Status.Text() != "Cannot overwrite factory patches" {
		t.Errorf("status = %q", a.Status.Text())
	}

	f, err := a.SavePatch("Brighter Bass", store.Meta{Tags: []string{"bass"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.Data.Filter.Cutoff != 800 || a.Current() != "Brighter Bass" {
		t.Errorf("saved %+v as %q", f.Data.Filter, a.Current())
	}

	a.Engine.SetFilterCutoff(900)
	f, err = a.QuickSave()
	if err != nil {
		t.Fatal(err)
	}
	if f.Data.Filter.Cutoff != 900 || !slices.Equal(f.Tags, []string{"bass"}) {
		t.Errorf("quick save lost data or metadata: %+v", f)
	}

	if got := a.Store.Recent(); !slices.Equal(got, []string{"Brighter Bass", "Warm Bass"}) {
		t.Errorf("recent = %q", got)
	}
}

func TestNewPatchNeedsNameForQuickSave(t *testing.T) {
	a, _ := newTestApp(t)
	a.LoadPatch("Bright Lead")

	if err := a.NewPatch(); err != nil {
		t.Fatal(err)
	}
	if a.Current() != NewPatchName || a.Engine.Serialize() != patch.Init() {
		t.Error("new patch did not reset to Init")
	}
	if _, err := a.QuickSave(); !errors.Is(err, ErrNameRequired) {
		t.Errorf("expected ErrNameRequired, got %v", err)
	}
}

func TestDeleteAndFavorites(t *testing.T) {
	a, _ := newTestApp(t)

	if err := a.DeletePatch("Init"); !errors.Is(err, apperrors.ErrProtected) {
		t.Errorf("expected ErrProtected, got %v", err)
	}
	if a.Status.Current().Level != status.Error || a.Status.Text() != "Cannot delete factory patches" {
		t.Errorf("status = %+v", a.Status.Current())
	}

	a.SavePatch("Mine", store.Meta{})
	on, err := a.ToggleFavorite("Mine")
	if err != nil || !on {
		t.Fatalf("toggle = %v, %v", on, err)
	}
	if err := a.DeletePatch("Mine"); err != nil {
		t.Fatal(err)
	}
	if a.Store.IsFavorite("Mine") {
		t.Error("deleted patch still a favorite")
	}
	if _, err := a.ToggleFavorite("Mine"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadUnknownPatchLeavesEngineAlone(t *testing.T) {
	a, _ := newTestApp(t)
	before := a.Engine.Serialize()
	if err := a.LoadPatch("Missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if a.Engine.Serialize() != before {
		t.Error("engine changed on failed load")
	}
	if a.Status.Text() != "Patch 'Missing' not found" {
		t.Errorf("status = %q", a.Status.Text())
	}
}

func TestExportImportBetweenApps(t *testing.T) {
	src, c := newTestApp(t)
	src.LoadPatch("Techno Arp")
	src.SavePatch("Arp Two", store.Meta{})
	src.LoadPatch("Cosmic FX")
	src.SavePatch("Space Two", store.Meta{})

	bundle, name, err := src.ExportAll()
	if err != nil {
		t.Fatal(err)
	}
	if want := "timbuk_all_patches_" + strconv.FormatInt(c.t.UnixMilli(), 10) + ".json"; name != want {
		t.Errorf("file name = %q, want %q", name, want)
	}

	dst, _ := newTestApp(t)
	res, err := dst.Import(bundle, name)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Imported, []string{"Arp Two", "Space Two"}) {
		t.Errorf("imported = %q", res.Imported)
	}
	if dst.Status.Text() != "Imported 2 patches" {
		t.Errorf("status = %q", dst.Status.Text())
	}

	single, fileName, err := src.ExportPatch("Arp Two")
	if err != nil {
		t.Fatal(err)
	}
	if fileName != "Arp_Two_timbuk_patch.json" {
		t.Errorf("file name = %q", fileName)
	}
	third, _ := newTestApp(t)
	if _, err := third.Import(single, fileName); err != nil {
		t.Fatal(err)
	}
	if third.Current() != "Arp Two" {
		t.Errorf("single import was not loaded: current = %q", third.Current())
	}
	want, _ := src.Store.Get("Arp Two")
	if third.Engine.Serialize() != want.Data {
		t.Error("engine does not hold the imported patch")
	}

	if _, err := third.Import([]byte("not json"), "x.json"); err == nil {
		t.Error("expected an error for a broken file")
	}
	if third.Status.Text() != "Failed to import patches: Invalid file format" {
		t.Errorf("status = %q", third.Status.Text())
	}
}

func TestPanicSilencesKeyboardAndEngine(t *testing.T) {
	a, _ := newTestApp(t)
	a.Keys.KeyDown('q', false)
	a.Keys.KeyDown('e', false)
	a.Engine.NoteOn(30, 100)

	a.Panic()

	if a.Engine.ActiveVoices() != 0 || len(a.Keys.Held()) != 0 {
		t.Errorf("voices %d, held %v", a.Engine.ActiveVoices(), a.Keys.Held())
	}
	if a.Status.Text() != "All notes stopped" {
		t.Errorf("status = %q", a.Status.Text())
	}
}

func TestStatusClearsAfterTimeout(t *testing.T) {
	a, c := newTestApp(t)
	a.LoadPatch("Init")
	c.t = c.t.Add(a.Config.StatusTimeout)
	if a.Status.Text() != status.Ready {
		t.Errorf("status = %q", a.Status.Text())
	}
}

func TestOpenBackendSilent(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendSilent
	b, err := OpenBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(engine.SilentBackend); !ok {
		t.Errorf("backend = %T", b)
	}
}

func TestSnapshot(t *testing.T) {
	a, _ := newTestApp(t)
	a.LoadPatch("Ethereal Pad")
	a.Keys.ShiftOctave(1)
	a.Keys.KeyDown('z', false)

	s := a.Snapshot()
	if s.Patch != "Ethereal Pad" || s.Voices != 1 || s.Octave != 5 || s.Degraded {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Status.Text != "Loaded: Ethereal Pad" || s.Status.Level != status.Success {
		t.Errorf("status = %+v", s.Status)
	}
}

func TestApplyPatchRejectsBadEnum(t *testing.T) {
	a, _ := newTestApp(t)
	p := patch.Init()
	p.Filter.Type = "comb"
	if err := a.ApplyPatch(p); !errors.Is(err, apperrors.ErrInvalidEnum) {
		t.Fatalf("expected ErrInvalidEnum, got %v", err)
	}
	if a.Engine.Serialize() != patch.Init() {
		t.Error("engine changed on a rejected patch")
	}
}

func TestRandomizeOscillatorsKeepsTheRest(t *testing.T) {
	a, _ := newTestApp(t)
	a.LoadPatch("Warm Bass")
	before := a.Engine.Serialize()

	if err := a.RandomizeOscillators(); err != nil {
		t.Fatal(err)
	}
	after := a.Engine.Serialize()
	if after.Filter != before.Filter || after.Effects != before.Effects || after.LFO != before.LFO {
		t.Error("randomize changed more than the oscillators")
	}
	if a.Status.Text() != "Randomized oscillators" {
		t.Errorf("status = %q", a.Status.Text())
	}
}
