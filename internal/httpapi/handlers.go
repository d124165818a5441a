package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Southclaws/fault/ftag"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"timbuk/internal/app"
	"timbuk/internal/keyboard"
	"timbuk/internal/patch"
	"timbuk/internal/status"
	"timbuk/internal/store"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, app.ErrNameRequired), errors.Is(err, store.ErrUnrecognizedDocument):
		return http.StatusBadRequest
	}
	switch status.Kind(err) {
	case ftag.NotFound:
		return http.StatusNotFound
	case ftag.AlreadyExists:
		return http.StatusConflict
	case ftag.PermissionDenied:
		return http.StatusForbidden
	case ftag.InvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		log.Printf("[http] %v", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Message: status.UserMessage(err)})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Binder.Descriptors())
}

func (s *Server) handleParam(w http.ResponseWriter, r *http.Request) {
	d, err := s.app.Binder.Describe(patch.ParamID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type setParamRequest struct {
	Value any `json:"value"`
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var req setParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Value == nil {
		badRequest(w, errors.New(`missing "value"`))
		return
	}
	d, err := s.app.Binder.SetValue(patch.ParamID(chi.URLParam(r, "id")), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetPatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name": s.app.Current(),
		"data": s.app.Engine.Serialize(),
	})
}

func (s *Server) handleApplyPatch(w http.ResponseWriter, r *http.Request) {
	var p patch.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Message: "Patch is invalid"})
		return
	}
	if err := s.app.ApplyPatch(p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	b, err := patch.Schema()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(b)
}

func (s *Server) handleNewPatch(w http.ResponseWriter, r *http.Request) {
	if err := s.app.NewPatch(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleQuickSave(w http.ResponseWriter, r *http.Request) {
	f, err := s.app.QuickSave()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRandomize(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RandomizeOscillators(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Engine.Serialize())
}

func (s *Server) handleNoteOn(w http.ResponseWriter, r *http.Request) {
	note, err := keyboard.NoteArg(chi.URLParam(r, "note"))
	if err != nil {
		writeError(w, err)
		return
	}
	vel := keyboard.DefaultVelocity
	if v := r.URL.Query().Get("velocity"); v != "" {
		if vel, err = cast.ToIntE(v); err != nil {
			badRequest(w, err)
			return
		}
	}
	h, err := s.app.Engine.NoteOn(note, vel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleNoteOff(w http.ResponseWriter, r *http.Request) {
	note, err := keyboard.NoteArg(chi.URLParam(r, "note"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.app.Engine.NoteOff(note)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSustain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.app.Keys.SetSustain(req.On)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	s.app.Panic()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPatches(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("q"); q != "" {
		writeJSON(w, http.StatusOK, s.app.Store.Search(q))
		return
	}
	writeJSON(w, http.StatusOK, s.app.Store.List())
}

func (s *Server) handleGetStored(w http.ResponseWriter, r *http.Request) {
	f, err := s.app.Store.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type saveRequest struct {
	Category    string   `json:"category"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, err)
			return
		}
	}
	f, err := s.app.SavePatch(chi.URLParam(r, "name"), store.Meta{
		Category:    req.Category,
		Author:      req.Author,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeletePatch(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.app.LoadPatch(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	on, err := s.app.ToggleFavorite(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": on})
}

func (s *Server) handleExportPatch(w http.ResponseWriter, r *http.Request) {
	b, name, err := s.app.ExportPatch(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, name, b)
}

func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	b, name, err := s.app.ExportAll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, name, b)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(r, MaxImportSize)
	if err != nil {
		badRequest(w, err)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Imported Patch"
	}
	res, err := s.app.Import(b, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"samples": s.app.Engine.WaveformData()})
}

func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bins": s.app.Engine.SpectrumMagnitudes()})
}
