// Package httpapi serves the control surface over HTTP for browser front ends:
// parameters, notes, the patch catalog and the visualization feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"timbuk/internal/app"
)

// MaxImportSize bounds the body of an import request.
const MaxImportSize = 4 << 20

type Server struct {
	app    *app.App
	router *chi.Mux
}

func New(a *app.App) *Server {
	s := &Server{app: a, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/params", s.handleParams)
		r.Get("/params/{id}", s.handleParam)
		r.Put("/params/{id}", s.handleSetParam)

		r.Get("/patch", s.handleGetPatch)
		r.Put("/patch", s.handleApplyPatch)
		r.Get("/patch/schema", s.handleSchema)
		r.Post("/patch/new", s.handleNewPatch)
		r.Post("/patch/save", s.handleQuickSave)
		r.Post("/patch/randomize", s.handleRandomize)

		r.Post("/notes/{note}/on", s.handleNoteOn)
		r.Post("/notes/{note}/off", s.handleNoteOff)
		r.Post("/sustain", s.handleSustain)
		r.Post("/panic", s.handlePanic)

		r.Get("/patches", s.handleListPatches)
		r.Get("/patches/{name}", s.handleGetStored)
		r.Put("/patches/{name}", s.handleSave)
		r.Delete("/patches/{name}", s.handleDelete)
		r.Post("/patches/{name}/load", s.handleLoad)
		r.Post("/patches/{name}/favorite", s.handleFavorite)
		r.Get("/patches/{name}/export", s.handleExportPatch)

		r.Get("/export", s.handleExportAll)
		r.Post("/import", s.handleImport)

		r.Get("/scope/waveform", s.handleWaveform)
		r.Get("/scope/spectrum", s.handleSpectrum)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Println("[http] shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[http] shutdown error: %v", err)
		}
	}()

	log.Printf("[http] listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-done
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] failed to write response: %v", err)
	}
}

func writeAttachment(w http.ResponseWriter, name string, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(b)
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return b, nil
}
