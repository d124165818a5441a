// Package mcpserver exposes the synthesizer to MCP clients: every menu
// command, parameter edits and note input are tools, the current patch and
// the catalog are resources.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"timbuk/internal/app"
	"timbuk/internal/keyboard"
	"timbuk/internal/patch"
	"timbuk/internal/store"
)

const (
	Name    = "Timbuk MCP"
	Version = "1.0.0"

	CurrentPatchURI = "timbuk://patch/current"
	CatalogURI      = "timbuk://patches"
)

type Server struct {
	app *app.App
	mcp *server.MCPServer
}

func New(a *app.App) *Server {
	s := &Server{
		app: a,
		mcp: server.NewMCPServer(
			Name,
			Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying server, for transports other than stdio.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve blocks serving MCP over stdin/stdout.
func (s *Server) Serve() error {
	log.Println("[mcp] Starting Timbuk MCP server...")
	if err := server.ServeStdio(s.mcp); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("timbuk_describe-params",
		mcp.WithDescription("Lists every synthesis parameter with its range, choices, current value and display text."),
	), s.describeParams)

	s.mcp.AddTool(mcp.NewTool("timbuk_patch-schema",
		mcp.WithDescription("Returns the JSON Schema of a patch document."),
	), s.patchSchema)

	s.mcp.AddTool(mcp.NewTool("timbuk_get-patch",
		mcp.WithDescription("Returns a patch as JSON. Without a name, returns the sound currently loaded in the engine."),
		mcp.WithString("name", mcp.Description("Name of a stored patch.")),
	), s.getPatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_apply-patch",
		mcp.WithDescription("Replaces the current sound with a patch. All sections must be present."),
		mcp.WithString("patch-json", mcp.Required(), mcp.Description("The patch data in JSON format. The JSON must conform to the schema returned by timbuk_patch-schema.")),
	), s.applyPatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_randomize-oscillators",
		mcp.WithDescription("Gives both oscillators a random waveform, level, detune and octave."),
	), s.randomizeOscillators)

	s.mcp.AddTool(mcp.NewTool("timbuk_set-param",
		mcp.WithDescription("Changes one parameter. Numbers are clamped into range and snapped to the step."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Parameter id as listed by timbuk_describe-params, e.g. filter-cutoff.")),
		mcp.WithString("value", mcp.Required(), mcp.Description("A number, on/off for toggles, or the name of a choice.")),
	), s.setParam)

	s.mcp.AddTool(mcp.NewTool("timbuk_note-on",
		mcp.WithDescription("Starts a note."),
		mcp.WithString("note", mcp.Required(), mcp.Description("MIDI note number (0-127) or name such as C4 or F#3.")),
		mcp.WithNumber("velocity", mcp.Description("Velocity 1-127, default 100.")),
	), s.noteOn)

	s.mcp.AddTool(mcp.NewTool("timbuk_note-off",
		mcp.WithDescription("Releases a note."),
		mcp.WithString("note", mcp.Required(), mcp.Description("MIDI note number (0-127) or name such as C4 or F#3.")),
	), s.noteOff)

	s.mcp.AddTool(mcp.NewTool("timbuk_play-notes",
		mcp.WithDescription("Plays a sequence of notes one after another and waits until it is done."),
		mcp.WithString("notes", mcp.Required(), mcp.Description("Note names separated by spaces or commas; r is a rest. Example: C4 E4 G4 r C5")),
		mcp.WithNumber("note-ms", mcp.Description("Length of each note in milliseconds, default 300.")),
		mcp.WithNumber("gap-ms", mcp.Description("Silence between notes in milliseconds, default 60.")),
		mcp.WithNumber("velocity", mcp.Description("Velocity 1-127, default 100.")),
	), s.playNotes)

	s.mcp.AddTool(mcp.NewTool("timbuk_play-scale",
		mcp.WithDescription("Plays one octave of a scale."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(string(keyboard.Major), string(keyboard.Minor), string(keyboard.Pentatonic), string(keyboard.Blues))),
		mcp.WithString("root", mcp.Description("Root note, default C4.")),
	), s.playScale)

	s.mcp.AddTool(mcp.NewTool("timbuk_panic",
		mcp.WithDescription("Stops every sounding note."),
	), s.stopAll)

	s.mcp.AddTool(mcp.NewTool("timbuk_list-patches",
		mcp.WithDescription("Lists factory, user, recent and favorite patches, or searches them."),
		mcp.WithString("query", mcp.Description("Matches name, category, description and tags.")),
	), s.listPatches)

	s.mcp.AddTool(mcp.NewTool("timbuk_new-patch",
		mcp.WithDescription("Resets the engine to the Init patch."),
	), s.newPatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_load-patch",
		mcp.WithDescription("Loads a stored patch into the engine."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Patch name.")),
	), s.loadPatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_save-patch",
		mcp.WithDescription("Saves the current sound as a user patch. Factory names cannot be used."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Patch name.")),
		mcp.WithString("category", mcp.Description("Category, default User.")),
		mcp.WithString("description", mcp.Description("Free text.")),
		mcp.WithString("tags", mcp.Description("Comma separated tags.")),
	), s.savePatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_delete-patch",
		mcp.WithDescription("Deletes a user patch."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Patch name.")),
	), s.deletePatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_toggle-favorite",
		mcp.WithDescription("Adds a patch to favorites or removes it."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Patch name.")),
	), s.toggleFavorite)

	s.mcp.AddTool(mcp.NewTool("timbuk_export-patch",
		mcp.WithDescription("Returns a single patch file."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Patch name.")),
	), s.exportPatch)

	s.mcp.AddTool(mcp.NewTool("timbuk_export-all",
		mcp.WithDescription("Returns a bundle with every factory and user patch."),
	), s.exportAll)

	s.mcp.AddTool(mcp.NewTool("timbuk_import-patches",
		mcp.WithDescription("Imports an export bundle, a single patch file or bare patch data."),
		mcp.WithString("json", mcp.Required(), mcp.Description("The document to import.")),
		mcp.WithString("name", mcp.Description("Name for bare patch data.")),
	), s.importPatches)

	s.mcp.AddTool(mcp.NewTool("timbuk_status",
		mcp.WithDescription("Returns the current patch name, status message, voice count and octave."),
	), s.showStatus)
}

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(CurrentPatchURI, "Current patch",
		mcp.WithResourceDescription("The sound currently loaded in the engine."),
		mcp.WithMIMEType("application/json"),
	), s.currentPatch)

	s.mcp.AddResource(mcp.NewResource(CatalogURI, "Patch catalog",
		mcp.WithResourceDescription("Factory, user, recent and favorite patches."),
		mcp.WithMIMEType("application/json"),
	), s.catalog)
}

func (s *Server) currentPatch(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(CurrentPatchURI, s.app.Engine.Serialize())
}

func (s *Server) catalog(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(CatalogURI, s.app.Store.List())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(b)},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result to JSON: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) describeParams(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling describe params request.")
	return jsonResult(s.app.Binder.Descriptors())
}

func (s *Server) patchSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := patch.Schema()
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) getPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "")
	log.Println("[mcp] Handling get patch request:", name)

	if name == "" {
		return jsonResult(s.app.Engine.Serialize())
	}
	f, err := s.app.Store.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(f)
}

func (s *Server) applyPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patchJSON, err := request.RequireString("patch-json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	log.Println("[mcp] Applying patch. JSON:", patchJSON)

	var p patch.Patch
	if err := json.Unmarshal([]byte(patchJSON), &p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to unmarshal patch JSON: %v", err)), nil
	}
	if err := s.app.ApplyPatch(p); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Patch applied successfully."), nil
}

func (s *Server) randomizeOscillators(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.app.RandomizeOscillators(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.app.Engine.Serialize().Oscillators)
}

func (s *Server) setParam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := request.GetArguments()["value"]
	if !ok {
		return mcp.NewToolResultError(`required argument "value" not found`), nil
	}

	d, err := s.app.Binder.SetValue(patch.ParamID(id), raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s = %s", d.Label, d.Text)), nil
}

func noteArg(request mcp.CallToolRequest) (int, error) {
	raw, ok := request.GetArguments()["note"]
	if !ok {
		return 0, fmt.Errorf(`required argument "note" not found`)
	}
	return keyboard.NoteArg(cast.ToString(raw))
}

func (s *Server) noteOn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	note, err := noteArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vel := request.GetInt("velocity", keyboard.DefaultVelocity)
	if _, err := s.app.Engine.NoteOn(note, vel); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note %s on.", keyboard.NoteName(note))), nil
}

func (s *Server) noteOff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	note, err := noteArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.app.Engine.NoteOff(note)
	return mcp.NewToolResultText(fmt.Sprintf("Note %s off.", keyboard.NoteName(note))), nil
}

func timing(request mcp.CallToolRequest) keyboard.Timing {
	t := keyboard.DefaultTiming
	if ms := request.GetFloat("note-ms", 0); ms > 0 {
		t.Note = time.Duration(ms * float64(time.Millisecond))
	}
	if ms := request.GetFloat("gap-ms", -1); ms >= 0 {
		t.Gap = time.Duration(ms * float64(time.Millisecond))
	}
	t.Velocity = request.GetInt("velocity", t.Velocity)
	return t
}

func (s *Server) playNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("notes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps, err := keyboard.ParseNotes(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Println("[mcp] Playing notes:", text)
	if err := keyboard.Play(ctx, s.app.Engine, steps, timing(request)); err != nil {
		return nil, fmt.Errorf("failed to play notes: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Played %d steps.", len(steps))), nil
}

func (s *Server) playScale(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := keyboard.NoteArg(request.GetString("root", "C4"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := keyboard.Scale(keyboard.ScaleKind(kind), root)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	steps := make([]keyboard.Step, len(notes))
	for i, n := range notes {
		steps[i] = keyboard.Step{Note: n}
	}
	if err := keyboard.Play(ctx, s.app.Engine, steps, timing(request)); err != nil {
		return nil, fmt.Errorf("failed to play scale: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Played %s scale from %s.", kind, keyboard.NoteName(root))), nil
}

func (s *Server) stopAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.app.Panic()
	return mcp.NewToolResultText("All notes stopped."), nil
}

func (s *Server) listPatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if q := request.GetString("query", ""); q != "" {
		return jsonResult(s.app.Store.Search(q))
	}
	return jsonResult(s.app.Store.List())
}

func (s *Server) newPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.app.NewPatch(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Created new patch."), nil
}

func (s *Server) loadPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.app.LoadPatch(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Loaded: " + name), nil
}

// splitTags reads a comma separated list, as typed into the save dialog.
func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *Server) savePatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta := store.Meta{
		Category:    request.GetString("category", ""),
		Description: request.GetString("description", ""),
		Tags:        splitTags(request.GetString("tags", "")),
	}
	f, err := s.app.SavePatch(name, meta)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Saved: " + f.Name), nil
}

func (s *Server) deletePatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.app.DeletePatch(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Deleted: " + name), nil
}

func (s *Server) toggleFavorite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	on, err := s.app.ToggleFavorite(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if on {
		return mcp.NewToolResultText("Added to favorites: " + name), nil
	}
	return mcp.NewToolResultText("Removed from favorites: " + name), nil
}

func (s *Server) exportPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, _, err := s.app.ExportPatch(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) exportAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, _, err := s.app.ExportAll()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) importPatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := request.RequireString("json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.app.Import([]byte(doc), request.GetString("name", "Imported Patch"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) showStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.app.Snapshot())
}
