package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"timbuk/internal/app"
	"timbuk/internal/backend/midiout"
	"timbuk/internal/config"
	"timbuk/internal/httpapi"
	"timbuk/internal/keyboard"
	"timbuk/internal/mcpserver"
	"timbuk/internal/patch"
	"timbuk/internal/store"
)

var version = "0.1.0"

var (
	cfgPath     string
	backendName string
	dataDir     string

	httpAddr string

	noteMS    int
	gapMS     int
	velocity  int
	scaleKind string
	scaleRoot string

	inFile      string
	outFile     string
	category    string
	description string
	tags        []string

	cfg config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timbuk",
	Short: "Two-oscillator subtractive synthesizer",
	Long: `Timbuk is a two-oscillator subtractive synthesizer with a patch
library, a computer keyboard and MIDI input, and MCP and HTTP control
surfaces.

Sound goes to the default audio device (backend "render") or to an
external synthesizer over MIDI (backend "midi").`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
		return cfg.Override(backendName, dataDir)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the synthesizer over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control surface",
	Long: `Start the HTTP API used by browser front ends: parameters, notes,
the patch catalog and the oscilloscope/spectrum feed.

Example:
  timbuk serve --addr 127.0.0.1:8765`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var playCmd = &cobra.Command{
	Use:   "play [notes...]",
	Short: "Play from the computer keyboard, or play a note sequence",
	Long: `Without arguments, play from the computer keyboard:

  z s x d c v g b h n j m   lower octave
  q 2 w 3 e r 5 t 6 y 7 u   upper octave
  space sustain, arrows octave, enter panic, esc quit

With arguments, play them as a sequence (r is a rest).

Examples:
  timbuk play
  timbuk play C4 E4 G4 r C5
  timbuk play --scale blues --root A3`,
	RunE: runPlay,
}

var getCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print a stored patch as JSON (default: Init)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Save patch JSON from stdin (or --file) as a user patch",
	Args:  cobra.ExactArgs(1),
	RunE:  runSet,
}

var exportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Export one patch, or every patch when no name is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an export bundle, a patch file or bare patch data",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var patchesCmd = &cobra.Command{
	Use:   "patches [query]",
	Short: "List or search patches",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPatches,
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List synthesis parameters with their ranges",
	Args:  cobra.NoArgs,
	RunE:  runParams,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("MIDI outputs:")
		fmt.Print(midiout.Ports())
		fmt.Println("MIDI inputs:")
		fmt.Print(midiout.InPorts())
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, or write it with --write",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var writeConfig bool

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "Output backend (render, midi, silent)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for saved patches")

	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(patchesCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(configCmd)

	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "Listen address (default from config)")

	playCmd.Flags().IntVar(&noteMS, "note-ms", 300, "Note length in milliseconds")
	playCmd.Flags().IntVar(&gapMS, "gap-ms", 60, "Gap between notes in milliseconds")
	playCmd.Flags().IntVarP(&velocity, "velocity", "v", keyboard.DefaultVelocity, "Note velocity (1-127)")
	playCmd.Flags().StringVar(&scaleKind, "scale", "", "Play a scale: major, minor, pentatonic, blues")
	playCmd.Flags().StringVar(&scaleRoot, "root", "C4", "Root note of --scale")

	setCmd.Flags().StringVarP(&inFile, "file", "f", "", "Read patch JSON from file instead of stdin")
	setCmd.Flags().StringVar(&category, "category", "", "Patch category")
	setCmd.Flags().StringVar(&description, "description", "", "Patch description")
	setCmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma separated tags")

	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "Output file (default: suggested name in the current directory, - for stdout)")

	configCmd.Flags().BoolVar(&writeConfig, "write", false, "Write the configuration to --config if it does not exist")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openApp starts the application. Catalog commands pass sound=false and run
// on the silent backend.
func openApp(ctx context.Context, sound bool) (*app.App, error) {
	c := cfg
	if !sound {
		c.Backend = config.BackendSilent
		c.MIDI.InPort = ""
	}
	return app.Open(ctx, c)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		log.Printf("[app] close: %v", err)
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	return mcpserver.New(a).Serve()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	addr := httpAddr
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	fmt.Printf("\n  Timbuk control surface running at: http://%s\n\n", addr)
	return httpapi.New(a).Run(ctx, addr)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	timing := keyboard.Timing{
		Note:     time.Duration(noteMS) * time.Millisecond,
		Gap:      time.Duration(gapMS) * time.Millisecond,
		Velocity: velocity,
	}

	switch {
	case scaleKind != "":
		root, err := keyboard.NoteArg(scaleRoot)
		if err != nil {
			return err
		}
		notes, err := keyboard.Scale(keyboard.ScaleKind(scaleKind), root)
		if err != nil {
			return err
		}
		steps := make([]keyboard.Step, len(notes))
		for i, n := range notes {
			steps[i] = keyboard.Step{Note: n}
		}
		return ignoreCanceled(keyboard.Play(ctx, a.Engine, steps, timing))

	case len(args) > 0:
		steps, err := keyboard.ParseNotes(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return ignoreCanceled(keyboard.Play(ctx, a.Engine, steps, timing))
	}

	t := &keyboard.Terminal{Mapper: a.Keys, Out: os.Stdout, Status: a.Status.Text}
	fmt.Println(cmd.Long)
	err = t.Run(ctx)
	fmt.Println()
	return ignoreCanceled(err)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	name := "Init"
	if len(args) == 1 {
		name = args[0]
	}
	f, err := a.Store.Get(name)
	if err != nil {
		return err
	}
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if inFile != "" {
		data, err = os.ReadFile(inFile)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read patch JSON: %w", err)
	}

	// accept a full patch file as well as bare patch data
	var file struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &file) == nil && file.Data != nil {
		data = file.Data
	}
	p, err := patch.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode patch JSON: %w", err)
	}

	a, err := openApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.ApplyPatch(p); err != nil {
		return err
	}
	f, err := a.SavePatch(args[0], store.Meta{Category: category, Description: description, Tags: tags})
	if err != nil {
		return err
	}
	log.Printf("[app] saved %q (%s)", f.Name, f.Category)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var (
		b    []byte
		name string
	)
	if len(args) == 1 {
		b, name, err = a.ExportPatch(args[0])
	} else {
		b, name, err = a.ExportAll()
	}
	if err != nil {
		return err
	}

	switch outFile {
	case "-":
		_, err := os.Stdout.Write(append(b, '\n'))
		return err
	case "":
		outFile = name
	}
	if err := os.WriteFile(outFile, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outFile, err)
	}
	fmt.Println("Exported to", outFile)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	a, err := openApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	res, err := a.Import(data, filepath.Base(args[0]))
	if err != nil {
		return err
	}
	for _, n := range res.Imported {
		fmt.Println("imported", n)
	}
	for n, why := range res.Skipped {
		fmt.Printf("skipped %s: %s\n", n, why)
	}
	return nil
}

func runPatches(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var entries []store.Entry
	if len(args) == 1 {
		entries = a.Store.Search(args[0])
	} else {
		c := a.Store.List()
		entries = append(c.Factory, c.User...)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tTAGS\t")
	for _, e := range entries {
		name := e.Name
		if e.Favorite {
			name += " *"
		}
		if e.Factory {
			name += " (factory)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", name, e.Category, strings.Join(e.Tags, ", "))
	}
	return w.Flush()
}

func runParams(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGROUP\tVALUE\tRANGE\t")
	for _, d := range a.Binder.Descriptors() {
		rng := strings.Join(d.Choices, "|")
		if rng == "" {
			rng = fmt.Sprintf("%g..%g", d.Range.Min, d.Range.Max)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", d.ID, d.Group, d.Text, rng)
	}
	return w.Flush()
}

func runConfig(cmd *cobra.Command, args []string) error {
	b, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if !writeConfig {
		fmt.Print(string(b))
		return nil
	}

	p, err := homedir.Expand(cfgPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%s already exists", p)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Println("Wrote", p)
	return nil
}
