package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/parla/pkg/bootstrap"
	"github.com/ormasoftchile/parla/pkg/chat"
	"github.com/ormasoftchile/parla/pkg/lesson"
	pmcp "github.com/ormasoftchile/parla/pkg/mcp"
	"github.com/ormasoftchile/parla/pkg/tui"
	"github.com/ormasoftchile/parla/pkg/unlock"
)

// --- play ---

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Open the lesson player (default)",
	Args:  cobra.NoArgs,
	RunE:  runPlay,
}

func runPlay(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())
	reportBroken(cmd.ErrOrStderr(), rt)
	return tui.Run(cmd.Context(), tui.Config{
		Engine:      rt.Engine,
		TypingDelay: rt.Config.TypingDelay,
		Language:    rt.Config.TargetLanguageName(),
	})
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [lesson] [scenario]",
	Short: "Play one scenario in line mode",
	Args:  cobra.ExactArgs(2),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())
	s, err := rt.Engine.Open(args[0], args[1])
	if err != nil {
		return err
	}
	return chat.New(s).Run(cmd.Context())
}

// --- lessons ---

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List lessons with their lock state",
	Args:  cobra.NoArgs,
	RunE:  runLessons,
}

func runLessons(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())

	out := cmd.OutOrStdout()
	completed, err := rt.Progress.CompletedLessons()
	if err != nil {
		return fmt.Errorf("read progress: %w", err)
	}
	for i, l := range rt.Lessons.Lessons() {
		state := string(rt.Unlock.Reason(l.ID))
		glyph := "○"
		switch {
		case completed[l.ID]:
			glyph, state = "✓", "completed"
		case state == string(unlock.Premium):
			glyph = "★"
		case state == string(unlock.Progression):
			glyph, state = "⊘", "locked"
		}
		fmt.Fprintf(out, "%s %2d. %-8s %s (%s)\n", glyph, i+1, l.ID, l.Title, state)
	}
	reportBroken(out, rt)
	return nil
}

func reportBroken(w io.Writer, rt *bootstrap.Runtime) {
	for _, b := range rt.Lessons.Broken() {
		fmt.Fprintf(w, "  ⚠ skipped %s (%d problem(s)); run 'parla validate %s'\n", b.Path, len(b.Errors), b.Path)
	}
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Validate lesson documents (files or directories)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths, err := documentPaths(args)
	if err != nil {
		return err
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	failed := 0
	for _, path := range paths {
		l, errs := lesson.ValidateFile(path)
		var problems []*lesson.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				fmt.Fprintf(errOut, "  ⚠ %s: [%s] %s\n", path, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(errOut, "    at: %s\n", e.Path)
				}
				continue
			}
			problems = append(problems, e)
		}
		if len(problems) > 0 {
			failed++
			fmt.Fprintf(errOut, "✗ %s: %d error(s)\n", path, len(problems))
			for i, e := range problems {
				fmt.Fprintf(errOut, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(errOut, "     at: %s\n", e.Path)
				}
			}
			continue
		}
		fmt.Fprintf(out, "✓ %s is valid (%s, %d slides)\n", path, l.ID, len(l.Slides))
	}
	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d document(s)", failed, len(paths))
	}
	return nil
}

// documentPaths expands directories into the lesson documents below them.
func documentPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if path == arg || slices.Contains([]string{".yaml", ".yml", ".json"}, ext) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("no lesson documents found")
	}
	return paths, nil
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the lesson JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := lesson.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// --- progress ---

var resetYes bool

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or reset saved progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print saved progress as JSON",
	Args:  cobra.NoArgs,
	RunE:  runProgressShow,
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenProgress(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	rec, err := store.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all saved progress",
	Args:  cobra.NoArgs,
	RunE:  runProgressReset,
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return errors.New("refusing to delete progress without --yes")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenProgress(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ progress reset (%s)\n", cfg.Progress.Path)
	return nil
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve scenario tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())
	return server.ServeStdio(pmcp.NewServer(version, rt.Engine))
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "parla %s (%s)\n", version, commit)
	},
}
