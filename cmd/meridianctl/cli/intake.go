package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meridian-hms/meridian/internal/pharmacy/intake"
)

// Importer posts parsed intake lines.
type Importer interface {
	Import(ctx context.Context, lines []intake.Line, actorID int64, reference string) (intake.Report, error)
}

// ImportOptions defines the flags for stock import.
type ImportOptions struct {
	Path       string
	ActorID    int64
	Reference  string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ImportCommand parses a vendor invoice file and posts it, returning the exit code.
func ImportCommand(ctx context.Context, importer Importer, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.ActorID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "stock import: --actor is required and must be positive")
		return 1
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: %v\n", err)
		return 1
	}
	defer f.Close()

	lines, err := intake.Parse(opts.Path, f)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: parse: %v\n", err)
		return 1
	}
	reference := opts.Reference
	if reference == "" {
		reference = filepath.Base(opts.Path)
	}
	report, err := importer.Import(ctx, lines, opts.ActorID, reference)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "stock import: encode: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "imported %d, skipped %d\n", len(report.Imported), len(report.Skipped))
		for _, s := range report.Skipped {
			_, _ = fmt.Fprintf(opts.Stdout, "  row %d %q: %s\n", s.Row, s.Name, s.Reason)
		}
	}
	if len(report.Imported) == 0 && len(report.Skipped) > 0 {
		return 2
	}
	return 0
}
