// Package report specifies the report-rendering external collaborator
// (spec.md §6): generation writes to a temp file, which is read back into
// memory and deleted on every exit path, success or failure.
package report

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gridscan/hpg/internal/gridrpc"
)

// Generator renders a named report format to bytes. The concrete
// rendering logic (HTML, JSON, SARIF, …) is out of scope here — this
// package only owns the temp-file lifecycle around whatever Generator a
// caller supplies.
type Generator interface {
	// Generate renders the report for the given name into outfile.
	// Returns component_not_found if name is unknown, unsupported_format
	// if the named report has no outfile option.
	Generate(ctx context.Context, name string, outfile string) error
}

// tmpDir is overridden in tests to avoid touching the real system temp
// directory's shared namespace.
var tmpDir = os.TempDir

// As runs gen for name, via a temp file of the form
// "<tmpdir>/arachn_report_as.<name>", reading it back into memory and
// deleting it on every exit path (spec.md §6, §9 open question 2: a
// deletion failure after a generation failure is suppressed rather than
// surfaced, since the nested failure carries no actionable information
// beyond the original error).
func As(ctx context.Context, gen Generator, name string) ([]byte, error) {
	path := filepath.Join(tmpDir(), "arachn_report_as."+name)
	defer os.Remove(path) //nolint:errcheck // suppressed per spec.md §9 open question 2

	if err := gen.Generate(ctx, name, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gridrpc.New(gridrpc.ComponentNotFound, "report %q: read outfile: %v", name, err)
	}
	return data, nil
}
