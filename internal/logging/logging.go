// Package logging builds the process-wide structured logger: a
// logiface.Logger fronting a zerolog backend via izerolog, the same
// facade-over-backend split joeycumines-go-utilpkg uses throughout its
// logiface-* adapters.
package logging

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	current atomic.Pointer[logiface.Logger[logiface.Event]]
)

func init() {
	current.Store(build(os.Stderr, logiface.LevelInformational))
}

// Options configures the process logger.
type Options struct {
	// Writer receives log output; defaults to os.Stderr.
	Writer io.Writer
	// Debug enables trace-level verbosity.
	Debug bool
}

// Configure replaces the process-wide logger. Typically called once from
// cmd/hpgnode/main.go after config.Load.
func Configure(opts Options) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	lvl := logiface.LevelInformational
	if opts.Debug {
		lvl = logiface.LevelTrace
	}
	mu.Lock()
	defer mu.Unlock()
	current.Store(build(w, lvl))
}

func build(w io.Writer, lvl logiface.Level) *logiface.Logger[logiface.Event] {
	z := zerolog.New(w).With().Timestamp().Logger()
	L := izerolog.L
	return L.New(L.WithZerolog(z), L.WithLevel(lvl)).Logger()
}

// Default returns the current process-wide logger.
func Default() *logiface.Logger[logiface.Event] {
	return current.Load()
}

// Named returns the process logger annotated with a "component" field, the
// convention every internal/ package uses to identify its log lines.
func Named(component string) *logiface.Logger[logiface.Event] {
	return Default().Clone().Str("component", component).Logger()
}
