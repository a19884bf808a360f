// Package dispatcher specifies the dispatcher external collaborator
// (spec.md §4.7.b/c, §GLOSSARY): a service that spawns new scanner
// instances on demand, so the Grid Orchestrator can enslave them without
// knowing how a slave process actually gets started (container, subprocess,
// cloud API — implementer's choice, out of scope here).
package dispatcher

import (
	"context"

	"github.com/gridscan/hpg/internal/gridrpc"
)

// Dispatcher spawns a new scanner instance and returns its descriptor
// (url + token) once it is reachable.
type Dispatcher interface {
	// PipeID identifies this dispatcher for log line-aggregation
	// purposes (spec.md §4.7.b: "dispatchers with unique pipe IDs").
	PipeID() string

	// Spawn starts a new instance, returning its descriptor once ready
	// to be enslaved.
	Spawn(ctx context.Context) (gridrpc.InstanceDescriptor, error)
}

// Pool selects preferred dispatchers for a run, spec.md §4.7.b.
type Pool interface {
	// Preferred returns the dispatchers to use for this run, in
	// preference order.
	Preferred(ctx context.Context) ([]Dispatcher, error)
}
