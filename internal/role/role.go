// Package role implements the Role State Machine (C6): the solo/master/
// slave tagged variant (spec.md §9 "Role polymorphism"), its transitions,
// and the idempotence/exclusivity invariants spec.md §8 requires of it.
//
// Operations that only make sense in some states return a boolean per
// spec.md §4.6/§7 ("Authorization and role-violation errors return false
// from the operation; no exception crosses the RPC boundary"); callers
// that need to distinguish role_violation from a plain idempotence no-op
// use the Kind-reporting accessors below.
package role

import (
	"sync"

	"github.com/gridscan/hpg/internal/instance"
	"github.com/gridscan/hpg/internal/token"
)

// Kind tags which variant of Role is current.
type Kind int

const (
	Solo Kind = iota
	Master
	Slave
)

func (k Kind) String() string {
	switch k {
	case Solo:
		return "solo"
	case Master:
		return "master"
	case Slave:
		return "slave"
	default:
		return "unknown"
	}
}

// Machine holds the current Role and the state that's only meaningful for
// some variants (the slave's master handle and priv token). Exactly one of
// IsSolo/IsMaster/IsSlave is true at any moment (spec.md §8 invariant 1);
// Machine enforces this by constraining every transition.
type Machine struct {
	mu sync.Mutex

	kind Kind

	// valid only when kind == Slave
	master         instance.Instance
	masterPrivTok  token.Token

	paused    bool
	cleanedUp bool
}

// NewMachine constructs a Machine in the initial Solo state.
func NewMachine() *Machine {
	return &Machine{kind: Solo}
}

// Kind reports the current Role variant.
func (m *Machine) Kind() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

func (m *Machine) IsSolo() bool   { return m.Kind() == Solo }
func (m *Machine) IsMaster() bool { return m.Kind() == Master }
func (m *Machine) IsSlave() bool  { return m.Kind() == Slave }

// BecomeMaster transitions solo->master (set_as_master, or the implicit
// elevation the first enslave() call performs). Returns false if the
// instance is not currently solo (spec.md §4.6: "second call while already
// master is a no-op false").
func (m *Machine) BecomeMaster() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind != Solo {
		return false
	}
	m.kind = Master
	return true
}

// BecomeSlave transitions solo->slave (set_master), attaching to master
// and its priv token for callbacks. Returns false if the instance is not
// currently solo.
func (m *Machine) BecomeSlave(master instance.Instance, masterPrivToken token.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind != Solo {
		return false
	}
	m.kind = Slave
	m.master = master
	m.masterPrivTok = masterPrivToken
	return true
}

// CanEnslave reports whether enslave() is valid in the current role: valid
// whenever not already a slave (master and solo both accept it, with solo
// implicitly elevating to master). A slave calling enslave is a
// role_violation (spec.md §4.6), collapsed to a single failure signal per
// SPEC_FULL.md's Open Question 3 decision.
func (m *Machine) CanEnslave() bool {
	return m.Kind() != Slave
}

// MasterInstance returns the attached master Instance, if this Machine is
// currently a slave.
func (m *Machine) MasterInstance() (instance.Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind != Slave {
		return instance.Instance{}, false
	}
	return m.master, true
}

// MasterPrivToken returns the master's callback priv token, if this
// Machine is currently a slave.
func (m *Machine) MasterPrivToken() (token.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind != Slave {
		return "", false
	}
	return m.masterPrivTok, true
}

// Pause sets the local paused flag, observed by the run loop at its
// suspension points (spec.md §4.6/§5). Fan-out to slaves is the caller's
// responsibility (the Grid Orchestrator), since Machine has no RPC
// knowledge.
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume clears the local paused flag.
func (m *Machine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// Paused reports the local paused flag.
func (m *Machine) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// CleanUp marks clean_up as having run, returning false on a second call
// (spec.md §8 invariant 8: idempotent). The grid fan-out lives in the Grid
// Orchestrator, which collects no plugin results from slaves; Machine only
// owns the already_cleaned_up guard.
func (m *Machine) CleanUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cleanedUp {
		return false
	}
	m.cleanedUp = true
	return true
}

// CleanedUp reports whether clean_up has already run.
func (m *Machine) CleanedUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanedUp
}
