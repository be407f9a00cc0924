package restore

import (
	"sync"
	"time"
)

// Restore phases, in execution order. FAILED is reachable from any of them.
const (
	PhaseReceived            = "RECEIVED"
	PhaseExtracting          = "EXTRACTING"
	PhasePreBackup           = "PRE_BACKUP"
	PhaseRestoringPrimaryDB  = "RESTORING_PRIMARY_DB"
	PhaseRestoringAuxDB      = "RESTORING_AUX_DB"
	PhaseRestoringStorage    = "RESTORING_STORAGE"
	PhaseRestoringLegacyFile = "RESTORING_LEGACY_FILES"
	PhaseReconcilingRegistry = "RECONCILING_REGISTRY"
	PhaseComplete            = "COMPLETE"
	PhaseFailed              = "FAILED"
)

// Options selects which components a restore replays.
type Options struct {
	Database      bool
	AuthDatabase  bool
	Storage       bool
	Config        bool
	SkipPreBackup bool
}

// Operation is the in-memory record of one restore attempt. It is never
// persisted; its durable traces are the pre-restore backup it creates and
// the stores it mutates.
type Operation struct {
	ID               string
	TargetBackupName string
	Options          Options
	InitiatedBy      string
	StartedAt        time.Time

	mu               sync.Mutex
	phase            string
	history          []string
	safetyBackupName string
	warnings         []string
	err              error

	done chan struct{}
}

func newOperation(id, target string, opts Options, operator string, startedAt time.Time) *Operation {
	return &Operation{
		ID:               id,
		TargetBackupName: target,
		Options:          opts,
		InitiatedBy:      operator,
		StartedAt:        startedAt,
		phase:            PhaseReceived,
		history:          []string{PhaseReceived},
		done:             make(chan struct{}),
	}
}

// Done is closed when the restore reaches COMPLETE or FAILED.
func (op *Operation) Done() <-chan struct{} { return op.done }

func (op *Operation) Phase() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.phase
}

func (op *Operation) SafetyBackupName() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.safetyBackupName
}

func (op *Operation) Warnings() []string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]string(nil), op.warnings...)
}

// Err returns the fatal error of a FAILED restore, or nil.
func (op *Operation) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

// PhaseHistory returns every phase the operation has entered, in order.
func (op *Operation) PhaseHistory() []string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]string(nil), op.history...)
}

func (op *Operation) setPhase(phase string) {
	op.mu.Lock()
	op.phase = phase
	op.history = append(op.history, phase)
	op.mu.Unlock()
}

func (op *Operation) setSafetyBackup(name string) {
	op.mu.Lock()
	op.safetyBackupName = name
	op.mu.Unlock()
}

func (op *Operation) addWarnings(ws ...string) {
	if len(ws) == 0 {
		return
	}
	op.mu.Lock()
	op.warnings = append(op.warnings, ws...)
	op.mu.Unlock()
}

func (op *Operation) failWith(err error) {
	op.mu.Lock()
	op.phase = PhaseFailed
	op.history = append(op.history, PhaseFailed)
	op.err = err
	op.mu.Unlock()
}
