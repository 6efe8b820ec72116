package engine

import "github.com/joe/cloudpull/internal/transfer"

// Event is the interface implemented by all orchestration events.
type Event interface {
	isEvent()
}

// EventEmitter is the interface for emitting events.
type EventEmitter interface {
	Emit(event Event)
}

// RunStarted is emitted once, before the preflight checks.
type RunStarted struct {
	RunID    string
	Simulate bool
}

func (RunStarted) isEvent() {}

// ScopeApplied is emitted when a run-scoped filter has been written.
type ScopeApplied struct {
	Subtree    string
	FilterPath string
}

func (ScopeApplied) isEvent() {}

// ListingComplete is emitted after the remote file listing.
type ListingComplete struct {
	Files int
}

func (ListingComplete) isEvent() {}

// DedupeComplete is emitted after the remote deduplication pass.
type DedupeComplete struct {
	// DuplicateFiles is the count of removable duplicates (each group of N
	// identical files contributes N-1).
	DuplicateFiles int
	// BytesSaved is only populated in simulation; Note explains a zero.
	BytesSaved int64
	Note       string
}

func (DedupeComplete) isEvent() {}

// HashingComplete is emitted after the remote hash listing has been parsed.
type HashingComplete struct {
	Entries      int
	InvalidLines int
	// DuplicateHashes holds hash values still occurring more than once in
	// the raw listing.
	DuplicateHashes []string
}

func (HashingComplete) isEvent() {}

// ReconcileComplete is emitted with the remote-vs-local comparison result.
type ReconcileComplete struct {
	Matched int
	Missing int
	// CountsConsistent is false when matched + missing diverges from the raw
	// record count, which signals duplicate-key collapse upstream.
	CountsConsistent bool
}

func (ReconcileComplete) isEvent() {}

// TransferComplete is emitted after the per-file transfer pass.
type TransferComplete struct {
	Outcome transfer.Outcome
}

func (TransferComplete) isEvent() {}

// RunCompleted is emitted once, after state persistence.
type RunCompleted struct {
	Incomplete     bool
	ElapsedSeconds float64
}

func (RunCompleted) isEvent() {}

// discardEmitter drops every event; used when no consumer is attached.
type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}
