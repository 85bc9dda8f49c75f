package txn

import "github.com/goliatone/go-entity-cache/datastore"

// State is the lifecycle state of a session's transaction.
type State int

const (
	StateInactive State = iota
	StateActive
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCommitted:
		return "COMMITTED"
	case StateRolledBack:
		return "ROLLED_BACK"
	default:
		return "INACTIVE"
	}
}

// WriteKind tells the cache whether a write addressed rows by identity or by
// predicate.
type WriteKind int

const (
	Targeted WriteKind = iota
	SetBased
)

func (k WriteKind) String() string {
	if k == SetBased {
		return "SET_BASED"
	}
	return "TARGETED"
}

// Operation names the datastore statement behind a WriteOp.
type Operation string

const (
	OpInsert    Operation = "insert"
	OpUpdate    Operation = "update"
	OpDelete    Operation = "delete"
	OpSetUpdate Operation = "set-update"
)

// WriteOp records one flushed write of the current transaction.
type WriteOp struct {
	Kind      WriteKind
	Operation Operation
	Type      string
	// Key is empty for set-based writes.
	Key       string
	Predicate datastore.Predicate
	Affected  int
}
