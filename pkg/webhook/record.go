package webhook

import "time"

// Result is the recorded processing outcome for an external event id.
type Result string

const (
	// ResultPending marks an event claimed by an in-flight delivery.
	ResultPending Result = "pending"
	// ResultApplied marks an event whose side effects were committed.
	ResultApplied Result = "applied"
	// ResultIgnored marks a recognized but irrelevant or inapplicable event.
	ResultIgnored Result = "ignored"
	// ResultFailed marks a handler failure; the record is reclaimed and
	// retried when the gateway redelivers.
	ResultFailed Result = "failed"
)

// Record is one row of the dedup ledger. The unique external event id is
// what turns at-least-once delivery into at-most-once side effect
// application.
type Record struct {
	EventID    string
	EventType  string
	Result     Result
	LastError  string
	ReceivedAt time.Time
	UpdatedAt  time.Time
}

// Settled reports whether the record needs no further processing.
func (r *Record) Settled() bool {
	return r.Result == ResultApplied || r.Result == ResultIgnored
}
