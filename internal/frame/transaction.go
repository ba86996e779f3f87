package frame

import (
	"fmt"
	"log/slog"
)

// Phase names in execution order.
const (
	PhaseMutate  = "mutate"
	PhaseMeasure = "measure"
	PhaseCompute = "compute"
	PhaseDraw    = "draw"
	PhaseCommit  = "commit"
	PhaseCleanup = "cleanup"
)

// Transaction is a unit of render work spanning several effects. Phases run
// strictly in order within one frame; the first failing phase stops the
// rest, but Cleanup always runs.
type Transaction struct {
	Name    string
	Mutate  func() error
	Measure func() error
	Compute func() error
	Draw    func() error
	Commit  func() error
	Cleanup func(err error)
	// Done receives the transaction's outcome after Cleanup.
	Done func(err error)
}

// PhaseError reports which phase failed.
type PhaseError struct {
	Transaction string
	Phase       string
	Err         error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("transaction %s: %s phase: %v", e.Transaction, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Queue serializes transactions: one per frame, never interleaved.
type Queue struct {
	sched   Scheduler
	pending []Transaction
	frame   ID
	running bool
}

// NewQueue creates a queue driven by sched.
func NewQueue(sched Scheduler) *Queue {
	return &Queue{sched: sched}
}

// Submit enqueues tx. It must be called on the scheduler thread.
func (q *Queue) Submit(tx Transaction) {
	q.pending = append(q.pending, tx)
	q.schedule()
}

// Len returns the number of queued transactions, including one in flight.
func (q *Queue) Len() int {
	n := len(q.pending)
	if q.running {
		n++
	}
	return n
}

func (q *Queue) schedule() {
	if q.frame != 0 || q.running || len(q.pending) == 0 {
		return
	}
	q.frame = q.sched.RequestFrame(q.runNext)
}

func (q *Queue) runNext() {
	q.frame = 0
	if len(q.pending) == 0 {
		return
	}
	tx := q.pending[0]
	q.pending = q.pending[1:]

	q.running = true
	err := run(tx)
	q.running = false

	if tx.Done != nil {
		tx.Done(err)
	}
	q.schedule()
}

func run(tx Transaction) (err error) {
	phases := []struct {
		name string
		fn   func() error
	}{
		{PhaseMutate, tx.Mutate},
		{PhaseMeasure, tx.Measure},
		{PhaseCompute, tx.Compute},
		{PhaseDraw, tx.Draw},
		{PhaseCommit, tx.Commit},
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PhaseError{Transaction: tx.Name, Phase: "panic", Err: fmt.Errorf("%v", r)}
		}
		if tx.Cleanup != nil {
			tx.Cleanup(err)
		}
	}()
	for _, p := range phases {
		if p.fn == nil {
			continue
		}
		if perr := p.fn(); perr != nil {
			slog.Warn("render transaction aborted", "transaction", tx.Name, "phase", p.name, "error", perr)
			return &PhaseError{Transaction: tx.Name, Phase: p.name, Err: perr}
		}
	}
	return nil
}
