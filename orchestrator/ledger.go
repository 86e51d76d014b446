// Budget reservation ledger - process-local, in-memory.
//
// Reservations are a soft safety margin over the persisted budgetSpent;
// they are not persisted and reconstruct as zero on restart.
package orchestrator

import (
	"sync"

	"github.com/forgeworks/forge/model"
)

// Ledger tracks pending reservations per project. The budget check and the
// reservation increment happen under one lock, so concurrent creates
// against the same project cannot interleave their read-modify-write.
type Ledger struct {
	mu       sync.Mutex
	reserved map[string]model.Cents
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{reserved: make(map[string]model.Cents)}
}

// TryReserve checks spent + reserved + estimate against limit and, if it
// fits, records the reservation. On rejection it returns the overage and
// leaves the ledger untouched.
func (l *Ledger) TryReserve(projectID string, spent, limit, estimate model.Cents) (model.Cents, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	committed := spent + l.reserved[projectID] + estimate
	if committed > limit {
		return committed - limit, false
	}
	l.reserved[projectID] += estimate
	return 0, true
}

// Release returns a reservation to the pool. The balance never goes
// negative: a release without a matching reserve clamps to zero.
func (l *Ledger) Release(projectID string, amount model.Cents) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.reserved[projectID] - amount
	if remaining <= 0 {
		delete(l.reserved, projectID)
		return
	}
	l.reserved[projectID] = remaining
}

// Reserved returns the pending total for a project.
func (l *Ledger) Reserved(projectID string) model.Cents {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved[projectID]
}
