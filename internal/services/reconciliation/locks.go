package reconciliation

import (
	"sync"

	"github.com/google/uuid"
)

// tenantLocks serializes reconcile runs per tenant so two concurrent runs
// cannot interleave their candidate replacement.
type tenantLocks struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

func (l *tenantLocks) Lock(tenantID uuid.UUID) func() {
	v, _ := l.locks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
