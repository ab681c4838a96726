package store

import (
	"sync"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// interface guard ensures MemStore implements forge.Store
var _ forge.Store = &MemStore{}

// MemStore keeps everything in maps. It backs tests and throwaway
// deployments; nothing survives a restart.
type MemStore struct {
	mu       sync.Mutex
	requests map[string]forge.SigningRequest
	seq      map[string]int // request id -> insertion sequence
	order    []string       // request ids in insertion order
	plans    map[string]forge.Plan
	nextSeq  int
}

// NewMemStore returns a forge.Store implementor that stores requests in memory
func NewMemStore() *MemStore {
	return &MemStore{
		requests: make(map[string]forge.SigningRequest, 10),
		seq:      make(map[string]int, 10),
		plans:    make(map[string]forge.Plan, 10),
		nextSeq:  1,
	}
}

func (m *MemStore) Close() error {
	return nil
}

func (m *MemStore) CreateRequest(req forge.SigningRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Status != forge.StatusPending {
		return forge.NewErr(forge.BadRequest, "new requests must be pending, got %s", req.Status)
	}
	if _, exists := m.requests[req.ID]; exists {
		return forge.NewErr(forge.AlreadyExists, "request already exists: %s", req.ID)
	}
	m.requests[req.ID] = req
	m.seq[req.ID] = m.nextSeq
	m.order = append(m.order, req.ID)
	m.nextSeq++
	return nil
}

func (m *MemStore) GetRequest(id string) (forge.SigningRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.requests[id]
	if !ok {
		return forge.SigningRequest{}, forge.NewErr(forge.NotFound, "request not found: %s", id)
	}
	return v, nil
}

func (m *MemStore) ListRequests(status forge.RequestStatus, cursor int, limit int) (items []forge.SigningRequest, next_cursor int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		seq := m.seq[id]
		if seq < cursor {
			continue
		}
		req := m.requests[id]
		if req.Status != status {
			continue
		}
		items = append(items, req)
		next_cursor = seq + 1 // NB. starting cursor for next call
		if len(items) >= limit {
			return
		}
	}
	next_cursor = 0 // end of query results
	return
}

func (m *MemStore) TransitionRequest(id string, from, to forge.RequestStatus, txID ergo.TxID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(id, from, to, txID, reason)
}

// transition is the compare-and-swap core; callers hold m.mu.
func (m *MemStore) transition(id string, from, to forge.RequestStatus, txID ergo.TxID, reason string) error {
	req, ok := m.requests[id]
	if !ok {
		return forge.NewErr(forge.NotFound, "request not found: %s", id)
	}
	if req.Status != from {
		return forge.NewErr(forge.DBConflict, "request %s is not %s", id, from)
	}
	req.Status = to
	req.Reason = reason
	req.Updated = time.Now()
	if txID != "" {
		req.TxID = txID
	}
	m.requests[id] = req
	return nil
}

func (m *MemStore) ExpirePending(now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved []string
	for _, id := range m.order {
		req := m.requests[id]
		if req.Status == forge.StatusPending && !req.Expires.After(now) {
			if err := m.transition(id, forge.StatusPending, forge.StatusExpired, "", "signing window elapsed"); err != nil {
				return moved, err
			}
			moved = append(moved, id)
		}
	}
	return moved, nil
}

func (m *MemStore) RecoverSubmitting(cutoff time.Time, reason string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved []string
	for _, id := range m.order {
		req := m.requests[id]
		if req.Status == forge.StatusSubmitting && !req.Updated.After(cutoff) {
			if err := m.transition(id, forge.StatusSubmitting, forge.StatusFailed, "", reason); err != nil {
				return moved, err
			}
			moved = append(moved, id)
		}
	}
	return moved, nil
}

func (m *MemStore) CreatePlan(plan forge.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plans[plan.ID]; exists {
		return forge.NewErr(forge.AlreadyExists, "plan already exists: %s", plan.ID)
	}
	plan.Steps = append([]forge.PlanStep(nil), plan.Steps...)
	m.plans[plan.ID] = plan
	return nil
}

func (m *MemStore) GetPlan(id string) (forge.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.plans[id]
	if !ok {
		return forge.Plan{}, forge.NewErr(forge.NotFound, "plan not found: %s", id)
	}
	v.Steps = append([]forge.PlanStep(nil), v.Steps...)
	return v, nil
}

func (m *MemStore) SetPlanStep(planID string, step int, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok || step < 0 || step >= len(plan.Steps) {
		return forge.NewErr(forge.NotFound, "plan %s has no step %d", planID, step)
	}
	plan.Steps[step].RequestID = requestID
	m.plans[planID] = plan
	return nil
}
