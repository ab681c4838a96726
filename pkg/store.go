package forge

import (
	"time"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// Store persists signing requests and plans. Implementations must make
// every method safe for concurrent use, and TransitionRequest must be
// an atomic compare-and-swap: state changes never go through a
// read-modify-write cycle in the caller.
type Store interface {
	// CreateRequest stores a new request. The request must arrive in
	// the pending state; an existing id yields AlreadyExists.
	CreateRequest(req SigningRequest) error
	// GetRequest returns the request with the given id, or NotFound.
	GetRequest(id string) (SigningRequest, error)
	// ListRequests returns requests in the given status, oldest first.
	// pagination: next_cursor should be passed as 'cursor' on the next call (initial cursor = 0)
	// pagination: when next_cursor == 0, that is the final page of results.
	ListRequests(status RequestStatus, cursor int, limit int) (items []SigningRequest, next_cursor int, err error)
	// TransitionRequest atomically swaps a request from one status to
	// another. txID is recorded when to is submitted; reason when to is
	// failed or expired. A request not currently in from yields
	// DBConflict and changes nothing, which is what makes duplicate
	// and late callbacks harmless.
	TransitionRequest(id string, from, to RequestStatus, txID ergo.TxID, reason string) error
	// ExpirePending moves every pending request whose deadline has
	// passed to expired, returning the ids it moved.
	ExpirePending(now time.Time) ([]string, error)
	// RecoverSubmitting fails every submitting request last touched
	// before the cutoff, returning the ids it moved. Used on startup:
	// a request stuck in submitting was interrupted mid-broadcast.
	RecoverSubmitting(cutoff time.Time, reason string) ([]string, error)

	// CreatePlan stores a new multi-step plan.
	CreatePlan(plan Plan) error
	// GetPlan returns the plan with the given id, or NotFound.
	GetPlan(id string) (Plan, error)
	// SetPlanStep records the request built for one step of a plan.
	SetPlanStep(planID string, step int, requestID string) error

	Close() error
}
