package forge

import (
	"time"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// RequestStatus is the lifecycle state of a signing request.
//
//	pending ──> submitting ──> submitted
//	   │             └───────> failed
//	   ├──> failed  (signer declined)
//	   └──> expired (never answered)
//
// submitted, failed and expired are terminal: once a request reaches
// one of them no further transition is accepted.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusSubmitting RequestStatus = "submitting"
	StatusSubmitted  RequestStatus = "submitted"
	StatusFailed     RequestStatus = "failed"
	StatusExpired    RequestStatus = "expired"
)

func (s RequestStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusFailed || s == StatusExpired
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitting, StatusSubmitted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// SigningRequest is one unsigned transaction waiting for an external
// signer. TxBytes is the canonical encoding; TxID is its hash, known
// before any signature exists. Reason carries the failure detail for
// failed requests, verbatim from whoever declined or rejected it.
type SigningRequest struct {
	ID          string        `json:"id"`
	Status      RequestStatus `json:"status"`
	Protocol    string        `json:"protocol,omitempty"`
	PlanID      string        `json:"planId,omitempty"`
	Description string        `json:"description"`
	TxBytes     []byte        `json:"-"`
	TxID        ergo.TxID     `json:"txId"`
	Summary     TxSummary     `json:"summary"`
	Reason      string        `json:"reason,omitempty"`
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
	Expires     time.Time     `json:"expires"`
}

// PollResult is the caller-facing view of a request: its status, the
// transaction id once submitted, and the failure reason if any.
type PollResult struct {
	ID     string        `json:"id"`
	Status RequestStatus `json:"status"`
	TxID   ergo.TxID     `json:"txId,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (r *SigningRequest) Poll() PollResult {
	p := PollResult{ID: r.ID, Status: r.Status}
	if r.Status == StatusSubmitted {
		p.TxID = r.TxID
	}
	if r.Status == StatusFailed || r.Status == StatusExpired {
		p.Error = r.Reason
	}
	return p
}

// Plan is an ordered chain of signing requests where each step may only
// be built after the one before it was submitted on-chain. Steps hold
// the adapter parameters they will be built with, and the plan keeps
// the wallet it was opened for, so a plan survives a restart between
// steps.
type Plan struct {
	ID       string       `json:"id"`
	Protocol string       `json:"protocol"`
	Wallet   ergo.Address `json:"wallet"`
	Steps    []PlanStep   `json:"steps"`
	Created  time.Time    `json:"created"`
}

type PlanStep struct {
	Name      string `json:"name"`
	Params    []byte `json:"params"`
	RequestID string `json:"requestId,omitempty"`
}

// NextStep returns the index of the first step with no request yet, or
// -1 when every step has been built.
func (p *Plan) NextStep() int {
	for i := range p.Steps {
		if p.Steps[i].RequestID == "" {
			return i
		}
	}
	return -1
}
