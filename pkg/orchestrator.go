package forge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// broadcast retry schedule for transient node faults. The signer has
// already signed; giving up too early strands a perfectly good
// transaction, so we try a few times before failing the request.
var broadcastRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Orchestrator owns the signing-request state machine. Every mutation
// of a request goes through the store's atomic transitions; the
// orchestrator itself keeps no request state, so any number of callers
// (HTTP handlers, the expiry sweep, startup recovery) can drive it
// concurrently.
type Orchestrator struct {
	cfg      Config
	network  ergo.NetworkType
	store    Store
	node     NodeClient
	bus      MessageBus
	adapters *AdapterRegistry
	now      func() time.Time // swapped out by tests
}

func NewOrchestrator(cfg Config, store Store, node NodeClient, bus MessageBus, adapters *AdapterRegistry) (*Orchestrator, error) {
	network, err := ergo.ParseNetwork(cfg.SigmaForge.Network)
	if err != nil {
		return nil, NewErr(BadRequest, "config: %v", err)
	}
	return &Orchestrator{
		cfg:      cfg,
		network:  network,
		store:    store,
		node:     node,
		bus:      bus,
		adapters: adapters,
		now:      time.Now,
	}, nil
}

func (o *Orchestrator) Network() ergo.NetworkType {
	return o.network
}

// RequestEvent is the bus payload announcing a request state change.
type RequestEvent struct {
	ID       string        `json:"id"`
	Status   RequestStatus `json:"status"`
	Protocol string        `json:"protocol,omitempty"`
	TxID     ergo.TxID     `json:"tx_id,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

func (o *Orchestrator) announce(t EventType, req SigningRequest, status RequestStatus, reason string) {
	e := RequestEvent{ID: req.ID, Status: status, Protocol: req.Protocol, Reason: reason}
	if status == StatusSubmitted {
		e.TxID = req.TxID
	}
	o.bus.Send(t, e, req.ID)
}

// SubmitResult is returned when a request is created: the id to poll,
// the hand-off URIs for the signer, and the summary the caller should
// show before handing either URI out.
type SubmitResult struct {
	ID        string        `json:"id"`
	Status    RequestStatus `json:"status"`
	TxID      ergo.TxID     `json:"txId"`
	DeepLink  string        `json:"deepLink"`
	MobileURI string        `json:"mobileUri"`
	Expires   time.Time     `json:"expires"`
	Summary   TxSummary     `json:"summary"`
}

// Submit registers an externally built unsigned transaction and opens
// a pending signing request for it.
func (o *Orchestrator) Submit(tx *ergo.UnsignedTransaction, description string) (SubmitResult, error) {
	if tx == nil {
		return SubmitResult{}, NewErr(BadRequest, "no transaction given")
	}
	raw, err := tx.Serialize()
	if err != nil {
		return SubmitResult{}, NewErr(InvalidTxn, "cannot encode transaction: %v", err)
	}
	summary, err := SummarizeTx(tx, o.network)
	if err != nil {
		return SubmitResult{}, err
	}
	return o.open(raw, summary, description, "", "")
}

// SubmitBuilt registers a transaction assembled by BuildTransaction,
// carrying its full wallet-relative summary.
func (o *Orchestrator) SubmitBuilt(built *BuiltTx, description, protocol, planID string) (SubmitResult, error) {
	return o.open(built.Bytes, built.Summary, description, protocol, planID)
}

func (o *Orchestrator) open(raw []byte, summary TxSummary, description, protocol, planID string) (SubmitResult, error) {
	now := o.now()
	req := SigningRequest{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Protocol:    protocol,
		PlanID:      planID,
		Description: description,
		TxBytes:     raw,
		TxID:        summary.TxID,
		Summary:     summary,
		Created:     now,
		Updated:     now,
		Expires:     now.Add(time.Duration(o.cfg.Signing.ExpireAfterSec) * time.Second),
	}
	if err := o.store.CreateRequest(req); err != nil {
		return SubmitResult{}, err
	}
	o.announce(REQ_CREATED, req, StatusPending, "")
	return SubmitResult{
		ID:        req.ID,
		Status:    StatusPending,
		TxID:      req.TxID,
		DeepLink:  DeepLink(o.cfg, req),
		MobileURI: MobileURI(o.cfg, req),
		Expires:   req.Expires,
		Summary:   summary,
	}, nil
}

// Poll returns the caller-facing view of one request.
func (o *Orchestrator) Poll(id string) (PollResult, error) {
	req, err := o.store.GetRequest(id)
	if err != nil {
		return PollResult{}, err
	}
	return req.Poll(), nil
}

// Request returns the full stored request.
func (o *Orchestrator) Request(id string) (SigningRequest, error) {
	return o.store.GetRequest(id)
}

// Envelope returns the signer hand-off document for a request still
// waiting to be signed.
func (o *Orchestrator) Envelope(id string) (SignerEnvelope, error) {
	req, err := o.store.GetRequest(id)
	if err != nil {
		return SignerEnvelope{}, err
	}
	if req.Status != StatusPending {
		return SignerEnvelope{}, NewErr(NotFound, "request %s is %s, nothing left to sign", id, req.Status)
	}
	return RequestToSignerEnvelope(o.cfg, req), nil
}

// HandleSignedTx accepts a signed transaction posted back by a signer,
// claims the request, and broadcasts. The claim is an atomic
// pending-to-submitting swap, so of any number of concurrent or
// repeated callbacks exactly one reaches the node; the rest are
// rejected without touching state.
func (o *Orchestrator) HandleSignedTx(ctx context.Context, id string, signedTx json.RawMessage) error {
	if len(signedTx) == 0 {
		return NewErr(BadRequest, "callback carries no signed transaction")
	}
	req, err := o.store.GetRequest(id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		o.bus.Send(SYS_MSG, RequestEvent{ID: id, Status: req.Status, Reason: "late signer callback ignored"}, id)
		return NewErr(AlreadyExists, "request %s is already %s", id, req.Status)
	}
	if err := o.store.TransitionRequest(id, StatusPending, StatusSubmitting, "", ""); err != nil {
		return err
	}

	txID, err := o.broadcastWithRetry(ctx, signedTx)
	switch {
	case err == nil && txID != "" && txID != req.TxID:
		// The node accepted something, but not the transaction this
		// request was opened for. Record the mismatch, not success.
		reason := "signed transaction does not match the request"
		o.fail(id, req, StatusSubmitting, reason)
		return NewErr(BadRequest, "%s: node reported %s, expected %s", reason, txID, req.TxID)
	case err == nil:
		if txID == "" {
			txID = req.TxID
		}
		if terr := o.store.TransitionRequest(id, StatusSubmitting, StatusSubmitted, txID, ""); terr != nil {
			return terr
		}
		req.TxID = txID
		o.announce(REQ_SUBMITTED, req, StatusSubmitted, "")
		return nil
	case IsBroadcastRejectedError(err):
		o.fail(id, req, StatusSubmitting, err.Error())
		return nil
	default:
		o.fail(id, req, StatusSubmitting, "node unavailable during broadcast: "+err.Error())
		return nil
	}
}

func (o *Orchestrator) fail(id string, req SigningRequest, from RequestStatus, reason string) {
	if err := o.store.TransitionRequest(id, from, StatusFailed, "", reason); err != nil {
		o.bus.Send(SYS_ERR, RequestEvent{ID: id, Status: StatusFailed, Reason: err.Error()}, id)
		return
	}
	o.announce(REQ_FAILED, req, StatusFailed, reason)
}

func (o *Orchestrator) broadcastWithRetry(ctx context.Context, signedTx json.RawMessage) (ergo.TxID, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		txID, err := o.node.Broadcast(ctx, signedTx)
		if err == nil || IsBroadcastRejectedError(err) {
			return txID, err
		}
		lastErr = err
		if attempt >= len(broadcastRetryDelays) {
			return "", lastErr
		}
		select {
		case <-ctx.Done():
			return "", lastErr
		case <-time.After(broadcastRetryDelays[attempt]):
		}
	}
}

// HandleDecline records a signer's refusal. The reason is stored
// verbatim and surfaced to the caller on poll.
func (o *Orchestrator) HandleDecline(id string, reason string) error {
	req, err := o.store.GetRequest(id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		o.bus.Send(SYS_MSG, RequestEvent{ID: id, Status: req.Status, Reason: "late decline callback ignored"}, id)
		return NewErr(AlreadyExists, "request %s is already %s", id, req.Status)
	}
	if reason == "" {
		reason = "declined by signer"
	}
	if err := o.store.TransitionRequest(id, StatusPending, StatusFailed, "", reason); err != nil {
		return err
	}
	o.announce(REQ_DECLINED, req, StatusFailed, reason)
	return nil
}

// ExpireSweep moves timed-out pending requests to expired. Called on a
// timer; returns how many it moved.
func (o *Orchestrator) ExpireSweep() (int, error) {
	ids, err := o.store.ExpirePending(o.now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		o.bus.Send(REQ_EXPIRED, RequestEvent{ID: id, Status: StatusExpired, Reason: "signing window elapsed"}, id)
	}
	return len(ids), nil
}

// RecoverInterrupted fails requests stuck in submitting since before
// the broadcast window: the process died between claiming the request
// and hearing back from the node. Called once on startup.
func (o *Orchestrator) RecoverInterrupted() (int, error) {
	cutoff := o.now().Add(-time.Duration(o.cfg.Signing.BroadcastWindowSec) * time.Second)
	ids, err := o.store.RecoverSubmitting(cutoff, "interrupted during broadcast")
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		o.bus.Send(REQ_FAILED, RequestEvent{ID: id, Status: StatusFailed, Reason: "interrupted during broadcast"}, id)
	}
	return len(ids), nil
}

// adapterContext gathers live chain state for one wallet.
func (o *Orchestrator) adapterContext(ctx context.Context, wallet ergo.Address) (AdapterContext, error) {
	if !ergo.ValidateAddress(wallet, o.network) {
		return AdapterContext{}, NewErr(BadRequest, "address %q is not valid on %s", wallet, o.network)
	}
	tree, err := ergo.AddressTree(wallet)
	if err != nil {
		return AdapterContext{}, NewErr(BadRequest, "address %q: %v", wallet, err)
	}
	height, err := o.node.GetHeight(ctx)
	if err != nil {
		return AdapterContext{}, err
	}
	utxos, err := o.node.UnspentBoxes(ctx, wallet)
	if err != nil {
		return AdapterContext{}, err
	}
	return AdapterContext{
		Network:       o.network,
		WalletAddress: wallet,
		WalletTree:    tree,
		Candidates:    utxos,
		Height:        height,
	}, nil
}

// Quote prices a protocol action. Quotes never touch the node: the
// adapter works from the state supplied in params.
func (o *Orchestrator) Quote(protocol string, params json.RawMessage) (*PricingResult, error) {
	adapter, err := o.adapters.Get(protocol)
	if err != nil {
		return nil, err
	}
	return adapter.Quote(AdapterContext{Network: o.network}, params)
}

// Protocols lists the registered adapter names.
func (o *Orchestrator) Protocols() []string {
	return o.adapters.Names()
}

// BuildProtocolTx runs the full flow for one protocol action: fetch
// chain state, select boxes for the adapter's requirement plus fee,
// let the adapter lay out its outputs against the selected inputs,
// assemble the transaction, and open a signing request for it.
func (o *Orchestrator) BuildProtocolTx(ctx context.Context, protocol string, wallet ergo.Address, params json.RawMessage, fee int64) (SubmitResult, error) {
	adapter, err := o.adapters.Get(protocol)
	if err != nil {
		return SubmitResult{}, err
	}
	actx, err := o.adapterContext(ctx, wallet)
	if err != nil {
		return SubmitResult{}, err
	}
	return o.buildAndOpen(adapter, actx, params, fee, "")
}

func (o *Orchestrator) buildAndOpen(adapter Adapter, actx AdapterContext, params json.RawMessage, fee int64, planID string) (SubmitResult, error) {
	if fee <= 0 {
		fee = ergo.RecommendedMinFee
	}
	need, err := adapter.Require(actx, params)
	if err != nil {
		return SubmitResult{}, err
	}
	sel, err := SelectBoxes(actx.Candidates, need, fee, o.cfg.SelectPolicy())
	if err != nil {
		return SubmitResult{}, err
	}
	result, err := adapter.Build(actx, params, sel.Boxes)
	if err != nil {
		return SubmitResult{}, err
	}
	built, err := BuildTransaction(BuildRequest{
		Inputs:        sel.Boxes,
		DataInputs:    result.DataInputs,
		Outputs:       result.Outputs,
		Fee:           fee,
		Height:        actx.Height,
		ChangeTree:    actx.WalletTree,
		ChangeAddress: actx.WalletAddress,
		Mint:          result.Mint,
		Burn:          result.Burn,
		Network:       o.network,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return o.SubmitBuilt(built, result.Description, adapter.Name(), planID)
}

// PlanView is the caller-facing state of a multi-step plan.
type PlanView struct {
	ID       string         `json:"id"`
	Protocol string         `json:"protocol"`
	Wallet   ergo.Address   `json:"wallet"`
	Created  time.Time      `json:"created"`
	Steps    []PlanStepView `json:"steps"`
}

type PlanStepView struct {
	Name      string        `json:"name"`
	RequestID string        `json:"requestId,omitempty"`
	Status    RequestStatus `json:"status,omitempty"`
	TxID      ergo.TxID     `json:"txId,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// OpenPlan starts a multi-step protocol action: the adapter splits the
// parameters into ordered steps, the plan is stored, and the first
// step is built and opened immediately.
func (o *Orchestrator) OpenPlan(ctx context.Context, protocol string, wallet ergo.Address, params json.RawMessage, fee int64) (PlanView, SubmitResult, error) {
	adapter, err := o.adapters.Get(protocol)
	if err != nil {
		return PlanView{}, SubmitResult{}, err
	}
	planner, ok := adapter.(Planner)
	if !ok {
		return PlanView{}, SubmitResult{}, NewErr(BadRequest, "protocol %q has no multi-step actions", protocol)
	}
	actx, err := o.adapterContext(ctx, wallet)
	if err != nil {
		return PlanView{}, SubmitResult{}, err
	}
	steps, err := planner.Plan(actx, params)
	if err != nil {
		return PlanView{}, SubmitResult{}, err
	}
	if len(steps) == 0 {
		return PlanView{}, SubmitResult{}, NewErr(BadRequest, "protocol %q produced an empty plan", protocol)
	}
	plan := Plan{
		ID:       uuid.NewString(),
		Protocol: protocol,
		Wallet:   wallet,
		Steps:    steps,
		Created:  o.now(),
	}
	if err := o.store.CreatePlan(plan); err != nil {
		return PlanView{}, SubmitResult{}, err
	}
	res, err := o.buildPlanStep(adapter, actx, &plan, 0, fee)
	if err != nil {
		return PlanView{}, SubmitResult{}, err
	}
	view, verr := o.PlanStatus(plan.ID)
	return view, res, verr
}

// AdvancePlan builds the next step of a plan. It refuses until the
// previous step's request is submitted on-chain: a later step must
// never move while an earlier one is unsigned, declined or expired.
func (o *Orchestrator) AdvancePlan(ctx context.Context, planID string, fee int64) (SubmitResult, error) {
	plan, err := o.store.GetPlan(planID)
	if err != nil {
		return SubmitResult{}, err
	}
	next := plan.NextStep()
	if next == -1 {
		return SubmitResult{}, NewErr(BadRequest, "plan %s has no steps left to build", planID)
	}
	if next > 0 {
		prev := plan.Steps[next-1]
		prevReq, err := o.store.GetRequest(prev.RequestID)
		if err != nil {
			return SubmitResult{}, err
		}
		if prevReq.Status != StatusSubmitted {
			return SubmitResult{}, NewErr(BadRequest,
				"step %q is %s; %q may only be built once it is submitted", prev.Name, prevReq.Status, plan.Steps[next].Name)
		}
	}
	adapter, err := o.adapters.Get(plan.Protocol)
	if err != nil {
		return SubmitResult{}, err
	}
	actx, err := o.adapterContext(ctx, plan.Wallet)
	if err != nil {
		return SubmitResult{}, err
	}
	return o.buildPlanStep(adapter, actx, &plan, next, fee)
}

func (o *Orchestrator) buildPlanStep(adapter Adapter, actx AdapterContext, plan *Plan, step int, fee int64) (SubmitResult, error) {
	res, err := o.buildAndOpen(adapter, actx, plan.Steps[step].Params, fee, plan.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := o.store.SetPlanStep(plan.ID, step, res.ID); err != nil {
		return SubmitResult{}, err
	}
	plan.Steps[step].RequestID = res.ID
	return res, nil
}

// PlanStatus reports a plan with the live status of each built step.
func (o *Orchestrator) PlanStatus(planID string) (PlanView, error) {
	plan, err := o.store.GetPlan(planID)
	if err != nil {
		return PlanView{}, err
	}
	view := PlanView{
		ID:       plan.ID,
		Protocol: plan.Protocol,
		Wallet:   plan.Wallet,
		Created:  plan.Created,
	}
	for _, step := range plan.Steps {
		sv := PlanStepView{Name: step.Name, RequestID: step.RequestID}
		if step.RequestID != "" {
			req, err := o.store.GetRequest(step.RequestID)
			if err != nil {
				return PlanView{}, err
			}
			p := req.Poll()
			sv.Status, sv.TxID, sv.Error = p.Status, p.TxID, p.Error
		}
		view.Steps = append(view.Steps, sv)
	}
	return view, nil
}
