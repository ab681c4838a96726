package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/tjstebbing/conductor"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// qrSize is the pixel size of generated QR code images.
const qrSize = 512

// WebAPI implements conductor.Service. It runs two HTTP listeners: the
// public API callers use to open and poll signing requests, and the
// callback listener signers post outcomes to. The callback listener is
// bound to loopback by default so only a wallet bridge on this host
// can reach it.
type WebAPI struct {
	orch   *forge.Orchestrator
	config forge.Config
}

// interface guard ensures WebAPI implements conductor.Service
var _ conductor.Service = WebAPI{}

func NewWebAPI(config forge.Config, orch *forge.Orchestrator) (WebAPI, error) {
	return WebAPI{orch: orch, config: config}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		pubMux, cbMux := t.createRouters()

		// Start the public server
		pubServer := &http.Server{Addr: t.config.WebAPI.PubBind + ":" + t.config.WebAPI.PubPort, Handler: pubMux}
		fmt.Printf("\nPublic API listening on %s:%s", t.config.WebAPI.PubBind, t.config.WebAPI.PubPort)
		go func() {
			if err := pubServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server public ListenAndServe: %v", err)
			}
		}()

		// Start the signer callback server
		cbServer := &http.Server{Addr: t.config.WebAPI.CallbackBind + ":" + t.config.WebAPI.CallbackPort, Handler: cbMux}
		fmt.Printf("\nSigner callback listening on %s:%s", t.config.WebAPI.CallbackBind, t.config.WebAPI.CallbackPort)
		go func() {
			if err := cbServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server callback ListenAndServe: %v", err)
			}
		}()

		started <- true
		ctx := <-stop
		pubServer.Shutdown(ctx)
		cbServer.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouters() (pubMux *httprouter.Router, cbMux *httprouter.Router) {
	pubMux = httprouter.New() // Public APIs
	cbMux = httprouter.New()  // Signer callback listener

	// Public APIs

	// POST { tx | payload, description } /tx/submit -> { id, deepLink, mobileUri, ... } open a signing request
	pubMux.POST("/tx/submit", t.submitTx)

	// GET /tx/:id -> { status } poll a signing request
	pubMux.GET("/tx/:id", t.pollRequest)

	// GET /tx/:id/qr.png -> QR code image of the mobile signing URI
	pubMux.GET("/tx/:id/qr.png", t.getRequestQR)

	// GET /tx/:id/envelope -> { envelope } the hand-off document a signer fetches
	pubMux.GET("/tx/:id/envelope", t.getRequestEnvelope)

	// GET /protocols -> { protocols } registered adapter names
	pubMux.GET("/protocols", t.listProtocols)

	// POST { params } /protocol/:name/quote -> { pricing } price an action, no chain access
	pubMux.POST("/protocol/:name/quote", t.quoteProtocol)

	// POST { wallet, params, fee } /protocol/:name/build -> { id, deepLink, ... } build a tx and open a signing request
	pubMux.POST("/protocol/:name/build", t.buildProtocolTx)

	// POST { wallet, params, fee } /protocol/:name/plan -> { plan, first } open a multi-step plan
	pubMux.POST("/protocol/:name/plan", t.openPlan)

	// GET /plan/:id -> { steps } plan with the live status of each step
	pubMux.GET("/plan/:id", t.getPlan)

	// POST { fee } /plan/:id/advance -> { id, deepLink, ... } build the next step of a plan
	pubMux.POST("/plan/:id/advance", t.advancePlan)

	// Signer callbacks

	// POST { signedTx } | { declined, reason } /callback/:id -> { status } signer outcome for one request
	cbMux.POST("/callback/:id", t.signerCallback)

	return
}

// SubmitTxRequest is the body of POST /tx/submit. The unsigned
// transaction arrives either as the node's JSON document ("tx") or as
// canonical bytes in unpadded base64url form ("payload"), the same
// encoding signing URIs carry.
type SubmitTxRequest struct {
	Tx          json.RawMessage `json:"tx"`
	Payload     string          `json:"payload"`
	Description string          `json:"description"`
}

// submitTx opens a signing request for an externally assembled
// transaction and returns the hand-off links for it.
func (t WebAPI) submitTx(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var o SubmitTxRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	var tx *ergo.UnsignedTransaction
	switch {
	case len(o.Tx) > 0:
		tx = &ergo.UnsignedTransaction{}
		if err := json.Unmarshal(o.Tx, tx); err != nil {
			sendBadRequest(w, fmt.Sprintf("bad 'tx' in JSON body: %v", err))
			return
		}
	case o.Payload != "":
		raw, err := forge.DecodeTxPayload(o.Payload)
		if err != nil {
			sendError(w, "DecodePayload", err)
			return
		}
		tx, err = ergo.DecodeUnsignedTransaction(raw)
		if err != nil {
			sendBadRequest(w, fmt.Sprintf("bad 'payload' in JSON body: %v", err))
			return
		}
	default:
		sendBadRequest(w, "missing 'tx' or 'payload' in JSON body")
		return
	}
	res, err := t.orch.Submit(tx, o.Description)
	if err != nil {
		sendError(w, "Submit", err)
		return
	}
	sendResponse(w, res)
}

// pollRequest returns the current status of the signing request with
// the id in the URL. Callers poll this until a terminal state.
func (t WebAPI) pollRequest(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		sendBadRequest(w, "missing request ID in URL")
		return
	}
	res, err := t.orch.Poll(id)
	if err != nil {
		sendError(w, "Poll", err)
		return
	}
	sendResponse(w, res)
}

func (t WebAPI) getRequestQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		sendBadRequest(w, "missing request ID in URL")
		return
	}
	req, err := t.orch.Request(id)
	if err != nil {
		sendError(w, "GetRequest", err)
		return
	}
	qr, err := GenerateQRCodePNG(forge.MobileURI(t.config, req), qrSize)
	if err != nil {
		sendError(w, "GenerateQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	// The signing URI for a request never changes, and requests expire
	// within the signing window, so clients may cache the image for
	// its whole life.
	w.Header().Set("Cache-Control", "max-age=900, immutable")
	w.Write(qr)
}

// getRequestEnvelope returns the signer hand-off document: the wrapper
// a wallet fetches when it was given only the request id.
func (t WebAPI) getRequestEnvelope(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		sendBadRequest(w, "missing request ID in URL")
		return
	}
	envelope, err := t.orch.Envelope(id)
	if err != nil {
		sendError(w, "Envelope", err)
		return
	}
	sendResponse(w, envelope)
}

type ProtocolListResponse struct {
	Protocols []string `json:"protocols"`
}

func (t WebAPI) listProtocols(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	sendResponse(w, ProtocolListResponse{Protocols: t.orch.Protocols()})
}

// ProtocolActionRequest is the body of the protocol quote, build and
// plan endpoints. Params pass through to the adapter untouched. Quote
// uses Params alone; build and plan also need the Wallet to spend
// from, and take an optional miner fee override in nanoERG.
type ProtocolActionRequest struct {
	Wallet ergo.Address    `json:"wallet"`
	Params json.RawMessage `json:"params"`
	Fee    int64           `json:"fee"`
}

func decodeProtocolAction(r *http.Request, needWallet bool) (ProtocolActionRequest, string) {
	var o ProtocolActionRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		return o, fmt.Sprintf("bad request body (expecting JSON): %v", err)
	}
	if len(o.Params) == 0 {
		return o, "missing 'params' in JSON body"
	}
	if needWallet && o.Wallet == "" {
		return o, "missing 'wallet' in JSON body"
	}
	return o, ""
}

func (t WebAPI) quoteProtocol(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("name")
	o, problem := decodeProtocolAction(r, false)
	if problem != "" {
		sendBadRequest(w, problem)
		return
	}
	res, err := t.orch.Quote(name, o.Params)
	if err != nil {
		sendError(w, "Quote", err)
		return
	}
	sendResponse(w, res)
}

// buildProtocolTx runs the whole flow for one protocol action and
// returns the opened signing request with its hand-off links.
func (t WebAPI) buildProtocolTx(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("name")
	o, problem := decodeProtocolAction(r, true)
	if problem != "" {
		sendBadRequest(w, problem)
		return
	}
	res, err := t.orch.BuildProtocolTx(r.Context(), name, o.Wallet, o.Params, o.Fee)
	if err != nil {
		sendError(w, "BuildProtocolTx", err)
		return
	}
	sendResponse(w, res)
}

// OpenPlanResponse carries the stored plan and the signing request
// already opened for its first step.
type OpenPlanResponse struct {
	Plan  forge.PlanView     `json:"plan"`
	First forge.SubmitResult `json:"first"`
}

func (t WebAPI) openPlan(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("name")
	o, problem := decodeProtocolAction(r, true)
	if problem != "" {
		sendBadRequest(w, problem)
		return
	}
	view, first, err := t.orch.OpenPlan(r.Context(), name, o.Wallet, o.Params, o.Fee)
	if err != nil {
		sendError(w, "OpenPlan", err)
		return
	}
	sendResponse(w, OpenPlanResponse{Plan: view, First: first})
}

func (t WebAPI) getPlan(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		sendBadRequest(w, "missing plan ID in URL")
		return
	}
	view, err := t.orch.PlanStatus(id)
	if err != nil {
		sendError(w, "PlanStatus", err)
		return
	}
	sendResponse(w, view)
}

type AdvancePlanRequest struct {
	Fee int64 `json:"fee"` // optional fee override (missing or zero: the recommended minimum)
}

func (t WebAPI) advancePlan(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		sendBadRequest(w, "missing plan ID in URL")
		return
	}
	var o AdvancePlanRequest
	// the body is optional; an empty POST advances with the default fee
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil && err != io.EOF {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	res, err := t.orch.AdvancePlan(r.Context(), id, o.Fee)
	if err != nil {
		sendError(w, "AdvancePlan", err)
		return
	}
	sendResponse(w, res)
}

// SignerCallback is what a signer posts back for one request: the
// signed transaction on approval, or declined with an optional reason.
type SignerCallback struct {
	SignedTx json.RawMessage `json:"signedTx"`
	Declined bool            `json:"declined"`
	Reason   string          `json:"reason"`
}

// signerCallback settles a signing request from either hand-off path.
// A request accepts exactly one callback: late and concurrent
// duplicates get a 200 with the current state so the signer can show
// the user what actually happened, but they never touch state.
func (t WebAPI) signerCallback(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		sendBadRequest(w, "missing request ID in URL")
		return
	}
	var o SignerCallback
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	switch {
	case o.Declined:
		err = t.orch.HandleDecline(id, o.Reason)
	case len(o.SignedTx) > 0:
		err = t.orch.HandleSignedTx(r.Context(), id, o.SignedTx)
	default:
		sendBadRequest(w, "missing 'signedTx' or 'declined' in JSON body")
		return
	}
	switch {
	case err == nil:
	case forge.IsAlreadyExistsError(err) || forge.IsDBConflictError(err):
		log.Printf("[!] dropped duplicate signer callback for %s: %v\n", id, err)
	default:
		sendError(w, "Callback", err)
		return
	}
	res, err := t.orch.Poll(id)
	if err != nil {
		sendError(w, "Callback", err)
		return
	}
	sendResponse(w, res)
}
