package forge

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// SignerEnvelope is the wrapper handed to an external signer wallet.
// The Payload is the canonical unsigned transaction in unpadded
// base64url form; the summary repeats what those bytes say so the
// wallet can show the user something readable, but the bytes are the
// request.
type SignerEnvelope struct {
	Type           string    `json:"type"`
	ServiceName    string    `json:"service_name"`
	ServiceIconURL string    `json:"service_icon_url"`
	ServiceDomain  string    `json:"service_domain"`
	RequestID      string    `json:"request_id"`
	Network        string    `json:"network"`
	Description    string    `json:"description"`
	Payload        string    `json:"payload"`
	TxID           string    `json:"tx_id"`
	Summary        TxSummary `json:"summary"`
	CallbackURL    string    `json:"callback_url"`
	Initiated      time.Time `json:"initiated"`
	TimeoutSec     int       `json:"timeout_sec"`
}

const envelopeType = "sf:1:signing_request"

// RequestToSignerEnvelope wraps a stored signing request for hand-off.
func RequestToSignerEnvelope(cfg Config, req SigningRequest) SignerEnvelope {
	return SignerEnvelope{
		Type:           envelopeType,
		ServiceName:    cfg.SigmaForge.ServiceName,
		ServiceIconURL: cfg.SigmaForge.ServiceIconURL,
		ServiceDomain:  cfg.SigmaForge.ServiceDomain,
		RequestID:      req.ID,
		Network:        cfg.SigmaForge.Network,
		Description:    req.Description,
		Payload:        TxPayload(req.TxBytes),
		TxID:           string(req.TxID),
		Summary:        req.Summary,
		CallbackURL:    CallbackURL(cfg, req.ID),
		Initiated:      req.Created,
		TimeoutSec:     int(time.Until(req.Expires) / time.Second),
	}
}

// TxPayload returns the canonical unsigned transaction bytes in
// unpadded base64url form. Every hand-off surface embeds this exact
// string, so two signers reached by different routes decode identical
// bytes.
func TxPayload(txBytes []byte) string {
	return base64.RawURLEncoding.EncodeToString(txBytes)
}

// DecodeTxPayload reverses TxPayload.
func DecodeTxPayload(payload string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, NewErr(BadRequest, "bad tx payload: %v", err)
	}
	return raw, nil
}

// CallbackURL is where the signer posts the outcome for one request:
// the configured public base when a proxy forwards callbacks, the
// loopback listener otherwise.
func CallbackURL(cfg Config, id string) string {
	if base := cfg.WebAPI.CallbackBase; base != "" {
		return strings.TrimRight(base, "/") + "/callback/" + id
	}
	host := net.JoinHostPort(cfg.WebAPI.CallbackBind, cfg.WebAPI.CallbackPort)
	return fmt.Sprintf("http://%s/callback/%s", host, id)
}

// DeepLink is the URI that launches a browser-extension signer.
func DeepLink(cfg Config, req SigningRequest) string {
	return signerURI(cfg.Signing.DeepLinkScheme, cfg, req)
}

// MobileURI is the URI that launches a mobile wallet. It carries the
// same payload as the deep link under a different scheme.
func MobileURI(cfg Config, req SigningRequest) string {
	return signerURI(cfg.Signing.MobileScheme, cfg, req)
}

func signerURI(scheme string, cfg Config, req SigningRequest) string {
	q := url.Values{}
	q.Set("tx", TxPayload(req.TxBytes))
	q.Set("id", req.ID)
	q.Set("callback", CallbackURL(cfg, req.ID))
	return scheme + "://sign?" + q.Encode()
}
