package receivers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/conductor"
)

// WebhookSender POSTs bus messages to one configured endpoint so a
// shop backend can react to request lifecycle events without polling.
// Deliveries are signed when an HMAC secret is configured.
type WebhookSender struct {
	// incoming msgs
	Rec        chan forge.Message
	Path       string
	HMACSecret string
	Bus        forge.MessageBus
}

func NewWebhookSender(config forge.CallbackConfig, bus forge.MessageBus) WebhookSender {
	return WebhookSender{
		Rec:        make(chan forge.Message, 1000),
		Path:       config.Path,
		HMACSecret: config.HMACSecret,
		Bus:        bus,
	}
}

// Implements forge.MessageSubscriber
func (s WebhookSender) GetChan() chan forge.Message {
	return s.Rec
}

// Implements conductor.Service
func (s WebhookSender) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			case <-stop:
				close(s.Rec)
				close(stopped)
				return
			case msg := <-s.Rec:
				s.deliver(msg)
			}
		}
	}()
	return nil
}

// WebhookBody is the JSON document POSTed for each event.
type WebhookBody struct {
	Event   string          `json:"event"`
	Class   string          `json:"class"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (s WebhookSender) deliver(msg forge.Message) {
	body, err := json.Marshal(WebhookBody{
		Event:   fmt.Sprintf("%v", msg.EventType),
		Class:   msg.EventType.Type(),
		ID:      msg.ID,
		Payload: json.RawMessage(msg.Message),
	})
	if err != nil {
		s.Bus.Send(forge.SYS_ERR, fmt.Sprintf("WebhookSender: cannot marshal message %s: %v", msg.ID, err))
		return
	}
	// retries run on their own goroutine so a dead endpoint cannot
	// back up the receive channel
	go s.postWithRetry(body)
}

func (s WebhookSender) postWithRetry(body []byte) {
	maxRetries := 6
	delay := 1 * time.Second
	maxDelay := 32 * time.Second

	client := &http.Client{Timeout: 30 * time.Second}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// a fresh request every attempt: the body reader is consumed
		// by each send
		req, err := http.NewRequest("POST", s.Path, bytes.NewReader(body))
		if err != nil {
			s.Bus.Send(forge.SYS_ERR, fmt.Sprintf("WebhookSender: cannot build request for %s: %v", s.Path, err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if s.HMACSecret != "" {
			timestamp := fmt.Sprintf("%d", time.Now().Unix())
			req.Header.Set("X-Forge-Signature", "sha256="+signPayload(timestamp, body, s.HMACSecret))
			req.Header.Set("X-Forge-Timestamp", timestamp)
		}

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return
			}
			err = fmt.Errorf("endpoint answered %d", resp.StatusCode)
		}

		s.Bus.Send(forge.SYS_MSG, fmt.Sprintf("WebhookSender: delivery to %s failed (attempt %d/%d), retrying in %v: %v",
			s.Path, attempt+1, maxRetries+1, delay, err))
		time.Sleep(delay)

		// Increase delay exponentially, with a maximum limit
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	s.Bus.Send(forge.SYS_ERR, fmt.Sprintf("WebhookSender: delivery to %s failed after maximum retries, giving up", s.Path))
}

// signPayload returns the hex HMAC-SHA256 of "timestamp.payload". The
// receiver recomputes this over the same two values to verify origin
// and to reject replayed deliveries with stale timestamps.
func signPayload(timestamp string, payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%s.%s", timestamp, payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Reads config and sets up any configured webhook senders
func SetupWebhooks(cond *conductor.Conductor, bus forge.MessageBus, conf forge.Config) {
	for name, c := range conf.Callbacks {
		s := NewWebhookSender(c, bus)
		cond.Service(fmt.Sprintf("Webhook sender for: %s", c.Path), s)
		bus.Register(s, matchTypes(fmt.Sprintf("Webhook %s", name), c.Types)...)
	}
}
