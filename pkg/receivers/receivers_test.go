package receivers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type service interface {
	Run(started, stopped chan bool, stop chan context.Context) error
}

// runService starts a conductor-style service and stops it on cleanup.
func runService(t *testing.T, svc service) {
	started, stopped := make(chan bool, 1), make(chan bool, 1)
	stop := make(chan context.Context, 1)
	require.NoError(t, svc.Run(started, stopped, stop))
	<-started
	t.Cleanup(func() {
		stop <- context.Background()
		<-stopped
	})
}

func runBus(t *testing.T) forge.MessageBus {
	bus := forge.NewMessageBus()
	runService(t, bus)
	return bus
}

func TestWebhookDelivery(t *testing.T) {
	const secret = "hunter2"

	var mu sync.Mutex
	var got []WebhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		// the receiver-side verification every webhook consumer performs
		ts := r.Header.Get("X-Forge-Timestamp")
		require.NotEmpty(t, ts)
		mac := hmac.New(sha256.New, []byte(secret))
		fmt.Fprintf(mac, "%s.%s", ts, body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		require.Equal(t, want, r.Header.Get("X-Forge-Signature"))

		var b WebhookBody
		require.NoError(t, json.Unmarshal(body, &b))
		mu.Lock()
		got = append(got, b)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	t.Cleanup(srv.Close)

	bus := runBus(t)
	sender := NewWebhookSender(forge.CallbackConfig{Path: srv.URL, HMACSecret: secret}, bus)
	runService(t, sender)
	bus.Register(sender, forge.EVENT_REQ("REQ"))

	require.NoError(t, bus.Send(forge.REQ_SUBMITTED,
		forge.RequestEvent{ID: "r1", Status: forge.StatusSubmitted}, "r1"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 20*time.Millisecond, "no signed delivery arrived")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "SUBMITTED", got[0].Event)
	assert.Equal(t, "REQ", got[0].Class)
	assert.Equal(t, "r1", got[0].ID)
	var payload forge.RequestEvent
	require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
	assert.Equal(t, forge.StatusSubmitted, payload.Status)
}

func TestWebhookRetriesUntilAccepted(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	t.Cleanup(srv.Close)

	bus := runBus(t)
	sender := NewWebhookSender(forge.CallbackConfig{Path: srv.URL}, bus)
	runService(t, sender)

	sender.Rec <- forge.Message{EventType: forge.REQ_FAILED, Message: []byte(`{}`), ID: "r2"}

	// first retry fires after a 1s backoff
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	}, 5*time.Second, 50*time.Millisecond, "delivery was not retried")
}

func TestMessageLoggerWritesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	logger := NewMessageLogger(path)
	runService(t, logger)

	logger.Rec <- forge.Message{
		EventType: forge.REQ_EXPIRED,
		Message:   []byte(`{"id":"r3","status":"expired"}`),
		ID:        "r3",
	}

	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(raw), "REQ:EXPIRED (r3)")
	}, 3*time.Second, 20*time.Millisecond, "event line never reached the log file")
}

func TestMatchTypes(t *testing.T) {
	types := matchTypes("Logger test", []string{"REQ", "NET", "bogus"})
	require.Len(t, types, 2)
	assert.Equal(t, "REQ", types[0].Type())
	assert.Equal(t, "NET", types[1].Type())
}

func TestQueueWants(t *testing.T) {
	assert.True(t, queueWants([]string{"ALL"}, forge.REQ_CREATED))
	assert.True(t, queueWants([]string{"NET", "REQ"}, forge.REQ_CREATED))
	assert.False(t, queueWants([]string{"NET"}, forge.REQ_CREATED))
	assert.False(t, queueWants(nil, forge.REQ_CREATED))
}

func TestSignPayloadShape(t *testing.T) {
	sig := signPayload("1700000000", []byte(`{"a":1}`), "secret")
	require.Len(t, sig, 64, "hex sha256")
	// deterministic for fixed inputs
	assert.Equal(t, sig, signPayload("1700000000", []byte(`{"a":1}`), "secret"))
	assert.NotEqual(t, sig, signPayload("1700000001", []byte(`{"a":1}`), "secret"),
		"timestamp must be part of the signed material")
	assert.NotEqual(t, sig, signPayload("1700000000", []byte(`{"a":2}`), "secret"))
}
