package services

import (
	"testing"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/node"
	"github.com/sigmanauts/sigmaforge/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRequest(t *testing.T, st forge.Store, id string, expires time.Time) {
	now := time.Now()
	require.NoError(t, st.CreateRequest(forge.SigningRequest{
		ID:      id,
		Status:  forge.StatusPending,
		TxBytes: []byte{0x01},
		TxID:    "aa11",
		Created: now,
		Updated: now,
		Expires: expires,
	}))
}

func TestExpirerSweepsAndRecovers(t *testing.T) {
	bus := runBus(t)
	st := store.NewMemStore()
	mock := node.NewMockClient()

	cfg := forge.Config{}
	cfg.SigmaForge.Network = "mainnet"
	cfg.Signing.SweepSeconds = 1
	cfg.Signing.BroadcastWindowSec = 0 // at startup, any submitting request counts as interrupted

	orch, err := forge.NewOrchestrator(cfg, st, mock, bus, forge.NewAdapterRegistry())
	require.NoError(t, err)

	// stale pending request, ripe for the sweep
	seedRequest(t, st, "stale", time.Now().Add(-time.Minute))
	// fresh pending request that must survive
	seedRequest(t, st, "fresh", time.Now().Add(time.Hour))
	// a request caught mid-broadcast by a crash
	seedRequest(t, st, "stuck", time.Now().Add(time.Hour))
	require.NoError(t, st.TransitionRequest("stuck", forge.StatusPending, forge.StatusSubmitting, "", ""))

	runService(t, NewExpirer(cfg, orch))

	// startup recovery is immediate
	require.Eventually(t, func() bool {
		req, err := st.GetRequest("stuck")
		return err == nil && req.Status == forge.StatusFailed
	}, 2*time.Second, 20*time.Millisecond, "interrupted request was not recovered")
	req, err := st.GetRequest("stuck")
	require.NoError(t, err)
	assert.Equal(t, "interrupted during broadcast", req.Reason)

	// the sweep fires within its cadence
	require.Eventually(t, func() bool {
		req, err := st.GetRequest("stale")
		return err == nil && req.Status == forge.StatusExpired
	}, 3*time.Second, 20*time.Millisecond, "stale request was not expired")

	req, err = st.GetRequest("fresh")
	require.NoError(t, err)
	assert.Equal(t, forge.StatusPending, req.Status, "fresh request must be untouched")
}
