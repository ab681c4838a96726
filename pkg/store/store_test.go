package store

import (
	"testing"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every backend must behave identically, so the whole suite runs
// against each one.
func eachStore(t *testing.T, test func(t *testing.T, s forge.Store)) {
	t.Run("mem", func(t *testing.T) {
		test(t, NewMemStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer s.Close()
		test(t, s)
	})
}

func pendingRequest(id string, expires time.Time) forge.SigningRequest {
	now := time.Now()
	return forge.SigningRequest{
		ID:          id,
		Status:      forge.StatusPending,
		Protocol:    "swap",
		Description: "swap 5 ERG for SigUSD",
		TxBytes:     []byte{0x01, 0x02, 0x03},
		TxID:        ergo.TxID("aa11"),
		Summary: forge.TxSummary{
			TxID:       "aa11",
			TotalInput: 5_000_000_000,
			Fee:        1_100_000,
		},
		Created: now,
		Updated: now,
		Expires: expires,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		req := pendingRequest("r1", time.Now().Add(15*time.Minute))
		require.NoError(t, s.CreateRequest(req))

		got, err := s.GetRequest("r1")
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		assert.Equal(t, forge.StatusPending, got.Status)
		assert.Equal(t, req.Protocol, got.Protocol)
		assert.Equal(t, req.TxBytes, got.TxBytes)
		assert.Equal(t, req.TxID, got.TxID)
		assert.Equal(t, req.Summary.TotalInput, got.Summary.TotalInput)
		assert.Equal(t, req.Summary.Fee, got.Summary.Fee)
		assert.WithinDuration(t, req.Expires, got.Expires, time.Second)

		_, err = s.GetRequest("nope")
		assert.True(t, forge.IsNotFoundError(err))
	})
}

func TestStoreCreateDuplicate(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		req := pendingRequest("r1", time.Now().Add(time.Minute))
		require.NoError(t, s.CreateRequest(req))
		err := s.CreateRequest(req)
		assert.True(t, forge.IsAlreadyExistsError(err), "got %v", err)
	})
}

func TestStoreCreateRejectsNonPending(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		req := pendingRequest("r1", time.Now().Add(time.Minute))
		req.Status = forge.StatusSubmitted
		err := s.CreateRequest(req)
		assert.Equal(t, forge.BadRequest, forge.CodeOf(err))
	})
}

func TestStoreTransition(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		req := pendingRequest("r1", time.Now().Add(time.Minute))
		require.NoError(t, s.CreateRequest(req))

		// happy path: pending -> submitting -> submitted
		require.NoError(t, s.TransitionRequest("r1", forge.StatusPending, forge.StatusSubmitting, "", ""))
		require.NoError(t, s.TransitionRequest("r1", forge.StatusSubmitting, forge.StatusSubmitted, "bb22", ""))

		got, err := s.GetRequest("r1")
		require.NoError(t, err)
		assert.Equal(t, forge.StatusSubmitted, got.Status)
		assert.Equal(t, ergo.TxID("bb22"), got.TxID)

		// compare-and-swap: the request is no longer pending
		err = s.TransitionRequest("r1", forge.StatusPending, forge.StatusExpired, "", "")
		assert.True(t, forge.IsDBConflictError(err), "got %v", err)
		got, err = s.GetRequest("r1")
		require.NoError(t, err)
		assert.Equal(t, forge.StatusSubmitted, got.Status, "failed swap must not change the row")

		// unknown id
		err = s.TransitionRequest("nope", forge.StatusPending, forge.StatusExpired, "", "")
		assert.True(t, forge.IsNotFoundError(err), "got %v", err)
	})
}

func TestStoreTransitionKeepsTxIDWhenBlank(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		req := pendingRequest("r1", time.Now().Add(time.Minute))
		require.NoError(t, s.CreateRequest(req))
		require.NoError(t, s.TransitionRequest("r1", forge.StatusPending, forge.StatusFailed, "", "declined by signer"))

		got, err := s.GetRequest("r1")
		require.NoError(t, err)
		assert.Equal(t, ergo.TxID("aa11"), got.TxID, "blank txID must not clobber the stored one")
		assert.Equal(t, "declined by signer", got.Reason)
	})
}

func TestStoreExpirePending(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		now := time.Now()
		require.NoError(t, s.CreateRequest(pendingRequest("old", now.Add(-time.Minute))))
		require.NoError(t, s.CreateRequest(pendingRequest("fresh", now.Add(time.Hour))))
		// a submitted request past its window must not be touched
		done := pendingRequest("done", now.Add(-time.Minute))
		require.NoError(t, s.CreateRequest(done))
		require.NoError(t, s.TransitionRequest("done", forge.StatusPending, forge.StatusSubmitting, "", ""))
		require.NoError(t, s.TransitionRequest("done", forge.StatusSubmitting, forge.StatusSubmitted, "", ""))

		moved, err := s.ExpirePending(now)
		require.NoError(t, err)
		assert.Equal(t, []string{"old"}, moved)

		got, _ := s.GetRequest("old")
		assert.Equal(t, forge.StatusExpired, got.Status)
		got, _ = s.GetRequest("fresh")
		assert.Equal(t, forge.StatusPending, got.Status)
		got, _ = s.GetRequest("done")
		assert.Equal(t, forge.StatusSubmitted, got.Status)

		// idempotent: a second sweep finds nothing
		moved, err = s.ExpirePending(now)
		require.NoError(t, err)
		assert.Empty(t, moved)
	})
}

func TestStoreRecoverSubmitting(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		require.NoError(t, s.CreateRequest(pendingRequest("stuck", time.Now().Add(time.Hour))))
		require.NoError(t, s.TransitionRequest("stuck", forge.StatusPending, forge.StatusSubmitting, "", ""))

		// cutoff in the future catches the row we just touched
		moved, err := s.RecoverSubmitting(time.Now().Add(time.Minute), "interrupted during broadcast")
		require.NoError(t, err)
		require.Equal(t, []string{"stuck"}, moved)

		got, _ := s.GetRequest("stuck")
		assert.Equal(t, forge.StatusFailed, got.Status)
		assert.Equal(t, "interrupted during broadcast", got.Reason)
	})
}

func TestStoreListRequestsCursor(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		ids := []string{"a", "b", "c", "d", "e"}
		for _, id := range ids {
			require.NoError(t, s.CreateRequest(pendingRequest(id, time.Now().Add(time.Hour))))
		}
		// one submitted row must not show up in the pending listing
		require.NoError(t, s.TransitionRequest("c", forge.StatusPending, forge.StatusSubmitting, "", ""))

		var all []string
		cursor := 0
		for {
			items, next, err := s.ListRequests(forge.StatusPending, cursor, 2)
			require.NoError(t, err)
			for _, it := range items {
				all = append(all, it.ID)
			}
			if next == 0 {
				break
			}
			require.Greater(t, next, cursor, "cursor must advance")
			cursor = next
		}
		assert.Equal(t, []string{"a", "b", "d", "e"}, all)
	})
}

func TestStorePlans(t *testing.T) {
	eachStore(t, func(t *testing.T, s forge.Store) {
		plan := forge.Plan{
			ID:       "p1",
			Protocol: "p2ploan",
			Wallet:   ergo.Address("9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA"),
			Steps: []forge.PlanStep{
				{Name: "open", Params: []byte(`{"amount":100}`)},
				{Name: "fund", Params: []byte(`{"amount":100}`)},
			},
			Created: time.Now(),
		}
		require.NoError(t, s.CreatePlan(plan))
		err := s.CreatePlan(plan)
		assert.True(t, forge.IsAlreadyExistsError(err), "got %v", err)

		got, err := s.GetPlan("p1")
		require.NoError(t, err)
		assert.Equal(t, plan.Protocol, got.Protocol)
		assert.Equal(t, plan.Wallet, got.Wallet)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, "open", got.Steps[0].Name)
		assert.Equal(t, []byte(`{"amount":100}`), got.Steps[1].Params)
		assert.Equal(t, 0, got.NextStep())

		require.NoError(t, s.SetPlanStep("p1", 0, "req-1"))
		got, err = s.GetPlan("p1")
		require.NoError(t, err)
		assert.Equal(t, "req-1", got.Steps[0].RequestID)
		assert.Equal(t, 1, got.NextStep())

		err = s.SetPlanStep("p1", 5, "req-x")
		assert.True(t, forge.IsNotFoundError(err), "got %v", err)
		_, err = s.GetPlan("nope")
		assert.True(t, forge.IsNotFoundError(err), "got %v", err)
	})
}
