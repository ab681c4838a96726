package node

import (
	"context"
	"encoding/json"
	"sync"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// interface guard ensures MockClient implements forge.NodeClient
var _ forge.NodeClient = &MockClient{}

// NewMockClient returns a mocked forge.NodeClient implementor. By
// default every broadcast succeeds and returns no id, which callers
// treat as "the node kept our id".
func NewMockClient() *MockClient {
	return &MockClient{
		Height: 1_000_000,
		Boxes:  make(map[ergo.Address][]ergo.Box),
	}
}

// MockClient fields may be set directly before the client is shared
// with another goroutine; afterwards use the Set methods.
type MockClient struct {
	mu          sync.Mutex
	Height      uint32
	HeightErr   error
	Boxes       map[ergo.Address][]ergo.Box
	BoxesErr    error
	BroadcastFn func(signedTx json.RawMessage) (ergo.TxID, error)
	Broadcasts  int // number of Broadcast calls observed
}

func (m *MockClient) SetHeight(h uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Height = h
}

func (m *MockClient) SetHeightErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeightErr = err
}

func (m *MockClient) GetHeight(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HeightErr != nil {
		return 0, m.HeightErr
	}
	return m.Height, nil
}

func (m *MockClient) UnspentBoxes(ctx context.Context, address ergo.Address) ([]ergo.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BoxesErr != nil {
		return nil, m.BoxesErr
	}
	return m.Boxes[address], nil
}

func (m *MockClient) Broadcast(ctx context.Context, signedTx json.RawMessage) (ergo.TxID, error) {
	m.mu.Lock()
	m.Broadcasts++
	fn := m.BroadcastFn
	m.mu.Unlock()
	if fn != nil {
		return fn(signedTx)
	}
	return "", nil
}
