package forge

import (
	"context"
	"encoding/json"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// NodeClient is the gateway's window onto a chain node: current height,
// unspent boxes guarded by an address, and broadcast of a fully signed
// transaction. Nothing here blocks on chain events; callers poll.
//
// Implementations must keep the two failure modes apart: a node that
// cannot be reached or answers with a server fault is NotAvailable
// (transient, retryable), while a transaction the node reviewed and
// turned down is BroadcastRejected (final, carries the node's verdict).
type NodeClient interface {
	GetHeight(ctx context.Context) (uint32, error)
	UnspentBoxes(ctx context.Context, address ergo.Address) ([]ergo.Box, error)
	Broadcast(ctx context.Context, signedTx json.RawMessage) (ergo.TxID, error)
}
