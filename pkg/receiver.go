package forge

type NodeEventType int

const (
	TX NodeEventType = iota
	Block
)

// NodeEvent is a chain event learned out-of-band, e.g. over ZMQ.
// Carried data is unauthenticated; consumers must confirm against the
// node before acting on it.
type NodeEvent struct {
	Type NodeEventType
	ID   string
}

type NodeEmitter interface {
	Subscribe(chan<- NodeEvent)
}

// TipEvent is the bus payload sent when the chain tip moves.
type TipEvent struct {
	Height uint32 `json:"height"`
}
