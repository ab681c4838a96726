package forge

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// AdapterContext is the on-chain state an adapter works against: the
// wallet's address and guard script, its candidate input boxes, and the
// chain height at build time. It is passed by value; adapters read it
// and never mutate it.
type AdapterContext struct {
	Network       ergo.NetworkType
	WalletAddress ergo.Address
	WalletTree    []byte
	Candidates    []ergo.Box
	Height        uint32
}

// DisplayAmount is one asset amount in a quote, carried both in
// display units and in the raw smallest unit.
type DisplayAmount struct {
	Asset   string          `json:"asset"`
	TokenID ergo.TokenID    `json:"tokenId,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Raw     int64           `json:"raw"`
}

// PricingResult is what an adapter's Quote returns: the amounts the
// wallet pays and receives, the fees along the way, and for trading
// protocols the effective price and its impact (zero otherwise).
type PricingResult struct {
	Protocol    string          `json:"protocol"`
	Action      string          `json:"action"`
	Pay         []DisplayAmount `json:"pay,omitempty"`
	Receive     []DisplayAmount `json:"receive,omitempty"`
	Fees        []DisplayAmount `json:"fees,omitempty"`
	Price       decimal.Decimal `json:"price"`
	PriceImpact decimal.Decimal `json:"priceImpact"`
	Notes       []string        `json:"notes,omitempty"`
}

// BuildResult is the adapter's side of a transaction: the outputs it
// wants, before the builder appends the fee box and the change box.
type BuildResult struct {
	Outputs     []ergo.BoxCandidate
	DataInputs  []ergo.DataInput
	Mint        *MintDecl
	Burn        []ergo.TokenAmount
	Description string
}

// Adapter turns protocol-specific parameters into concrete transaction
// outputs. All three methods are pure functions of their arguments:
// chain state arrives through the context and the parameters, never
// through hidden lookups, so the same call always gives the same
// answer.
//
// Quote prices an action. Require declares what box selection must
// cover beyond the miner fee: the output values the adapter will
// create, plus any token amounts they carry. Build produces the
// desired outputs given the inputs selection chose; it sees the final
// input list because some results depend on it (a minted token's id is
// the first input's box id).
type Adapter interface {
	Name() string
	Quote(actx AdapterContext, params json.RawMessage) (*PricingResult, error)
	Require(actx AdapterContext, params json.RawMessage) (Need, error)
	Build(actx AdapterContext, params json.RawMessage, inputs []ergo.Box) (*BuildResult, error)
}

// Planner is implemented by adapters whose actions span several
// dependent transactions. Plan splits the parameters into named steps;
// step N+1 may only be built once step N's request was submitted
// on-chain.
type Planner interface {
	Plan(actx AdapterContext, params json.RawMessage) ([]PlanStep, error)
}

// AdapterRegistry holds the protocol adapters a deployment exposes,
// keyed by name.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: map[string]Adapter{}}
}

func (r *AdapterRegistry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if name == "" {
		return NewErr(BadRequest, "adapter has no name")
	}
	if _, dup := r.adapters[name]; dup {
		return NewErr(AlreadyExists, "adapter %q is already registered", name)
	}
	r.adapters[name] = a
	return nil
}

func (r *AdapterRegistry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, NewErr(NotFound, "no adapter named %q", name)
	}
	return a, nil
}

func (r *AdapterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
