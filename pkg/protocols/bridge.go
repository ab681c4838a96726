package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// bridge-lock holds outbound value until the federation signs the
// release on the destination chain; the destination is recorded in
// registers so the watchers can attribute the transfer.
const bridgeLockTreeHex = "0823" +
	"d19683030193e4c6a7040e93e4c6a7050e93b1db" +
	"6308a77300ed92c1a5730195938cb2"

var bridgeLockTree = mustContractTree(bridgeLockTreeHex)

// bridge fee schedule: a flat federation fee plus a percentage of the
// transferred amount.
var (
	bridgeFlatFee = int64(5_000_000)
	bridgePctFee  = decimal.RequireFromString("0.25")
)

// bridgeChains is the destination chain tags the federation watches.
var bridgeChains = map[string]bool{
	"bitcoin":  true,
	"ethereum": true,
	"cardano":  true,
}

// BridgeParams locks value for release on another chain. The transfer
// moves either nanoERG or one token; the destination address is an
// opaque byte string in the destination chain's own format.
type BridgeParams struct {
	DestinationChain   string `json:"destinationChain"`
	DestinationAddress string `json:"destinationAddress"`

	Amount        int64        `json:"amount"`
	TokenID       ergo.TokenID `json:"tokenId,omitempty"` // empty: transferring ERG
	TokenDecimals int          `json:"tokenDecimals,omitempty"`
}

func (p *BridgeParams) validate() error {
	if !bridgeChains[p.DestinationChain] {
		return forge.NewErr(forge.BadRequest, "no bridge to chain %q", p.DestinationChain)
	}
	if p.DestinationAddress == "" {
		return forge.NewErr(forge.BadRequest, "missing destination address")
	}
	if p.Amount <= 0 {
		return forge.NewErr(forge.BadRequest, "bridge amount %d is not positive", p.Amount)
	}
	if p.TokenID != "" {
		if _, err := p.TokenID.Bytes(); err != nil {
			return forge.NewErr(forge.BadRequest, "%v", err)
		}
	}
	return nil
}

// fees returns the federation's cut. The percentage applies to the
// transferred amount in its own unit; for token transfers the flat fee
// is still paid in ERG.
func (p *BridgeParams) fees() (flatErg, pctOfAmount int64) {
	pct := decimal.NewFromInt(p.Amount).Mul(bridgePctFee).Div(hundred).Ceil().IntPart()
	return bridgeFlatFee, pct
}

type bridgeAdapter struct{}

func NewBridge() forge.Adapter {
	return bridgeAdapter{}
}

func (bridgeAdapter) Name() string { return "bridge" }

func (bridgeAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p BridgeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	flat, pct := p.fees()

	res := &forge.PricingResult{Protocol: "bridge", Action: "lock"}
	if p.TokenID == "" {
		res.Pay = []forge.DisplayAmount{ergAmount(p.Amount + flat)}
		res.Receive = []forge.DisplayAmount{ergAmount(p.Amount - pct)}
		res.Fees = []forge.DisplayAmount{ergAmount(flat + pct)}
	} else {
		res.Pay = []forge.DisplayAmount{
			tokenAmount("token", p.TokenID, p.Amount, p.TokenDecimals),
			ergAmount(flat),
		}
		res.Receive = []forge.DisplayAmount{tokenAmount("token", p.TokenID, p.Amount-pct, p.TokenDecimals)}
		res.Fees = []forge.DisplayAmount{ergAmount(flat), tokenAmount("token", p.TokenID, pct, p.TokenDecimals)}
	}
	if p.Amount-pct <= 0 {
		return nil, forge.NewErr(forge.BadRequest, "amount %d does not cover the bridge fee", p.Amount)
	}
	res.Notes = []string{"released on " + p.DestinationChain + " after federation confirmation"}
	return res, nil
}

func (bridgeAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p BridgeParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(); err != nil {
		return forge.Need{}, err
	}
	flat, _ := p.fees()
	if p.TokenID == "" {
		return forge.ValueNeed(ergo.SafeMinBoxValue + p.Amount + flat), nil
	}
	return forge.TokenNeed(ergo.SafeMinBoxValue+flat,
		ergo.TokenAmount{TokenID: p.TokenID, Amount: p.Amount}), nil
}

func (bridgeAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p BridgeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	refund, err := redeemerConstant(actx)
	if err != nil {
		return nil, err
	}
	flat, _ := p.fees()

	lock := ergo.BoxCandidate{
		ErgoTree:       bridgeLockTree,
		CreationHeight: actx.Height,
		Registers: ergo.Registers{
			ergo.R4: ergo.ByteCollConstant([]byte(p.DestinationChain)),
			ergo.R5: ergo.ByteCollConstant([]byte(p.DestinationAddress)),
			ergo.R6: refund,
		},
	}
	if p.TokenID == "" {
		lock.Value = ergo.SafeMinBoxValue + p.Amount + flat
	} else {
		lock.Value = ergo.SafeMinBoxValue + flat
		lock.Assets = []ergo.TokenAmount{{TokenID: p.TokenID, Amount: p.Amount}}
	}
	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{lock},
		Description: "bridge: lock for " + p.DestinationChain,
	}, nil
}
