package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// curve-pool guards the box holding the unsold supply and the ERG
// collected so far; curve-order holds a buy or sell order until a bot
// pairs it with the pool box.
const (
	curvePoolTreeHex = "0822" +
		"d19683030193c5a7c5b2a4730000938cb2db6308" +
		"a773010001730293cbc2b2a57303"
	curveOrderTreeHex = "0823" +
		"d19683030193e4c6a70407e4c6b2a4730000040e" +
		"93b1a5730195ed91c1b2a5730200d0"
)

var (
	curvePoolTree  = mustContractTree(curvePoolTreeHex)
	curveOrderTree = mustContractTree(curveOrderTreeHex)
)

// curve order action codes, stored in R6
const (
	curveBuy  int32 = 1
	curveSell int32 = 2
)

// curve sell fee in percent, kept by the pool
var curveSellFeePct = decimal.RequireFromString("1")

// CurveParams describes one action against a linear bonding curve:
// the price of token number n is BasePrice + Slope*n nanoERG, so a
// range of tokens costs the sum of that series.
//
// "launch" mints a fresh supply into a new curve pool box; the token
// id becomes the id of the transaction's first input box. "buy" and
// "sell" are orders against an existing pool, identified by TokenID.
type CurveParams struct {
	Action string `json:"action"` // launch, buy, sell
	Amount int64  `json:"amount"` // token count to mint, buy or sell

	BasePrice int64 `json:"basePrice"` // nanoERG for the first token
	Slope     int64 `json:"slope"`     // nanoERG added per token sold
	Sold      int64 `json:"sold"`      // tokens the curve has sold so far

	TokenID       ergo.TokenID `json:"tokenId,omitempty"` // empty for launch
	TokenName     string       `json:"tokenName,omitempty"`
	TokenDesc     string       `json:"tokenDesc,omitempty"`
	TokenDecimals int          `json:"tokenDecimals"`
}

func (p *CurveParams) validate() error {
	switch p.Action {
	case "launch":
		if p.TokenName == "" {
			return forge.NewErr(forge.BadRequest, "curve launch needs a token name")
		}
	case "buy", "sell":
		if _, err := p.TokenID.Bytes(); err != nil {
			return forge.NewErr(forge.BadRequest, "%v", err)
		}
	default:
		return forge.NewErr(forge.BadRequest, "curve action %q", p.Action)
	}
	if p.Amount <= 0 {
		return forge.NewErr(forge.BadRequest, "curve amount %d is not positive", p.Amount)
	}
	if p.BasePrice <= 0 || p.Slope < 0 {
		return forge.NewErr(forge.BadRequest, "curve shape %d+%dn is not positive", p.BasePrice, p.Slope)
	}
	if p.Sold < 0 {
		return forge.NewErr(forge.BadRequest, "curve sold count %d is negative", p.Sold)
	}
	if p.Action == "sell" && p.Amount > p.Sold {
		return forge.NewErr(forge.BadRequest, "selling %d but the curve has only sold %d", p.Amount, p.Sold)
	}
	return nil
}

// rangeCost is the nanoERG cost of the tokens numbered [from, from+n):
// n*base + slope*(sum of token numbers in the range).
func rangeCost(base, slope, from, n int64) int64 {
	numbers := n*from + n*(n-1)/2
	return n*base + slope*numbers
}

// cost prices the order: buys walk the curve up from Sold, sells walk
// it down and give up the pool's sell fee.
func (p *CurveParams) cost() (nanoErg, fee int64) {
	switch p.Action {
	case "sell":
		gross := rangeCost(p.BasePrice, p.Slope, p.Sold-p.Amount, p.Amount)
		fee = decimal.NewFromInt(gross).Mul(curveSellFeePct).Div(hundred).Ceil().IntPart()
		return gross - fee, fee
	default: // buy; launch has no curve cost
		return rangeCost(p.BasePrice, p.Slope, p.Sold, p.Amount), 0
	}
}

// launchValue is the ERG a fresh curve pool box carries: enough to
// stay above the minimum through its first few reshapes.
const launchValue = 4 * ergo.SafeMinBoxValue

type curveAdapter struct{}

func NewCurve() forge.Adapter {
	return curveAdapter{}
}

func (curveAdapter) Name() string { return "curve" }

func (curveAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p CurveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	res := &forge.PricingResult{Protocol: "curve", Action: p.Action}
	switch p.Action {
	case "launch":
		res.Pay = []forge.DisplayAmount{ergAmount(launchValue)}
		res.Receive = []forge.DisplayAmount{{Asset: p.TokenName, Amount: ergo.TokenValue(p.Amount, p.TokenDecimals), Raw: p.Amount}}
		res.Price = ergo.ErgAmount(p.BasePrice)
		res.Notes = []string{"token id becomes the first input's box id"}
	case "buy":
		cost, _ := p.cost()
		res.Pay = []forge.DisplayAmount{ergAmount(cost)}
		res.Receive = []forge.DisplayAmount{tokenAmount("token", p.TokenID, p.Amount, p.TokenDecimals)}
		res.Fees = []forge.DisplayAmount{ergAmount(orderValue)}
		res.Price = ergo.ErgAmount(cost).Div(ergo.TokenValue(p.Amount, p.TokenDecimals))
	case "sell":
		proceeds, fee := p.cost()
		res.Pay = []forge.DisplayAmount{tokenAmount("token", p.TokenID, p.Amount, p.TokenDecimals)}
		res.Receive = []forge.DisplayAmount{ergAmount(proceeds)}
		res.Fees = []forge.DisplayAmount{ergAmount(fee), ergAmount(orderValue)}
		res.Price = ergo.ErgAmount(proceeds).Div(ergo.TokenValue(p.Amount, p.TokenDecimals))
	}

	// marginal price after the order, for impact display
	after := p.Sold + p.Amount
	if p.Action == "sell" {
		after = p.Sold - p.Amount
	}
	spot := decimal.NewFromInt(p.BasePrice + p.Slope*p.Sold)
	next := decimal.NewFromInt(p.BasePrice + p.Slope*after)
	if !spot.IsZero() && p.Action != "launch" {
		res.PriceImpact = next.Sub(spot).Div(spot).Mul(hundred).Abs().Round(4)
	}
	return res, nil
}

func (curveAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p CurveParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(); err != nil {
		return forge.Need{}, err
	}
	switch p.Action {
	case "launch":
		return forge.ValueNeed(launchValue), nil
	case "buy":
		cost, _ := p.cost()
		return forge.ValueNeed(orderValue + cost), nil
	default: // sell
		return forge.TokenNeed(orderValue, ergo.TokenAmount{TokenID: p.TokenID, Amount: p.Amount}), nil
	}
}

func (curveAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p CurveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	redeemer, err := redeemerConstant(actx)
	if err != nil {
		return nil, err
	}

	if p.Action == "launch" {
		// The whole supply is minted into the pool box. Its registers
		// stay free for the builder to fill with the asset metadata.
		pool := ergo.BoxCandidate{
			Value:          launchValue,
			ErgoTree:       curvePoolTree,
			CreationHeight: actx.Height,
		}
		return &forge.BuildResult{
			Outputs: []ergo.BoxCandidate{pool},
			Mint: &forge.MintDecl{
				OutputIndex: 0,
				Name:        p.TokenName,
				Description: p.TokenDesc,
				Decimals:    p.TokenDecimals,
				Amount:      p.Amount,
			},
			Description: "curve: launch " + p.TokenName,
		}, nil
	}

	tokenRef, err := tokenIDConstant(p.TokenID)
	if err != nil {
		return nil, err
	}
	code := curveBuy
	order := ergo.BoxCandidate{
		ErgoTree:       curveOrderTree,
		CreationHeight: actx.Height,
	}
	if p.Action == "buy" {
		cost, _ := p.cost()
		order.Value = orderValue + cost
	} else {
		code = curveSell
		order.Value = orderValue
		order.Assets = []ergo.TokenAmount{{TokenID: p.TokenID, Amount: p.Amount}}
	}
	order.Registers = ergo.Registers{
		ergo.R4: redeemer,
		ergo.R5: tokenRef,
		ergo.R6: ergo.IntConstant(code),
	}
	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{order},
		Description: "curve: " + p.Action + " " + ergo.FormatTokenAmount(p.Amount, p.TokenDecimals),
	}, nil
}
