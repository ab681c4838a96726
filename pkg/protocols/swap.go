package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// The swap-order contract releases the order funds to whoever pairs
// them against the pool at or above the minimum output in R6, or back
// to the redeemer key in R4 on refund.
const swapOrderTreeHex = "082d" +
	"d1968304019683020193c2b2a4730000d0730193e4c6b2a47302000404e4c6" +
	"a7040493b1a5730395ed92c1b2a5"

var swapOrderTree = mustContractTree(swapOrderTreeHex)

// constant-product pool fee: output is computed on feeNum/feeDenom of
// the paid amount, the remainder stays in the pool.
const (
	swapFeeDenom      = 1000
	defaultSwapFeeNum = 997
)

// defaultSlippagePct widens the quoted output into the on-chain
// minimum when the caller gives no tolerance of their own.
var defaultSlippagePct = decimal.NewFromInt(1)

// SwapParams describes one order against a constant-product pool. The
// pool reserves are the caller's last view of the pool box; the order
// itself only pins MinOutput, so a pool moved by other trades still
// executes as long as it clears that floor.
type SwapParams struct {
	Action        string       `json:"action"` // "buy" tokens for ERG, "sell" tokens for ERG
	TokenID       ergo.TokenID `json:"tokenId"`
	TokenDecimals int          `json:"tokenDecimals"`
	// nanoERG paid when buying, token amount paid when selling
	Amount       int64  `json:"amount"`
	ReserveErg   int64  `json:"reserveErg"`
	ReserveToken int64  `json:"reserveToken"`
	PoolFeeNum   int64  `json:"poolFeeNum,omitempty"`
	MinOutput    int64  `json:"minOutput,omitempty"`   // 0: quote minus slippage
	SlippagePct  string `json:"slippagePct,omitempty"` // decimal percent
}

func (p *SwapParams) validate() error {
	if p.Action != "buy" && p.Action != "sell" {
		return forge.NewErr(forge.BadRequest, "swap action %q (want buy or sell)", p.Action)
	}
	if _, err := p.TokenID.Bytes(); err != nil {
		return forge.NewErr(forge.BadRequest, "%v", err)
	}
	if p.Amount <= 0 {
		return forge.NewErr(forge.BadRequest, "swap amount %d is not positive", p.Amount)
	}
	if p.ReserveErg <= 0 || p.ReserveToken <= 0 {
		return forge.NewErr(forge.BadRequest, "pool reserves %d/%d are not positive", p.ReserveErg, p.ReserveToken)
	}
	if p.PoolFeeNum == 0 {
		p.PoolFeeNum = defaultSwapFeeNum
	}
	if p.PoolFeeNum < 0 || p.PoolFeeNum > swapFeeDenom {
		return forge.NewErr(forge.BadRequest, "pool fee numerator %d out of range", p.PoolFeeNum)
	}
	return nil
}

// amountOut is the constant-product output for amountIn against the
// given reserves, pool fee applied to the input side.
func amountOut(amountIn, reserveIn, reserveOut, feeNum int64) int64 {
	in := decimal.NewFromInt(amountIn).Mul(decimal.NewFromInt(feeNum))
	num := in.Mul(decimal.NewFromInt(reserveOut))
	den := decimal.NewFromInt(reserveIn).Mul(decimal.NewFromInt(swapFeeDenom)).Add(in)
	return num.Div(den).Floor().IntPart()
}

// minOutput applies the slippage tolerance to a quoted output.
func (p *SwapParams) minOutput(quoted int64) (int64, error) {
	if p.MinOutput > 0 {
		return p.MinOutput, nil
	}
	pct := defaultSlippagePct
	if p.SlippagePct != "" {
		var err error
		pct, err = decimal.NewFromString(p.SlippagePct)
		if err != nil || pct.IsNegative() {
			return 0, forge.NewErr(forge.BadRequest, "bad slippage percent %q", p.SlippagePct)
		}
	}
	keep := decimal.NewFromInt(100).Sub(pct).Div(decimal.NewFromInt(100))
	min := decimal.NewFromInt(quoted).Mul(keep).Floor().IntPart()
	if min <= 0 {
		return 0, forge.NewErr(forge.BadRequest, "slippage of %s%% leaves no minimum output", pct)
	}
	return min, nil
}

// orderValue is the ERG an order box carries on top of any payment:
// one minimum box for the box itself plus one for the redemption box
// the executing bot creates.
const orderValue = 2 * ergo.SafeMinBoxValue

type swapAdapter struct{}

func NewSwap() forge.Adapter {
	return swapAdapter{}
}

func (swapAdapter) Name() string { return "swap" }

func (swapAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p SwapParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	var out int64
	res := &forge.PricingResult{Protocol: "swap", Action: p.Action}
	switch p.Action {
	case "buy":
		out = amountOut(p.Amount, p.ReserveErg, p.ReserveToken, p.PoolFeeNum)
		res.Pay = []forge.DisplayAmount{ergAmount(p.Amount)}
		res.Receive = []forge.DisplayAmount{tokenAmount("token", p.TokenID, out, p.TokenDecimals)}
	case "sell":
		out = amountOut(p.Amount, p.ReserveToken, p.ReserveErg, p.PoolFeeNum)
		res.Pay = []forge.DisplayAmount{tokenAmount("token", p.TokenID, p.Amount, p.TokenDecimals)}
		res.Receive = []forge.DisplayAmount{ergAmount(out)}
	}
	if out <= 0 {
		return nil, forge.NewErr(forge.BadRequest, "amount %d is too small to clear the pool fee", p.Amount)
	}
	res.Fees = []forge.DisplayAmount{ergAmount(orderValue)}

	// spot and effective price, both in ERG per whole token
	spot := priceErgPerToken(p.ReserveErg, p.ReserveToken, p.TokenDecimals)
	var effective decimal.Decimal
	if p.Action == "buy" {
		effective = ergo.ErgAmount(p.Amount).Div(ergo.TokenValue(out, p.TokenDecimals))
	} else {
		effective = ergo.ErgAmount(out).Div(ergo.TokenValue(p.Amount, p.TokenDecimals))
	}
	res.Price = effective
	if !spot.IsZero() {
		res.PriceImpact = effective.Sub(spot).Div(spot).Mul(decimal.NewFromInt(100)).Abs().Round(4)
	}
	return res, nil
}

func priceErgPerToken(reserveErg, reserveToken int64, decimals int) decimal.Decimal {
	tokens := ergo.TokenValue(reserveToken, decimals)
	if tokens.IsZero() {
		return decimal.Zero
	}
	return ergo.ErgAmount(reserveErg).Div(tokens)
}

func (swapAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p SwapParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(); err != nil {
		return forge.Need{}, err
	}
	if p.Action == "buy" {
		return forge.ValueNeed(orderValue + p.Amount), nil
	}
	return forge.TokenNeed(orderValue, ergo.TokenAmount{TokenID: p.TokenID, Amount: p.Amount}), nil
}

func (a swapAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p SwapParams
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
	tokenRef, err := tokenIDConstant(p.TokenID)
	if err != nil {
		return nil, err
	}

	var quoted int64
	order := ergo.BoxCandidate{
		ErgoTree:       swapOrderTree,
		CreationHeight: actx.Height,
	}
	if p.Action == "buy" {
		quoted = amountOut(p.Amount, p.ReserveErg, p.ReserveToken, p.PoolFeeNum)
		order.Value = orderValue + p.Amount
	} else {
		quoted = amountOut(p.Amount, p.ReserveToken, p.ReserveErg, p.PoolFeeNum)
		order.Value = orderValue
		order.Assets = []ergo.TokenAmount{{TokenID: p.TokenID, Amount: p.Amount}}
	}
	min, err := p.minOutput(quoted)
	if err != nil {
		return nil, err
	}
	order.Registers = ergo.Registers{
		ergo.R4: redeemer,
		ergo.R5: tokenRef,
		ergo.R6: ergo.LongConstant(min),
	}

	desc := "swap: sell " + ergo.FormatTokenAmount(p.Amount, p.TokenDecimals) + " of " + string(p.TokenID)
	if p.Action == "buy" {
		desc = "swap: buy " + string(p.TokenID) + " for " + ergo.FormatErg(p.Amount) + " ERG"
	}
	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{order},
		Description: desc,
	}, nil
}
