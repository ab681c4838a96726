package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// pool-order holds a deposit or withdrawal until a pool bot pairs it
// with the shared pool box, paying out share tokens or ERG at the
// pool's exchange rate.
const poolOrderTreeHex = "081f" +
	"d19683030193e4c6a70407938cb2db6308b2a473" +
	"0000730100019593c1b2a5"

var poolOrderTree = mustContractTree(poolOrderTreeHex)

// pool order action codes, stored in R6
const (
	poolDeposit  int32 = 1
	poolWithdraw int32 = 2
)

// withdrawal fee in percent, kept by the pool for remaining lenders
var poolExitFeePct = decimal.RequireFromString("0.5")

// LendPoolParams describes an order against a pooled lending market.
// A deposit buys share tokens at the pool's current exchange rate; a
// withdrawal sells them back. The rate is PoolErg/PoolShares and grows
// as borrowers pay interest into the pool.
type LendPoolParams struct {
	Action string `json:"action"` // deposit, withdraw
	// nanoERG to deposit, or share tokens to redeem
	Amount int64 `json:"amount"`

	ShareTokenID  ergo.TokenID `json:"shareTokenId"`
	ShareDecimals int          `json:"shareDecimals"`
	PoolErg       int64        `json:"poolErg"`    // ERG the pool holds plus what borrowers owe
	PoolShares    int64        `json:"poolShares"` // share tokens in circulation
}

func (p *LendPoolParams) validate() error {
	if p.Action != "deposit" && p.Action != "withdraw" {
		return forge.NewErr(forge.BadRequest, "pool action %q (want deposit or withdraw)", p.Action)
	}
	if p.Amount <= 0 {
		return forge.NewErr(forge.BadRequest, "pool order amount %d is not positive", p.Amount)
	}
	if _, err := p.ShareTokenID.Bytes(); err != nil {
		return forge.NewErr(forge.BadRequest, "%v", err)
	}
	if p.PoolErg <= 0 || p.PoolShares <= 0 {
		return forge.NewErr(forge.BadRequest, "pool state %d/%d is not positive", p.PoolErg, p.PoolShares)
	}
	if p.Action == "withdraw" && p.Amount > p.PoolShares {
		return forge.NewErr(forge.BadRequest, "redeeming %d shares but only %d circulate", p.Amount, p.PoolShares)
	}
	return nil
}

// sharesOut is how many share tokens a deposit buys at the current
// exchange rate, rounded down in the pool's favor.
func (p *LendPoolParams) sharesOut() int64 {
	return decimal.NewFromInt(p.Amount).
		Mul(decimal.NewFromInt(p.PoolShares)).
		Div(decimal.NewFromInt(p.PoolErg)).Floor().IntPart()
}

// ergOut is what a withdrawal of shares pays after the exit fee.
func (p *LendPoolParams) ergOut() (nanoErg, fee int64) {
	gross := decimal.NewFromInt(p.Amount).
		Mul(decimal.NewFromInt(p.PoolErg)).
		Div(decimal.NewFromInt(p.PoolShares)).Floor().IntPart()
	fee = decimal.NewFromInt(gross).Mul(poolExitFeePct).Div(hundred).Ceil().IntPart()
	return gross - fee, fee
}

type lendPoolAdapter struct{}

func NewLendPool() forge.Adapter {
	return lendPoolAdapter{}
}

func (lendPoolAdapter) Name() string { return "lendpool" }

func (lendPoolAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p LendPoolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	res := &forge.PricingResult{Protocol: "lendpool", Action: p.Action}
	rate := decimal.NewFromInt(p.PoolErg).Div(decimal.NewFromInt(p.PoolShares))
	res.Price = rate
	if p.Action == "deposit" {
		shares := p.sharesOut()
		if shares <= 0 {
			return nil, forge.NewErr(forge.BadRequest, "deposit of %d nanoERG buys no shares", p.Amount)
		}
		res.Pay = []forge.DisplayAmount{ergAmount(p.Amount)}
		res.Receive = []forge.DisplayAmount{tokenAmount("share", p.ShareTokenID, shares, p.ShareDecimals)}
		res.Fees = []forge.DisplayAmount{ergAmount(orderValue)}
	} else {
		out, fee := p.ergOut()
		if out <= 0 {
			return nil, forge.NewErr(forge.BadRequest, "redeeming %d shares pays nothing after the exit fee", p.Amount)
		}
		res.Pay = []forge.DisplayAmount{tokenAmount("share", p.ShareTokenID, p.Amount, p.ShareDecimals)}
		res.Receive = []forge.DisplayAmount{ergAmount(out)}
		res.Fees = []forge.DisplayAmount{ergAmount(fee), ergAmount(orderValue)}
	}
	return res, nil
}

func (lendPoolAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p LendPoolParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(); err != nil {
		return forge.Need{}, err
	}
	if p.Action == "deposit" {
		return forge.ValueNeed(orderValue + p.Amount), nil
	}
	return forge.TokenNeed(orderValue, ergo.TokenAmount{TokenID: p.ShareTokenID, Amount: p.Amount}), nil
}

func (lendPoolAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p LendPoolParams
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
	shareRef, err := tokenIDConstant(p.ShareTokenID)
	if err != nil {
		return nil, err
	}

	order := ergo.BoxCandidate{
		ErgoTree:       poolOrderTree,
		CreationHeight: actx.Height,
	}
	code := poolDeposit
	if p.Action == "deposit" {
		order.Value = orderValue + p.Amount
	} else {
		code = poolWithdraw
		order.Value = orderValue
		order.Assets = []ergo.TokenAmount{{TokenID: p.ShareTokenID, Amount: p.Amount}}
	}
	order.Registers = ergo.Registers{
		ergo.R4: redeemer,
		ergo.R5: shareRef,
		ergo.R6: ergo.IntConstant(code),
	}
	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{order},
		Description: "lendpool: " + p.Action,
	}, nil
}
