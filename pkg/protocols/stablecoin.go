package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// The bank-order contract holds a mint or redeem order until a bank
// bot pairs it with the bank box; the oracle box rides along as a data
// input so the contract can check the rate the order was priced at.
const bankOrderTreeHex = "082a" +
	"d196830401938cb2db6308b2a47300007301000193" +
	"e4c6a70407ec93b1a573029593c1b2a5730300d801"

var bankOrderTree = mustContractTree(bankOrderTreeHex)

// bank order action codes, stored in R6
const (
	bankMintStable    int32 = 1
	bankRedeemStable  int32 = 2
	bankMintReserve   int32 = 3
	bankRedeemReserve int32 = 4
)

// bank fee and reserve-ratio policy, in percent
var (
	bankFeePct    = decimal.RequireFromString("2")
	minReservePct = decimal.NewFromInt(400)
	maxReservePct = decimal.NewFromInt(800)
	hundred       = decimal.NewFromInt(100)
)

// StablecoinParams describes an order against the oracle-pegged bank.
// The bank and oracle state are the caller's last view; the order
// records the oracle box it was priced against as a data input.
type StablecoinParams struct {
	Action string `json:"action"` // mint-stable, redeem-stable, mint-reserve, redeem-reserve
	Amount int64  `json:"amount"` // stable or reserve token count

	StableTokenID   ergo.TokenID `json:"stableTokenId"`
	ReserveTokenID  ergo.TokenID `json:"reserveTokenId"`
	StableDecimals  int          `json:"stableDecimals"`
	ReserveDecimals int          `json:"reserveDecimals"`

	// bank box state
	BankErg            int64 `json:"bankErg"`
	CirculatingStable  int64 `json:"circulatingStable"`
	CirculatingReserve int64 `json:"circulatingReserve"`

	// oracle reading: nanoERG per smallest stable unit
	OracleRate  int64      `json:"oracleRate"`
	OracleBoxID ergo.BoxID `json:"oracleBoxId"`
}

func (p *StablecoinParams) actionCode() (int32, bool) {
	switch p.Action {
	case "mint-stable":
		return bankMintStable, true
	case "redeem-stable":
		return bankRedeemStable, true
	case "mint-reserve":
		return bankMintReserve, true
	case "redeem-reserve":
		return bankRedeemReserve, true
	}
	return 0, false
}

func (p *StablecoinParams) validate() error {
	if _, ok := p.actionCode(); !ok {
		return forge.NewErr(forge.BadRequest, "bank action %q", p.Action)
	}
	if p.Amount <= 0 {
		return forge.NewErr(forge.BadRequest, "bank order amount %d is not positive", p.Amount)
	}
	if p.OracleRate <= 0 {
		return forge.NewErr(forge.BadRequest, "oracle rate %d is not positive", p.OracleRate)
	}
	if p.BankErg < 0 || p.CirculatingStable < 0 || p.CirculatingReserve < 0 {
		return forge.NewErr(forge.BadRequest, "bank state is negative")
	}
	if _, err := p.OracleBoxID.Bytes(); err != nil {
		return forge.NewErr(forge.BadRequest, "%v", err)
	}
	if _, err := p.StableTokenID.Bytes(); err != nil {
		return forge.NewErr(forge.BadRequest, "%v", err)
	}
	if _, err := p.ReserveTokenID.Bytes(); err != nil {
		return forge.NewErr(forge.BadRequest, "%v", err)
	}
	return nil
}

// stableRate is the redemption rate in nanoERG per stable unit: the
// oracle rate, unless the bank cannot cover it, in which case every
// stable unit is worth its share of the base reserve.
func (p *StablecoinParams) stableRate() int64 {
	if p.CirculatingStable == 0 {
		return p.OracleRate
	}
	backed := p.BankErg / p.CirculatingStable
	if backed < p.OracleRate {
		return backed
	}
	return p.OracleRate
}

// liabilities is the nanoERG the bank owes all stable holders.
func (p *StablecoinParams) liabilities() int64 {
	return p.CirculatingStable * p.stableRate()
}

// reservePrice is the nanoERG value of one reserve token: its share of
// the bank equity, floored at the minimum box value per token so a
// drained bank can still sell reserve tokens.
func (p *StablecoinParams) reservePrice() int64 {
	equity := p.BankErg - p.liabilities()
	if p.CirculatingReserve > 0 && equity > 0 {
		return equity / p.CirculatingReserve
	}
	return ergo.SafeMinBoxValue
}

// reserveRatioAfter is the bank's reserve ratio in percent after
// applying a base and stable supply delta.
func (p *StablecoinParams) reserveRatioAfter(ergDelta, stableDelta int64) decimal.Decimal {
	stable := p.CirculatingStable + stableDelta
	if stable <= 0 {
		return maxReservePct // no liabilities: ratio is unbounded
	}
	liab := decimal.NewFromInt(stable).Mul(decimal.NewFromInt(p.OracleRate))
	return decimal.NewFromInt(p.BankErg + ergDelta).Div(liab).Mul(hundred)
}

func bankFee(base int64) int64 {
	return decimal.NewFromInt(base).Mul(bankFeePct).Div(hundred).Ceil().IntPart()
}

// price returns what the order pays and receives in nanoERG terms:
// base cost before fee, the fee, and whether ERG flows into the bank.
func (p *StablecoinParams) price() (base, fee int64, inflow bool, err error) {
	switch p.Action {
	case "mint-stable":
		base = p.Amount * p.stableRate()
		if ratio := p.reserveRatioAfter(base, p.Amount); ratio.LessThan(minReservePct) {
			return 0, 0, false, forge.NewErr(forge.BadRequest,
				"minting %d stable drops the reserve ratio to %s%%, floor is %s%%", p.Amount, ratio.Round(1), minReservePct)
		}
		return base, bankFee(base), true, nil
	case "redeem-stable":
		if p.Amount > p.CirculatingStable {
			return 0, 0, false, forge.NewErr(forge.BadRequest,
				"redeeming %d stable but only %d are circulating", p.Amount, p.CirculatingStable)
		}
		base = p.Amount * p.stableRate()
		return base, bankFee(base), false, nil
	case "mint-reserve":
		base = p.Amount * p.reservePrice()
		if ratio := p.reserveRatioAfter(base, 0); ratio.GreaterThan(maxReservePct) && p.CirculatingStable > 0 {
			return 0, 0, false, forge.NewErr(forge.BadRequest,
				"minting %d reserve lifts the reserve ratio to %s%%, ceiling is %s%%", p.Amount, ratio.Round(1), maxReservePct)
		}
		return base, bankFee(base), true, nil
	default: // redeem-reserve
		if p.Amount > p.CirculatingReserve {
			return 0, 0, false, forge.NewErr(forge.BadRequest,
				"redeeming %d reserve but only %d are circulating", p.Amount, p.CirculatingReserve)
		}
		base = p.Amount * p.reservePrice()
		if ratio := p.reserveRatioAfter(-base, 0); ratio.LessThan(minReservePct) && p.CirculatingStable > 0 {
			return 0, 0, false, forge.NewErr(forge.BadRequest,
				"redeeming %d reserve drops the reserve ratio to %s%%, floor is %s%%", p.Amount, ratio.Round(1), minReservePct)
		}
		return base, bankFee(base), false, nil
	}
}

func (p *StablecoinParams) orderToken() (ergo.TokenID, int) {
	if p.Action == "redeem-stable" {
		return p.StableTokenID, p.StableDecimals
	}
	return p.ReserveTokenID, p.ReserveDecimals
}

type stablecoinAdapter struct{}

func NewStablecoin() forge.Adapter {
	return stablecoinAdapter{}
}

func (stablecoinAdapter) Name() string { return "stablecoin" }

func (stablecoinAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p StablecoinParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	base, fee, inflow, err := p.price()
	if err != nil {
		return nil, err
	}

	res := &forge.PricingResult{Protocol: "stablecoin", Action: p.Action}
	tokID, tokDec := p.orderToken()
	name := "reserve"
	if p.Action == "mint-stable" || p.Action == "redeem-stable" {
		name = "stable"
	}
	if inflow {
		res.Pay = []forge.DisplayAmount{ergAmount(base + fee)}
		res.Receive = []forge.DisplayAmount{tokenAmount(name, tokID, p.Amount, tokDec)}
	} else {
		res.Pay = []forge.DisplayAmount{tokenAmount(name, tokID, p.Amount, tokDec)}
		res.Receive = []forge.DisplayAmount{ergAmount(base - fee)}
	}
	res.Fees = []forge.DisplayAmount{ergAmount(fee), ergAmount(orderValue)}
	res.Price = ergo.ErgAmount(base).Div(ergo.TokenValue(p.Amount, tokDec))
	res.Notes = []string{
		"reserve ratio after: " + p.ratioNote(inflow, base),
	}
	return res, nil
}

func (p *StablecoinParams) ratioNote(inflow bool, base int64) string {
	delta := base
	if !inflow {
		delta = -base
	}
	stableDelta := int64(0)
	switch p.Action {
	case "mint-stable":
		stableDelta = p.Amount
	case "redeem-stable":
		stableDelta = -p.Amount
	}
	return p.reserveRatioAfter(delta, stableDelta).Round(1).String() + "%"
}

func (stablecoinAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p StablecoinParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(); err != nil {
		return forge.Need{}, err
	}
	base, fee, inflow, err := p.price()
	if err != nil {
		return forge.Need{}, err
	}
	if inflow {
		return forge.ValueNeed(orderValue + base + fee), nil
	}
	tokID, _ := p.orderToken()
	return forge.TokenNeed(orderValue, ergo.TokenAmount{TokenID: tokID, Amount: p.Amount}), nil
}

func (stablecoinAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p StablecoinParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	base, fee, inflow, err := p.price()
	if err != nil {
		return nil, err
	}
	redeemer, err := redeemerConstant(actx)
	if err != nil {
		return nil, err
	}
	code, _ := p.actionCode()

	order := ergo.BoxCandidate{
		ErgoTree:       bankOrderTree,
		CreationHeight: actx.Height,
		Registers: ergo.Registers{
			ergo.R4: redeemer,
			ergo.R5: ergo.LongConstant(p.Amount),
			ergo.R6: ergo.IntConstant(code),
		},
	}
	if inflow {
		order.Value = orderValue + base + fee
	} else {
		order.Value = orderValue
		tokID, _ := p.orderToken()
		order.Assets = []ergo.TokenAmount{{TokenID: tokID, Amount: p.Amount}}
	}

	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{order},
		DataInputs:  []ergo.DataInput{{BoxID: p.OracleBoxID}},
		Description: "bank: " + p.Action + " " + ergo.FormatTokenAmount(p.Amount, 0),
	}, nil
}
