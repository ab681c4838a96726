package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// bond-issue holds the issuer's collateral and the listed terms;
// bond-order holds a buyer's payment until a bot pairs it against a
// listed bond.
const (
	bondIssueTreeHex = "0820" +
		"d19683030193e4c6a70505e4c6b2a47300000605" +
		"93b1db6308a7730195ec93c1"
	bondOrderTreeHex = "081e" +
		"d19683020193e4c6a7040ec5b2a473000093c1a7" +
		"92e4c6a7050573019593"
)

var (
	bondIssueTree = mustContractTree(bondIssueTreeHex)
	bondOrderTree = mustContractTree(bondOrderTreeHex)
)

// BondParams describes the bond market's two actions. "issue" lists a
// zero-coupon bond: the issuer locks collateral and offers FaceValue
// nanoERG at MaturityHeight for Price now. "purchase" pays the listed
// price against a live bond box.
type BondParams struct {
	Action string `json:"action"` // issue, purchase

	FaceValue      int64  `json:"faceValue"` // nanoERG repaid at maturity
	Price          int64  `json:"price"`     // nanoERG the bond sells for now
	MaturityHeight uint32 `json:"maturityHeight"`

	// issuer collateral, claimable by the holder on default
	CollateralTokenID ergo.TokenID `json:"collateralTokenId,omitempty"`
	CollateralAmount  int64        `json:"collateralAmount,omitempty"`

	// box id of the listed bond being purchased
	BondBoxID ergo.BoxID `json:"bondBoxId,omitempty"`
}

func (p *BondParams) validate(height uint32) error {
	switch p.Action {
	case "issue":
		if p.CollateralAmount <= 0 {
			return forge.NewErr(forge.BadRequest, "bond collateral amount %d is not positive", p.CollateralAmount)
		}
		if _, err := p.CollateralTokenID.Bytes(); err != nil {
			return forge.NewErr(forge.BadRequest, "%v", err)
		}
	case "purchase":
		if _, err := p.BondBoxID.Bytes(); err != nil {
			return forge.NewErr(forge.BadRequest, "%v", err)
		}
	default:
		return forge.NewErr(forge.BadRequest, "bond action %q (want issue or purchase)", p.Action)
	}
	if p.Price <= 0 {
		return forge.NewErr(forge.BadRequest, "bond price %d is not positive", p.Price)
	}
	if p.FaceValue <= p.Price {
		return forge.NewErr(forge.BadRequest,
			"bond face value %d does not exceed its price %d", p.FaceValue, p.Price)
	}
	if height > 0 && p.MaturityHeight <= height {
		return forge.NewErr(forge.BadRequest,
			"maturity height %d is not above the current height %d", p.MaturityHeight, height)
	}
	return nil
}

// yieldPct is the bond's total return in percent.
func (p *BondParams) yieldPct() decimal.Decimal {
	return decimal.NewFromInt(p.FaceValue - p.Price).
		Div(decimal.NewFromInt(p.Price)).Mul(hundred).Round(4)
}

type bondMarketAdapter struct{}

func NewBondMarket() forge.Adapter {
	return bondMarketAdapter{}
}

func (bondMarketAdapter) Name() string { return "bondmarket" }

func (bondMarketAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p BondParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(actx.Height); err != nil {
		return nil, err
	}

	res := &forge.PricingResult{Protocol: "bondmarket", Action: p.Action}
	if p.Action == "issue" {
		res.Pay = []forge.DisplayAmount{tokenAmount("collateral", p.CollateralTokenID, p.CollateralAmount, 0)}
		res.Receive = []forge.DisplayAmount{ergAmount(p.Price)}
		res.Notes = []string{
			"owes " + ergo.FormatErg(p.FaceValue) + " ERG at height " + ergo.FormatTokenAmount(int64(p.MaturityHeight), 0),
		}
	} else {
		res.Pay = []forge.DisplayAmount{ergAmount(p.Price)}
		res.Receive = []forge.DisplayAmount{ergAmount(p.FaceValue)}
		res.Fees = []forge.DisplayAmount{ergAmount(orderValue)}
		res.Notes = []string{"yield " + p.yieldPct().String() + "% at maturity, collateral claimable on default"}
	}
	res.Price = ergo.ErgAmount(p.Price)
	return res, nil
}

func (bondMarketAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p BondParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(actx.Height); err != nil {
		return forge.Need{}, err
	}
	if p.Action == "issue" {
		return forge.TokenNeed(ergo.SafeMinBoxValue,
			ergo.TokenAmount{TokenID: p.CollateralTokenID, Amount: p.CollateralAmount}), nil
	}
	return forge.ValueNeed(orderValue + p.Price), nil
}

func (bondMarketAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p BondParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(actx.Height); err != nil {
		return nil, err
	}
	redeemer, err := redeemerConstant(actx)
	if err != nil {
		return nil, err
	}

	var out ergo.BoxCandidate
	var desc string
	if p.Action == "issue" {
		out = ergo.BoxCandidate{
			Value:          ergo.SafeMinBoxValue,
			ErgoTree:       bondIssueTree,
			CreationHeight: actx.Height,
			Assets:         []ergo.TokenAmount{{TokenID: p.CollateralTokenID, Amount: p.CollateralAmount}},
			Registers: ergo.Registers{
				ergo.R4: redeemer,
				ergo.R5: ergo.LongConstant(p.FaceValue),
				ergo.R6: ergo.LongConstant(p.Price),
				ergo.R7: ergo.IntConstant(int32(p.MaturityHeight)),
			},
		}
		desc = "bond: issue " + ergo.FormatErg(p.FaceValue) + " ERG face value for " + ergo.FormatErg(p.Price) + " ERG"
	} else {
		bondRef, err := boxIDConstant(p.BondBoxID)
		if err != nil {
			return nil, err
		}
		out = ergo.BoxCandidate{
			Value:          orderValue + p.Price,
			ErgoTree:       bondOrderTree,
			CreationHeight: actx.Height,
			Registers: ergo.Registers{
				ergo.R4: redeemer,
				ergo.R5: bondRef,
			},
		}
		desc = "bond: purchase for " + ergo.FormatErg(p.Price) + " ERG (yield " + p.yieldPct().String() + "%)"
	}
	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{out},
		Description: desc,
	}, nil
}
