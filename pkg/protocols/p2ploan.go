package protocols

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// Loan contracts. loan-offer holds the published terms plus the
// service fee, loan-fund holds the principal against those terms, and
// loan-repay holds a repayment until the protocol releases the
// collateral back to the borrower.
const (
	loanOfferTreeHex = "081f" +
		"d19683030193e4c6a70405e4c6b2a47300000405" +
		"93b1a5730195ec93c1a573"
	loanFundTreeHex = "0820" +
		"d19683030193c1a7e4c6b2a4730000040593e4c6" +
		"a7050ec5b2a4730100ed93b1"
	loanRepayTreeHex = "081d" +
		"d19683020193e4c6a7050ec5b2a473000093c1a7" +
		"9a72007201d0730195"
)

var (
	loanOfferTree = mustContractTree(loanOfferTreeHex)
	loanFundTree  = mustContractTree(loanFundTreeHex)
	loanRepayTree = mustContractTree(loanRepayTreeHex)
)

// loanServiceFee is the flat nanoERG fee an offer box carries for the
// matching service.
const loanServiceFee = 10_000_000

// P2PLoanParams describes one step of a collateralized peer-to-peer
// loan. "lend" is the plan action: it opens an offer and, once the
// offer box is on-chain, funds it. "repay" is the borrower's side.
type P2PLoanParams struct {
	Action string `json:"action"` // lend (plan), offer, fund, repay

	Principal        int64  `json:"principal"` // nanoERG lent
	InterestPermille int64  `json:"interestPermille"`
	DurationBlocks   uint32 `json:"durationBlocks"`

	// collateral the borrower must post, in a token
	CollateralTokenID ergo.TokenID `json:"collateralTokenId"`
	CollateralAmount  int64        `json:"collateralAmount"`

	// box id of the loan being repaid
	LoanBoxID ergo.BoxID `json:"loanBoxId,omitempty"`
}

func (p *P2PLoanParams) validate() error {
	switch p.Action {
	case "lend", "offer", "fund", "repay":
	default:
		return forge.NewErr(forge.BadRequest, "loan action %q", p.Action)
	}
	if p.Principal <= 0 {
		return forge.NewErr(forge.BadRequest, "loan principal %d is not positive", p.Principal)
	}
	if p.InterestPermille < 0 {
		return forge.NewErr(forge.BadRequest, "loan interest %d‰ is negative", p.InterestPermille)
	}
	if p.DurationBlocks == 0 {
		return forge.NewErr(forge.BadRequest, "loan duration is zero blocks")
	}
	if _, err := p.CollateralTokenID.Bytes(); err != nil {
		return forge.NewErr(forge.BadRequest, "%v", err)
	}
	if p.CollateralAmount <= 0 {
		return forge.NewErr(forge.BadRequest, "collateral amount %d is not positive", p.CollateralAmount)
	}
	if p.Action == "repay" {
		if _, err := p.LoanBoxID.Bytes(); err != nil {
			return forge.NewErr(forge.BadRequest, "%v", err)
		}
	}
	return nil
}

// interest is the nanoERG owed on top of the principal at maturity.
func (p *P2PLoanParams) interest() int64 {
	return decimal.NewFromInt(p.Principal).
		Mul(decimal.NewFromInt(p.InterestPermille)).
		Div(decimal.NewFromInt(1000)).Ceil().IntPart()
}

type p2pLoanAdapter struct{}

// NewP2PLoan returns the peer-to-peer loan adapter. It also implements
// forge.Planner: the "lend" action spans two dependent transactions.
func NewP2PLoan() forge.Adapter {
	return p2pLoanAdapter{}
}

func (p2pLoanAdapter) Name() string { return "p2ploan" }

func (p2pLoanAdapter) Quote(actx forge.AdapterContext, params json.RawMessage) (*forge.PricingResult, error) {
	var p P2PLoanParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	res := &forge.PricingResult{Protocol: "p2ploan", Action: p.Action}
	repaid := p.Principal + p.interest()
	switch p.Action {
	case "lend", "offer", "fund":
		res.Pay = []forge.DisplayAmount{ergAmount(p.Principal)}
		res.Receive = []forge.DisplayAmount{ergAmount(repaid)}
		res.Fees = []forge.DisplayAmount{ergAmount(loanServiceFee)}
		res.Notes = []string{
			"repayment due within " + decimal.NewFromInt(int64(p.DurationBlocks)).String() + " blocks of funding",
			"collateral claimable on default",
		}
	case "repay":
		res.Pay = []forge.DisplayAmount{ergAmount(repaid)}
		res.Receive = []forge.DisplayAmount{tokenAmount("collateral", p.CollateralTokenID, p.CollateralAmount, 0)}
	}
	if p.Principal > 0 {
		res.Price = decimal.NewFromInt(repaid).Div(decimal.NewFromInt(p.Principal))
	}
	return res, nil
}

// Plan splits the lender's "lend" action into the offer and fund
// transactions. The fund step reuses the same terms; it can only be
// built once the offer request reached submitted.
func (p2pLoanAdapter) Plan(actx forge.AdapterContext, params json.RawMessage) ([]forge.PlanStep, error) {
	var p P2PLoanParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Action != "lend" {
		return nil, forge.NewErr(forge.BadRequest, "loan action %q is a single transaction", p.Action)
	}
	step := func(action string) (json.RawMessage, error) {
		q := p
		q.Action = action
		return json.Marshal(&q)
	}
	offer, err := step("offer")
	if err != nil {
		return nil, err
	}
	fund, err := step("fund")
	if err != nil {
		return nil, err
	}
	return []forge.PlanStep{
		{Name: "offer", Params: offer},
		{Name: "fund", Params: fund},
	}, nil
}

func (p2pLoanAdapter) Require(actx forge.AdapterContext, params json.RawMessage) (forge.Need, error) {
	var p P2PLoanParams
	if err := decodeParams(params, &p); err != nil {
		return forge.Need{}, err
	}
	if err := p.validate(); err != nil {
		return forge.Need{}, err
	}
	switch p.Action {
	case "offer":
		return forge.ValueNeed(ergo.SafeMinBoxValue + loanServiceFee), nil
	case "fund":
		return forge.ValueNeed(p.Principal), nil
	case "repay":
		return forge.ValueNeed(p.Principal + p.interest()), nil
	}
	return forge.Need{}, forge.NewErr(forge.BadRequest, "loan action %q is not a single transaction; open a plan", p.Action)
}

func (p2pLoanAdapter) Build(actx forge.AdapterContext, params json.RawMessage, inputs []ergo.Box) (*forge.BuildResult, error) {
	var p P2PLoanParams
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
	collateralRef, err := tokenIDConstant(p.CollateralTokenID)
	if err != nil {
		return nil, err
	}

	var out ergo.BoxCandidate
	var desc string
	switch p.Action {
	case "offer":
		out = ergo.BoxCandidate{
			Value:          ergo.SafeMinBoxValue + loanServiceFee,
			ErgoTree:       loanOfferTree,
			CreationHeight: actx.Height,
			Registers: ergo.Registers{
				ergo.R4: redeemer,
				ergo.R5: ergo.LongConstant(p.Principal),
				ergo.R6: ergo.LongConstant(p.InterestPermille),
				ergo.R7: ergo.IntConstant(int32(p.DurationBlocks)),
				ergo.R8: collateralRef,
				ergo.R9: ergo.LongConstant(p.CollateralAmount),
			},
		}
		desc = "loan: offer " + ergo.FormatErg(p.Principal) + " ERG at " +
			decimal.NewFromInt(p.InterestPermille).Div(decimal.NewFromInt(10)).String() + "%"
	case "fund":
		// The offer box id is unknown when a plan is opened, so the
		// funding box repeats the lender key and terms; the matching
		// bot pairs it with the lender's live offer box.
		out = ergo.BoxCandidate{
			Value:          p.Principal,
			ErgoTree:       loanFundTree,
			CreationHeight: actx.Height,
			Registers: ergo.Registers{
				ergo.R4: redeemer,
				ergo.R5: ergo.LongConstant(p.Principal),
				ergo.R6: ergo.LongConstant(p.InterestPermille),
			},
		}
		desc = "loan: fund " + ergo.FormatErg(p.Principal) + " ERG"
	case "repay":
		loanRef, err := boxIDConstant(p.LoanBoxID)
		if err != nil {
			return nil, err
		}
		out = ergo.BoxCandidate{
			Value:          p.Principal + p.interest(),
			ErgoTree:       loanRepayTree,
			CreationHeight: actx.Height,
			Registers: ergo.Registers{
				ergo.R4: redeemer,
				ergo.R5: loanRef,
			},
		}
		desc = "loan: repay " + ergo.FormatErg(p.Principal+p.interest()) + " ERG on loan " + string(p.LoanBoxID)
	default:
		return nil, forge.NewErr(forge.BadRequest, "loan action %q is not a single transaction; open a plan", p.Action)
	}

	return &forge.BuildResult{
		Outputs:     []ergo.BoxCandidate{out},
		Description: desc,
	}, nil
}

// boxIDConstant stores a box id as a Coll[Byte] register value.
func boxIDConstant(id ergo.BoxID) (ergo.Constant, error) {
	raw, err := id.Bytes()
	if err != nil {
		return ergo.Constant{}, forge.NewErr(forge.BadRequest, "%v", err)
	}
	return ergo.ByteCollConstant(raw), nil
}
