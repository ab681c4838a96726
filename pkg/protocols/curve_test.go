package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// a curve that has sold 100 tokens: price 1000+10n nanoERG per token
func curveState() CurveParams {
	return CurveParams{
		BasePrice:     1_000,
		Slope:         10,
		Sold:          100,
		TokenID:       ergo.TokenID(hexID(0xbb)),
		TokenDecimals: 0,
	}
}

func TestCurveRangeCost(t *testing.T) {
	// tokens 0..4 at 1000+10n: 1000+1010+1020+1030+1040
	assert.Equal(t, int64(5_100), rangeCost(1_000, 10, 0, 5))
	// a flat curve is just n*base
	assert.Equal(t, int64(5_000), rangeCost(1_000, 0, 77, 5))
}

func TestCurveQuoteBuy(t *testing.T) {
	p := curveState()
	p.Action = "buy"
	p.Amount = 50

	res, err := NewCurve().Quote(testCtx(t), mustParams(t, p))
	require.NoError(t, err)

	// tokens 100..149: 50*1000 + 10*(50*100 + 50*49/2)
	assert.Equal(t, int64(112_250), res.Pay[0].Raw)
	assert.Equal(t, int64(50), res.Receive[0].Raw)
	assert.True(t, res.PriceImpact.IsPositive())
}

func TestCurveQuoteSellPaysFee(t *testing.T) {
	p := curveState()
	p.Action = "sell"
	p.Amount = 50

	res, err := NewCurve().Quote(testCtx(t), mustParams(t, p))
	require.NoError(t, err)

	// walking down tokens 50..99 grosses 87250, minus the 1% pool fee
	assert.Equal(t, int64(87_250-873), res.Receive[0].Raw)
	assert.Equal(t, int64(873), res.Fees[0].Raw)
}

func TestCurveQuoteRejectsOversell(t *testing.T) {
	p := curveState()
	p.Action = "sell"
	p.Amount = 101

	_, err := NewCurve().Quote(testCtx(t), mustParams(t, p))
	require.Error(t, err)
	assert.True(t, forge.IsError(err, forge.BadRequest))
}

func TestCurveLaunchMintsSupplyIntoPool(t *testing.T) {
	actx := testCtx(t)
	p := CurveParams{
		Action:        "launch",
		Amount:        1_000_000,
		BasePrice:     1_000,
		TokenName:     "WIDGET",
		TokenDesc:     "widget curve token",
		TokenDecimals: 2,
	}

	wallet := []ergo.Box{walletBox(0x01, 1_000_000_000)}
	built := buildEndToEnd(t, NewCurve(), actx, mustParams(t, p), wallet)

	pool := built.Tx.Outputs[0]
	assert.Equal(t, ergo.HexBytes(curvePoolTree), pool.ErgoTree)
	assert.Equal(t, int64(launchValue), pool.Value)

	// the minted id is the first input's box id, the whole supply
	// lands in the pool box
	require.Len(t, pool.Assets, 1)
	assert.Equal(t, ergo.TokenID(wallet[0].BoxID), pool.Assets[0].TokenID)
	assert.Equal(t, p.Amount, pool.Assets[0].Amount)

	name, err := pool.Registers[ergo.R4].ByteColl()
	require.NoError(t, err)
	assert.Equal(t, "WIDGET", string(name))

	require.Len(t, built.Summary.Tokens, 1)
	assert.Equal(t, p.Amount, built.Summary.Tokens[0].Minted)
}

func TestCurveBuyOrderBuild(t *testing.T) {
	actx := testCtx(t)
	p := curveState()
	p.Action = "buy"
	p.Amount = 50

	wallet := []ergo.Box{walletBox(0x01, 1_000_000_000)}
	built := buildEndToEnd(t, NewCurve(), actx, mustParams(t, p), wallet)

	order := built.Tx.Outputs[0]
	assert.Equal(t, ergo.HexBytes(curveOrderTree), order.ErgoTree)
	assert.Equal(t, orderValue+int64(112_250), order.Value)

	code, err := order.Registers[ergo.R6].Int()
	require.NoError(t, err)
	assert.Equal(t, curveBuy, code)
}

func TestCurveSellOrderCarriesTokens(t *testing.T) {
	actx := testCtx(t)
	p := curveState()
	p.Action = "sell"
	p.Amount = 30

	wallet := []ergo.Box{
		walletBox(0x01, 1_000_000_000, ergo.TokenAmount{TokenID: p.TokenID, Amount: 30}),
	}
	built := buildEndToEnd(t, NewCurve(), actx, mustParams(t, p), wallet)

	order := built.Tx.Outputs[0]
	assert.Equal(t, int64(orderValue), order.Value)
	require.Len(t, order.Assets, 1)
	assert.Equal(t, int64(30), order.Assets[0].Amount)

	code, err := order.Registers[ergo.R6].Int()
	require.NoError(t, err)
	assert.Equal(t, curveSell, code)
}
