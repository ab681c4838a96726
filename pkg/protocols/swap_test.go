package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

func swapPool() SwapParams {
	return SwapParams{
		TokenID:       ergo.TokenID(hexID(0xaa)),
		TokenDecimals: 2,
		ReserveErg:    1_000_000_000_000, // 1000 ERG
		ReserveToken:  500_000,           // 5000.00 tokens
	}
}

func TestSwapQuoteBuy(t *testing.T) {
	p := swapPool()
	p.Action = "buy"
	p.Amount = 10_000_000_000 // 10 ERG in

	res, err := NewSwap().Quote(testCtx(t), mustParams(t, p))
	require.NoError(t, err)

	// x*y=k with the 0.3% fee on the input side:
	// 500000 * (10e9*997) / (1000e9*1000 + 10e9*997) = 4935 raw tokens
	require.Len(t, res.Receive, 1)
	assert.Equal(t, int64(4935), res.Receive[0].Raw)
	assert.Equal(t, p.TokenID, res.Receive[0].TokenID)
	assert.Equal(t, "10", res.Pay[0].Amount.String())
	assert.True(t, res.PriceImpact.IsPositive(), "a 1%% pool trade moves the price")
}

func TestSwapQuoteSellRoundTripLosesFees(t *testing.T) {
	p := swapPool()
	p.Action = "sell"
	p.Amount = 4935

	res, err := NewSwap().Quote(testCtx(t), mustParams(t, p))
	require.NoError(t, err)
	require.Len(t, res.Receive, 1)
	assert.Less(t, res.Receive[0].Raw, int64(10_000_000_000),
		"selling the buy quote back cannot recover the pool fee")
	assert.Greater(t, res.Receive[0].Raw, int64(9_000_000_000))
}

func TestSwapQuoteRejectsBadPool(t *testing.T) {
	for _, breakIt := range []func(*SwapParams){
		func(p *SwapParams) { p.Action = "short" },
		func(p *SwapParams) { p.Amount = 0 },
		func(p *SwapParams) { p.ReserveErg = 0 },
		func(p *SwapParams) { p.TokenID = "feed" },
		func(p *SwapParams) { p.PoolFeeNum = 1001 },
	} {
		p := swapPool()
		p.Action = "buy"
		p.Amount = 1_000_000_000
		breakIt(&p)
		_, err := NewSwap().Quote(testCtx(t), mustParams(t, p))
		require.Error(t, err)
		assert.True(t, forge.IsError(err, forge.BadRequest))
	}
}

func TestSwapBuildBuyOrder(t *testing.T) {
	actx := testCtx(t)
	p := swapPool()
	p.Action = "buy"
	p.Amount = 10_000_000_000

	wallet := []ergo.Box{walletBox(0x01, 50_000_000_000)}
	built := buildEndToEnd(t, NewSwap(), actx, mustParams(t, p), wallet)

	// order box, fee box, change box
	require.Len(t, built.Tx.Outputs, 3)
	order := built.Tx.Outputs[0]
	assert.Equal(t, ergo.HexBytes(swapOrderTree), order.ErgoTree)
	assert.Equal(t, orderValue+p.Amount, order.Value)

	pk, err := order.Registers[ergo.R4].GroupElement()
	require.NoError(t, err)
	assert.Equal(t, testWalletKeyHex, ergo.HexEncode(pk))
	idBytes, err := order.Registers[ergo.R5].ByteColl()
	require.NoError(t, err)
	assert.Equal(t, string(p.TokenID), ergo.HexEncode(idBytes))

	// default 1% slippage on the 4930 quote
	min, err := order.Registers[ergo.R6].Long()
	require.NoError(t, err)
	assert.Equal(t, int64(4885), min)
}

func TestSwapBuildSellOrderCarriesTokens(t *testing.T) {
	actx := testCtx(t)
	p := swapPool()
	p.Action = "sell"
	p.Amount = 2_000

	wallet := []ergo.Box{
		walletBox(0x01, 5_000_000_000, ergo.TokenAmount{TokenID: p.TokenID, Amount: 3_000}),
	}
	built := buildEndToEnd(t, NewSwap(), actx, mustParams(t, p), wallet)

	order := built.Tx.Outputs[0]
	assert.Equal(t, int64(orderValue), order.Value)
	require.Len(t, order.Assets, 1)
	assert.Equal(t, p.Amount, order.Assets[0].Amount)

	// the 1000 surplus tokens ride home in change
	change := built.Tx.Outputs[len(built.Tx.Outputs)-1]
	require.Len(t, change.Assets, 1)
	assert.Equal(t, int64(1_000), change.Assets[0].Amount)
}

func TestSwapExplicitMinOutputWins(t *testing.T) {
	actx := testCtx(t)
	p := swapPool()
	p.Action = "buy"
	p.Amount = 10_000_000_000
	p.MinOutput = 4_900

	wallet := []ergo.Box{walletBox(0x01, 50_000_000_000)}
	built := buildEndToEnd(t, NewSwap(), actx, mustParams(t, p), wallet)

	min, err := built.Tx.Outputs[0].Registers[ergo.R6].Long()
	require.NoError(t, err)
	assert.Equal(t, int64(4_900), min)
}
