package forge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

func box(fill byte, value int64, tokens ...ergo.TokenAmount) ergo.Box {
	id := bytes.Repeat([]byte{fill}, ergo.IDLen)
	return ergo.Box{
		BoxID:  ergo.BoxID(ergo.HexEncode(id)),
		Value:  value,
		Assets: tokens,
	}
}

func tok(fill byte, amount int64) ergo.TokenAmount {
	id := bytes.Repeat([]byte{fill}, ergo.IDLen)
	return ergo.TokenAmount{TokenID: ergo.TokenID(ergo.HexEncode(id)), Amount: amount}
}

func TestSelectSingleBoxWithChange(t *testing.T) {
	wallet := []ergo.Box{box(0x01, 5_000_000_000)}

	sel, err := SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 1)
	assert.Equal(t, int64(5_000_000_000), sel.Value)
	assert.Equal(t, int64(3_998_900_000), sel.ChangeValue, "change absorbs the exact leftover")
}

func TestSelectGreedyEarlyExit(t *testing.T) {
	wallet := []ergo.Box{
		box(0x01, 1_000_000_000),
		box(0x02, 5_000_000_000),
		box(0x03, 3_000_000_000),
	}

	sel, err := SelectBoxes(wallet, ValueNeed(4_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 1, "largest box alone covers the requirement")
	assert.Equal(t, wallet[1].BoxID, sel.Boxes[0].BoxID)
}

func TestSelectBothTokensRequired(t *testing.T) {
	x, y := tok(0xaa, 100), tok(0xbb, 50)
	wallet := []ergo.Box{
		box(0x01, 2_000_000_000, x),
		box(0x02, 2_000_000_000, y),
	}
	need := TokenNeed(1_000_000,
		ergo.TokenAmount{TokenID: x.TokenID, Amount: 10},
		ergo.TokenAmount{TokenID: y.TokenID, Amount: 10})

	// Either box alone covers the value requirement; both carriers
	// must still be selected.
	sel, err := SelectBoxes(wallet, need, 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 2)
	assert.Equal(t, int64(100), sel.Tokens[x.TokenID])
	assert.Equal(t, int64(50), sel.Tokens[y.TokenID])
}

func TestSelectInsufficientValue(t *testing.T) {
	wallet := []ergo.Box{box(0x01, 1_000_000_000)}

	_, err := SelectBoxes(wallet, ValueNeed(2_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.Error(t, err)
	assert.True(t, IsInsufficientFundsError(err))
	assert.Contains(t, err.Error(), "short 1001100000")

	// Same wallet, same requirement: the error is deterministic.
	_, err2 := SelectBoxes(wallet, ValueNeed(2_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.Error(t, err2)
	assert.Equal(t, err.Error(), err2.Error())
}

func TestSelectInsufficientToken(t *testing.T) {
	x := tok(0xaa, 5)
	wallet := []ergo.Box{box(0x01, 5_000_000_000, x)}
	need := TokenNeed(1_000_000, ergo.TokenAmount{TokenID: x.TokenID, Amount: 20})

	_, err := SelectBoxes(wallet, need, 1_100_000, DefaultSelectPolicy())
	require.Error(t, err)
	assert.True(t, IsInsufficientFundsError(err))
	assert.Contains(t, err.Error(), string(x.TokenID), "shortfall names the token")
	assert.Contains(t, err.Error(), "short 15")
}

func TestSelectExactCoverNoChange(t *testing.T) {
	wallet := []ergo.Box{box(0x01, 1_001_100_000)}

	sel, err := SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	assert.Equal(t, int64(0), sel.ChangeValue)
}

func TestSelectDeadZoneWidens(t *testing.T) {
	// The big box leaves 500,000 of change, below the 1,000,000 box
	// minimum. A second box must be pulled in to lift it out.
	wallet := []ergo.Box{
		box(0x01, 1_001_600_000),
		box(0x02, 10_000_000),
	}

	sel, err := SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 2)
	assert.Equal(t, int64(10_500_000), sel.ChangeValue)
}

func TestSelectDeadZoneFailsFast(t *testing.T) {
	wallet := []ergo.Box{box(0x01, 1_001_600_000)}

	_, err := SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.Error(t, err)
	assert.True(t, IsInvalidTxnError(err))
	assert.Contains(t, err.Error(), "below the minimum box value")
}

func TestSelectTokenSurplusNeedsChangeValue(t *testing.T) {
	x := tok(0xaa, 100)
	// Exactly covers value+fee, but the token surplus must ride a
	// change box, so selection widens for the change minimum.
	wallet := []ergo.Box{
		box(0x01, 1_001_100_000, x),
		box(0x02, 50_000_000),
	}

	sel, err := SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 2)
	assert.Equal(t, int64(50_000_000), sel.ChangeValue)

	_, err = SelectBoxes(wallet[:1], ValueNeed(1_000_000_000), 1_100_000, DefaultSelectPolicy())
	require.Error(t, err)
	assert.True(t, IsInvalidTxnError(err))
}

func TestSelectTieBreakPolicy(t *testing.T) {
	x := tok(0xaa, 10)
	plain := box(0x01, 2_000_000_000)
	carrier := box(0x02, 2_000_000_000, x)
	wallet := []ergo.Box{carrier, plain}

	policy := DefaultSelectPolicy()
	policy.ConsolidateDust = false

	sel, err := SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, policy)
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 1)
	assert.Equal(t, plain.BoxID, sel.Boxes[0].BoxID, "token carriers stay out of plain spends")

	policy.TieBreak = TieBreakMoreTokens
	sel, err = SelectBoxes(wallet, ValueNeed(1_000_000_000), 1_100_000, policy)
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 1)
	assert.Equal(t, carrier.BoxID, sel.Boxes[0].BoxID)
}

func TestSelectDustConsolidation(t *testing.T) {
	x := tok(0xaa, 100)
	dust := box(0x02, 900_000, tok(0xaa, 7))
	strangerDust := box(0x03, 900_000, tok(0xbb, 3))
	wallet := []ergo.Box{
		box(0x01, 5_000_000_000, x),
		dust,
		strangerDust,
	}
	need := TokenNeed(1_000_000_000, ergo.TokenAmount{TokenID: x.TokenID, Amount: 10})

	sel, err := SelectBoxes(wallet, need, 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 2, "same-token dust is co-opted, foreign-token dust is not")
	assert.Equal(t, int64(107), sel.Tokens[x.TokenID])
	assert.Zero(t, sel.Tokens[strangerDust.Assets[0].TokenID])

	policy := DefaultSelectPolicy()
	policy.ConsolidateDust = false
	sel, err = SelectBoxes(wallet, need, 1_100_000, policy)
	require.NoError(t, err)
	require.Len(t, sel.Boxes, 1)
}

func TestSelectMaxInputs(t *testing.T) {
	var wallet []ergo.Box
	for i := 0; i < 10; i++ {
		wallet = append(wallet, box(byte(i+1), 100_000_000))
	}
	policy := DefaultSelectPolicy()
	policy.MaxInputs = 3

	_, err := SelectBoxes(wallet, ValueNeed(500_000_000), 1_100_000, policy)
	require.Error(t, err)
	assert.True(t, IsInsufficientFundsError(err))
	assert.Contains(t, err.Error(), "more than 3 inputs")

	sel, err := SelectBoxes(wallet, ValueNeed(250_000_000), 1_100_000, policy)
	require.NoError(t, err)
	assert.Len(t, sel.Boxes, 3)
}

func TestSelectDeterministic(t *testing.T) {
	x := tok(0xaa, 50)
	wallet := []ergo.Box{
		box(0x03, 1_000_000_000),
		box(0x01, 1_000_000_000, x),
		box(0x02, 1_000_000_000),
	}
	need := TokenNeed(1_500_000_000, ergo.TokenAmount{TokenID: x.TokenID, Amount: 1})

	first, err := SelectBoxes(wallet, need, 1_100_000, DefaultSelectPolicy())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := SelectBoxes(wallet, need, 1_100_000, DefaultSelectPolicy())
		require.NoError(t, err)
		require.Equal(t, len(first.Boxes), len(again.Boxes))
		for j := range first.Boxes {
			assert.Equal(t, first.Boxes[j].BoxID, again.Boxes[j].BoxID)
		}
	}
}

func TestSelectRejectsNegativeInputs(t *testing.T) {
	wallet := []ergo.Box{box(0x01, 5_000_000_000)}

	_, err := SelectBoxes(wallet, ValueNeed(-1), 1_100_000, DefaultSelectPolicy())
	assert.True(t, IsError(err, BadRequest))

	_, err = SelectBoxes(wallet, ValueNeed(1), -5, DefaultSelectPolicy())
	assert.True(t, IsError(err, BadRequest))
}

func TestNeedMerging(t *testing.T) {
	x, y := tok(0xaa, 0), tok(0xbb, 0)
	a := TokenNeed(100, ergo.TokenAmount{TokenID: x.TokenID, Amount: 5})
	b := TokenNeed(200,
		ergo.TokenAmount{TokenID: x.TokenID, Amount: 3},
		ergo.TokenAmount{TokenID: y.TokenID, Amount: 1})

	sum := a.Add(b)
	assert.Equal(t, int64(300), sum.Value())
	assert.Equal(t, int64(8), sum.Token(x.TokenID))
	assert.Equal(t, int64(1), sum.Token(y.TokenID))
	assert.True(t, sum.HasTokens())
	assert.False(t, ValueNeed(5).HasTokens())
}
