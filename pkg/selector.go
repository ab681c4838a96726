package forge

import (
	"sort"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// DefaultMaxInputs caps how many boxes a single transaction will spend.
// Signers render every input, and node mempools reject oversized
// transactions long before this.
const DefaultMaxInputs = 100

// TieBreak orders boxes of equal value during selection.
type TieBreak int

const (
	// TieBreakFewerTokens picks token-light boxes first, keeping token
	// carriers out of plain value spends.
	TieBreakFewerTokens TieBreak = iota
	// TieBreakMoreTokens picks token-heavy boxes first, consolidating
	// token carriers into change at every opportunity.
	TieBreakMoreTokens
)

// SelectPolicy tunes box selection. The zero value is usable: each
// field falls back to its default.
type SelectPolicy struct {
	MaxInputs       int
	MinBoxValue     int64 // smallest change the ledger will accept
	TieBreak        TieBreak
	ConsolidateDust bool  // co-opt dust boxes carrying already-selected tokens
	DustThreshold   int64 // value at or below which a box counts as dust
}

func DefaultSelectPolicy() SelectPolicy {
	return SelectPolicy{
		MaxInputs:       DefaultMaxInputs,
		MinBoxValue:     ergo.SafeMinBoxValue,
		TieBreak:        TieBreakFewerTokens,
		ConsolidateDust: true,
		DustThreshold:   ergo.SafeMinBoxValue,
	}
}

// SelectPolicy derives a selection policy from loaded config.
func (c Config) SelectPolicy() SelectPolicy {
	p := DefaultSelectPolicy()
	if c.Selector.MaxInputs > 0 {
		p.MaxInputs = c.Selector.MaxInputs
	}
	p.ConsolidateDust = c.Selector.ConsolidateDust
	if c.Selector.DustThreshold > 0 {
		p.DustThreshold = c.Selector.DustThreshold
	}
	return p
}

func (p SelectPolicy) withDefaults() SelectPolicy {
	d := DefaultSelectPolicy()
	if p.MaxInputs <= 0 {
		p.MaxInputs = d.MaxInputs
	}
	if p.MinBoxValue <= 0 {
		p.MinBoxValue = d.MinBoxValue
	}
	if p.DustThreshold <= 0 {
		p.DustThreshold = d.DustThreshold
	}
	return p
}

// Selection is the outcome of SelectBoxes: the boxes to spend, their
// totals, and the value left over for the change output. Leftover
// token amounts are whatever Tokens holds beyond the requirement.
type Selection struct {
	Boxes       []ergo.Box
	Value       int64
	Tokens      map[ergo.TokenID]int64
	ChangeValue int64
}

type picker struct {
	candidates []ergo.Box
	picked     []bool
	count      int
	value      int64
	tokens     map[ergo.TokenID]int64
}

func (pk *picker) pick(i int) {
	pk.picked[i] = true
	pk.count++
	pk.value += pk.candidates[i].Value
	for _, t := range pk.candidates[i].Assets {
		pk.tokens[t.TokenID] += t.Amount
	}
}

func (pk *picker) unpick(i int) {
	pk.picked[i] = false
	pk.count--
	pk.value -= pk.candidates[i].Value
	for _, t := range pk.candidates[i].Assets {
		pk.tokens[t.TokenID] -= t.Amount
		if pk.tokens[t.TokenID] == 0 {
			delete(pk.tokens, t.TokenID)
		}
	}
}

// surplus reports whether any selected token exceeds its requirement.
// Those amounts can only leave through a change box.
func (pk *picker) surplus(need Need) bool {
	for id, amount := range pk.tokens {
		if amount > need.Token(id) {
			return true
		}
	}
	return false
}

// changeViable reports whether the current residual can form a legal
// change: exactly zero with no token surplus, or at least minBox.
func (pk *picker) changeViable(need Need, required, minBox int64) bool {
	residual := pk.value - required
	if residual >= minBox {
		return true
	}
	return residual == 0 && !pk.surplus(need)
}

// SelectBoxes picks a subset of utxos covering need plus fee.
//
// Boxes are taken greedily in value-descending order with an early exit
// once the requirement is met; token requirements are satisfied first so
// a token carrier is never passed over for a plain box of equal value.
// The residual (selected value minus requirement minus fee) must come
// out as exactly zero or at least policy.MinBoxValue. When it lands in
// between, selection widens by one box at a time to lift the change
// above the minimum, and fails if no box can.
func SelectBoxes(utxos []ergo.Box, need Need, fee int64, policy SelectPolicy) (*Selection, error) {
	policy = policy.withDefaults()
	if fee < 0 {
		return nil, NewErr(BadRequest, "negative fee: %d", fee)
	}
	if need.Value() < 0 {
		return nil, NewErr(BadRequest, "negative value requirement: %d", need.Value())
	}
	required := need.Value() + fee

	pk := &picker{
		candidates: make([]ergo.Box, len(utxos)),
		picked:     make([]bool, len(utxos)),
		tokens:     map[ergo.TokenID]int64{},
	}
	copy(pk.candidates, utxos)
	sort.SliceStable(pk.candidates, func(i, j int) bool {
		a, b := &pk.candidates[i], &pk.candidates[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if len(a.Assets) != len(b.Assets) {
			if policy.TieBreak == TieBreakMoreTokens {
				return len(a.Assets) > len(b.Assets)
			}
			return len(a.Assets) < len(b.Assets)
		}
		return a.BoxID < b.BoxID
	})

	// Token requirements first: walk the sorted list and take carriers
	// until each required amount is covered.
	for _, want := range need.Tokens() {
		if want.Amount <= 0 {
			continue
		}
		for i := range pk.candidates {
			if pk.tokens[want.TokenID] >= want.Amount {
				break
			}
			if pk.picked[i] || pk.candidates[i].TokenBalance(want.TokenID) == 0 {
				continue
			}
			if pk.count >= policy.MaxInputs {
				return nil, NewErr(InsufficientFunds,
					"token %s requires more than %d inputs to cover %d", want.TokenID, policy.MaxInputs, want.Amount)
			}
			pk.pick(i)
		}
		if got := pk.tokens[want.TokenID]; got < want.Amount {
			return nil, NewErr(InsufficientFunds,
				"insufficient token %s: need %d, have %d (short %d)", want.TokenID, want.Amount, got, want.Amount-got)
		}
	}

	// Value pass: largest-first until the requirement plus fee is met.
	for i := range pk.candidates {
		if pk.value >= required {
			break
		}
		if pk.picked[i] {
			continue
		}
		if pk.count >= policy.MaxInputs {
			return nil, NewErr(InsufficientFunds,
				"requirement of %d nanoERG needs more than %d inputs", required, policy.MaxInputs)
		}
		pk.pick(i)
	}
	if pk.value < required {
		return nil, NewErr(InsufficientFunds,
			"insufficient funds: need %d nanoERG, have %d (short %d)", required, pk.value, required-pk.value)
	}

	// Boundary dust pass: co-opt dust boxes whose tokens are all
	// already in the selection, so their token balances ride out in
	// change instead of staying fragmented across the wallet.
	var dustPicks []int
	if policy.ConsolidateDust {
		for i := range pk.candidates {
			if pk.count >= policy.MaxInputs {
				break
			}
			box := &pk.candidates[i]
			if pk.picked[i] || box.Value > policy.DustThreshold || len(box.Assets) == 0 {
				continue
			}
			carried := true
			for _, t := range box.Assets {
				if pk.tokens[t.TokenID] == 0 {
					carried = false
					break
				}
			}
			if carried {
				pk.pick(i)
				dustPicks = append(dustPicks, i)
			}
		}
	}

	// Residual must form a legal change. Widen if it landed in the
	// dead zone between zero and the minimum box value; if widening
	// cannot fix a dust-pass residual, drop the dust picks and retry.
	if !widenToViableChange(pk, need, required, policy) {
		for j := len(dustPicks) - 1; j >= 0; j-- {
			pk.unpick(dustPicks[j])
		}
		if len(dustPicks) == 0 || !widenToViableChange(pk, need, required, policy) {
			return nil, NewErr(InvalidTxn,
				"change of %d nanoERG is below the minimum box value %d and no unspent box can extend it",
				pk.value-required, policy.MinBoxValue)
		}
	}

	sel := &Selection{
		Value:       pk.value,
		Tokens:      pk.tokens,
		ChangeValue: pk.value - required,
	}
	for i := range pk.candidates {
		if pk.picked[i] {
			sel.Boxes = append(sel.Boxes, pk.candidates[i])
		}
	}
	return sel, nil
}

func widenToViableChange(pk *picker, need Need, required int64, policy SelectPolicy) bool {
	for !pk.changeViable(need, required, policy.MinBoxValue) {
		widened := false
		for i := range pk.candidates {
			if !pk.picked[i] && pk.count < policy.MaxInputs {
				pk.pick(i)
				widened = true
				break
			}
		}
		if !widened {
			return false
		}
	}
	return true
}
