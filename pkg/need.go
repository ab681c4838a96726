package forge

import (
	"fmt"
	"sort"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// Need is what a transaction must pull out of the wallet: a value
// amount, optionally with a token multiset. The two cases are distinct
// variants, not a nullable token list: a Need built with ValueNeed
// never has a token requirement, and every consumer can switch on
// HasTokens exhaustively.
type Need struct {
	value  int64
	tokens []ergo.TokenAmount
}

// ValueNeed is a requirement for plain value only.
func ValueNeed(nanoErg int64) Need {
	return Need{value: nanoErg}
}

// TokenNeed is a requirement for value plus one or more token amounts.
// Duplicate token ids are summed; the result is kept sorted by id so
// equal requirements compare and iterate identically.
func TokenNeed(nanoErg int64, tokens ...ergo.TokenAmount) Need {
	sums := map[ergo.TokenID]int64{}
	for _, t := range tokens {
		sums[t.TokenID] += t.Amount
	}
	flat := make([]ergo.TokenAmount, 0, len(sums))
	for id, amount := range sums {
		if amount == 0 {
			continue
		}
		flat = append(flat, ergo.TokenAmount{TokenID: id, Amount: amount})
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].TokenID < flat[j].TokenID })
	return Need{value: nanoErg, tokens: flat}
}

func (n Need) Value() int64 {
	return n.value
}

func (n Need) HasTokens() bool {
	return len(n.tokens) > 0
}

// Tokens returns the required token amounts, sorted by id.
// The caller must not modify the slice.
func (n Need) Tokens() []ergo.TokenAmount {
	return n.tokens
}

// Token returns the required amount of one token id.
func (n Need) Token(id ergo.TokenID) int64 {
	for _, t := range n.tokens {
		if t.TokenID == id {
			return t.Amount
		}
	}
	return 0
}

// Add merges two requirements.
func (n Need) Add(other Need) Need {
	merged := append(append([]ergo.TokenAmount{}, n.tokens...), other.tokens...)
	return TokenNeed(n.value+other.value, merged...)
}

func (n Need) String() string {
	if !n.HasTokens() {
		return fmt.Sprintf("%s ERG", ergo.FormatErg(n.value))
	}
	return fmt.Sprintf("%s ERG + %d token(s)", ergo.FormatErg(n.value), len(n.tokens))
}
