package forge

import (
	"bytes"
	"sort"

	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// MintDecl declares a token minted by the transaction under
// construction. The token's id is fixed by the ledger as the id of the
// transaction's first input box; the declared amount is attached to the
// output at OutputIndex along with the standard asset metadata
// registers (name R4, description R5, decimals R6).
type MintDecl struct {
	OutputIndex int
	Name        string
	Description string
	Decimals    int
	Amount      int64
}

// BuildRequest is everything BuildTransaction needs: the boxes to
// spend, the outputs the caller wants, and where leftovers go.
type BuildRequest struct {
	Inputs     []ergo.Box
	DataInputs []ergo.DataInput
	Outputs    []ergo.BoxCandidate

	// Fee in nanoERG, paid as an explicit output guarded by the miner
	// fee script. Zero means ergo.RecommendedMinFee.
	Fee int64

	Height uint32

	// ChangeTree is the wallet's own guard script; leftovers return
	// here. ChangeAddress is its canonical address, carried alongside
	// so the summary never has to re-derive it.
	ChangeTree    []byte
	ChangeAddress ergo.Address

	Mint *MintDecl
	Burn []ergo.TokenAmount

	MinBoxValue int64 // zero means ergo.SafeMinBoxValue
	Network     ergo.NetworkType
}

// BuiltTx is a fully assembled unsigned transaction: the structured
// form, its canonical bytes, the id those bytes hash to, and a summary
// a human can audit before signing.
type BuiltTx struct {
	Tx      *ergo.UnsignedTransaction
	Bytes   []byte
	TxID    ergo.TxID
	Summary TxSummary
}

// TokenDelta is the wallet's position change in one token. Spent counts
// amounts leaving via inputs, Received counts amounts coming back on
// wallet-guarded outputs (change included), Net is their difference.
// Minted and Burned record ledger-wide supply changes in this tx.
type TokenDelta struct {
	TokenID  ergo.TokenID `json:"tokenId"`
	Spent    int64        `json:"spent"`
	Received int64        `json:"received"`
	Net      int64        `json:"net"`
	Minted   int64        `json:"minted,omitempty"`
	Burned   int64        `json:"burned,omitempty"`
}

// OutputNote describes one output for display. Address is the
// precomputed canonical address when one is known; scripts with
// segregated constants never get an address re-derived here.
type OutputNote struct {
	Index    int                `json:"index"`
	Kind     ergo.TreeType      `json:"kind"`
	Address  ergo.Address       `json:"address,omitempty"`
	Value    int64              `json:"value"`
	ValueErg string             `json:"valueErg"`
	Tokens   []ergo.TokenAmount `json:"tokens,omitempty"`
}

type TxSummary struct {
	TxID          ergo.TxID    `json:"txId"`
	TotalInput    int64        `json:"totalInput"`
	TotalInputErg string       `json:"totalInputErg"`
	TotalOutput   int64        `json:"totalOutput"`
	Fee           int64        `json:"fee"`
	FeeErg        string       `json:"feeErg"`
	Change        int64        `json:"change"`
	ChangeErg     string       `json:"changeErg"`
	Tokens        []TokenDelta `json:"tokens,omitempty"`
	Outputs       []OutputNote `json:"outputs"`
}

// looksLikeBarePubKey reports whether a would-be guard script is
// actually a raw compressed curve point. Such an output would be
// unspendable garbage, so the builder refuses it outright.
func looksLikeBarePubKey(tree []byte) bool {
	return len(tree) == ergo.PubKeyLen && (tree[0] == 0x02 || tree[0] == 0x03)
}

// BuildTransaction assembles a canonical unsigned transaction from the
// request: the caller's outputs, then the explicit miner fee box, then
// a change box returning exact leftovers (value and tokens) to the
// wallet's guard script. The result is deterministic for a given
// request.
//
// It fails with InvalidTxn rather than produce anything a node would
// reject: bare public keys in place of guard scripts, outputs below the
// minimum box value, token outputs not covered by inputs or a mint, or
// change stranded below the minimum box value.
func BuildTransaction(req BuildRequest) (*BuiltTx, error) {
	if len(req.Inputs) == 0 {
		return nil, NewErr(InvalidTxn, "transaction has no inputs")
	}
	if len(req.ChangeTree) == 0 {
		return nil, NewErr(BadRequest, "no change guard script given")
	}
	if looksLikeBarePubKey(req.ChangeTree) {
		return nil, NewErr(InvalidTxn, "change script is a bare public key, not a guard script")
	}
	fee := req.Fee
	if fee == 0 {
		fee = ergo.RecommendedMinFee
	}
	minBox := req.MinBoxValue
	if minBox <= 0 {
		minBox = ergo.SafeMinBoxValue
	}
	if fee < minBox {
		return nil, NewErr(InvalidTxn, "fee %d is below the minimum box value %d", fee, minBox)
	}

	var totalIn int64
	inTokens := map[ergo.TokenID]int64{}
	seen := map[ergo.BoxID]bool{}
	for _, box := range req.Inputs {
		if seen[box.BoxID] {
			return nil, NewErr(InvalidTxn, "box %s is spent twice", box.BoxID)
		}
		seen[box.BoxID] = true
		totalIn += box.Value
		for _, t := range box.Assets {
			inTokens[t.TokenID] += t.Amount
		}
	}

	outputs := make([]ergo.BoxCandidate, len(req.Outputs))
	copy(outputs, req.Outputs)

	var mintID ergo.TokenID
	if req.Mint != nil {
		m := req.Mint
		if m.OutputIndex < 0 || m.OutputIndex >= len(outputs) {
			return nil, NewErr(InvalidTxn, "mint output index %d out of range (%d outputs)", m.OutputIndex, len(outputs))
		}
		if m.Amount <= 0 {
			return nil, NewErr(InvalidTxn, "mint amount %d is not positive", m.Amount)
		}
		mintID = ergo.TokenID(req.Inputs[0].BoxID)
		carrier := &outputs[m.OutputIndex]
		if carrier.TokenBalance(mintID) != 0 {
			return nil, NewErr(InvalidTxn, "mint output already carries token %s", mintID)
		}
		if len(carrier.Registers) != 0 {
			return nil, NewErr(InvalidTxn, "mint output must leave its registers to the asset metadata")
		}
		carrier.Assets = append(append([]ergo.TokenAmount{}, carrier.Assets...),
			ergo.TokenAmount{TokenID: mintID, Amount: m.Amount})
		carrier.Registers = ergo.MintRegisters(m.Name, m.Description, m.Decimals)
	}

	var totalDesired int64
	outTokens := map[ergo.TokenID]int64{}
	for i := range outputs {
		out := &outputs[i]
		if looksLikeBarePubKey(out.ErgoTree) {
			return nil, NewErr(InvalidTxn, "output %d guard script is a bare public key", i)
		}
		if len(out.ErgoTree) == 0 {
			return nil, NewErr(InvalidTxn, "output %d has no guard script", i)
		}
		if out.Value < minBox {
			return nil, NewErr(InvalidTxn, "output %d value %d is below the minimum box value %d", i, out.Value, minBox)
		}
		if out.CreationHeight == 0 {
			out.CreationHeight = req.Height
		}
		totalDesired += out.Value
		for _, t := range out.Assets {
			if t.Amount <= 0 {
				return nil, NewErr(InvalidTxn, "output %d token %s amount %d is not positive", i, t.TokenID, t.Amount)
			}
			outTokens[t.TokenID] += t.Amount
		}
	}

	burned := map[ergo.TokenID]int64{}
	for _, b := range req.Burn {
		if b.Amount <= 0 {
			return nil, NewErr(InvalidTxn, "burn of token %s amount %d is not positive", b.TokenID, b.Amount)
		}
		if b.TokenID == mintID && mintID != "" {
			return nil, NewErr(InvalidTxn, "token %s cannot be minted and burned in one transaction", mintID)
		}
		burned[b.TokenID] += b.Amount
	}

	// Conservation: in + minted = out + burned + change, per token.
	changeTokens := map[ergo.TokenID]int64{}
	for id, out := range outTokens {
		if id == mintID && mintID != "" {
			if out != req.Mint.Amount {
				return nil, NewErr(InvalidTxn, "minted token %s: outputs carry %d, mint declares %d", id, out, req.Mint.Amount)
			}
			continue
		}
		if avail := inTokens[id]; out > avail {
			return nil, NewErr(InvalidTxn, "outputs carry %d of token %s but inputs hold only %d", out, id, avail)
		}
	}
	for id, in := range inTokens {
		left := in - outTokens[id] - burned[id]
		if left < 0 {
			return nil, NewErr(InvalidTxn, "burn of token %s exceeds the %d left after outputs", id, in-outTokens[id])
		}
		if left > 0 {
			changeTokens[id] = left
		}
	}
	for id := range burned {
		if inTokens[id] == 0 {
			return nil, NewErr(InvalidTxn, "burn declared for token %s which no input holds", id)
		}
	}

	changeValue := totalIn - totalDesired - fee
	if changeValue < 0 {
		return nil, NewErr(InsufficientFunds, "inputs hold %d nanoERG, outputs plus fee need %d (short %d)",
			totalIn, totalDesired+fee, -changeValue)
	}
	if changeValue == 0 && len(changeTokens) > 0 {
		return nil, NewErr(InvalidTxn, "leftover tokens need a change box but no value is left to carry them")
	}
	if changeValue > 0 && changeValue < minBox {
		return nil, NewErr(InvalidTxn, "change of %d nanoERG is below the minimum box value %d", changeValue, minBox)
	}

	outputs = append(outputs, ergo.BoxCandidate{
		Value:          fee,
		ErgoTree:       ergo.MinerFeeTree,
		CreationHeight: req.Height,
	})
	if changeValue > 0 {
		change := ergo.BoxCandidate{
			Value:          changeValue,
			ErgoTree:       append(ergo.HexBytes{}, req.ChangeTree...),
			CreationHeight: req.Height,
		}
		ids := make([]ergo.TokenID, 0, len(changeTokens))
		for id := range changeTokens {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			change.Assets = append(change.Assets, ergo.TokenAmount{TokenID: id, Amount: changeTokens[id]})
		}
		outputs = append(outputs, change)
	}

	tx := &ergo.UnsignedTransaction{
		DataInputs: req.DataInputs,
		Outputs:    outputs,
	}
	for _, box := range req.Inputs {
		tx.Inputs = append(tx.Inputs, ergo.UnsignedInput{BoxID: box.BoxID})
	}

	raw, err := tx.Serialize()
	if err != nil {
		return nil, NewErr(InvalidTxn, "cannot encode transaction: %v", err)
	}
	txID := ergo.TxID(ergo.HexEncode(ergo.Blake2b256(raw)))

	summary := summarize(req, tx, txID, totalIn, totalDesired+fee+changeValue, fee, changeValue, inTokens, burned, mintID)
	return &BuiltTx{Tx: tx, Bytes: raw, TxID: txID, Summary: summary}, nil
}

// SummarizeTx derives a display summary from canonical transaction
// structure alone, for transactions built outside this process. The
// wire form references input boxes only by id, so the wallet-relative
// fields (Change, Tokens) stay empty; the totals still hold because
// every unit an input carries leaves through an output.
func SummarizeTx(tx *ergo.UnsignedTransaction, network ergo.NetworkType) (TxSummary, error) {
	txID, err := tx.TxID()
	if err != nil {
		return TxSummary{}, NewErr(InvalidTxn, "cannot encode transaction: %v", err)
	}
	s := TxSummary{TxID: txID}
	for i, out := range tx.Outputs {
		note := OutputNote{
			Index:    i,
			Value:    out.Value,
			ValueErg: ergo.FormatErg(out.Value),
			Tokens:   out.Assets,
		}
		note.Kind, note.Address = ergo.ClassifyTree(out.ErgoTree, network)
		if note.Kind == ergo.TreeTypeMinerFee {
			s.Fee += out.Value
		}
		s.TotalOutput += out.Value
		s.Outputs = append(s.Outputs, note)
	}
	s.TotalInput = s.TotalOutput
	s.TotalInputErg = ergo.FormatErg(s.TotalInput)
	s.FeeErg = ergo.FormatErg(s.Fee)
	s.ChangeErg = ergo.FormatErg(0)
	return s, nil
}

func summarize(req BuildRequest, tx *ergo.UnsignedTransaction, txID ergo.TxID,
	totalIn, totalOut, fee, changeValue int64,
	inTokens, burned map[ergo.TokenID]int64, mintID ergo.TokenID) TxSummary {

	s := TxSummary{
		TxID:          txID,
		TotalInput:    totalIn,
		TotalInputErg: ergo.FormatErg(totalIn),
		TotalOutput:   totalOut,
		Fee:           fee,
		FeeErg:        ergo.FormatErg(fee),
		Change:        changeValue,
		ChangeErg:     ergo.FormatErg(changeValue),
	}

	received := map[ergo.TokenID]int64{}
	for i, out := range tx.Outputs {
		note := OutputNote{
			Index:    i,
			Value:    out.Value,
			ValueErg: ergo.FormatErg(out.Value),
			Tokens:   out.Assets,
		}
		note.Kind, note.Address = ergo.ClassifyTree(out.ErgoTree, req.Network)
		if bytes.Equal(out.ErgoTree, req.ChangeTree) {
			if req.ChangeAddress != "" {
				note.Address = req.ChangeAddress
			}
			for _, t := range out.Assets {
				received[t.TokenID] += t.Amount
			}
		}
		s.Outputs = append(s.Outputs, note)
	}

	ids := map[ergo.TokenID]bool{}
	for id := range inTokens {
		ids[id] = true
	}
	for id := range received {
		ids[id] = true
	}
	for id := range burned {
		ids[id] = true
	}
	if mintID != "" {
		ids[mintID] = true
	}
	flat := make([]ergo.TokenID, 0, len(ids))
	for id := range ids {
		flat = append(flat, id)
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i] < flat[j] })
	for _, id := range flat {
		d := TokenDelta{
			TokenID:  id,
			Spent:    inTokens[id],
			Received: received[id],
			Burned:   burned[id],
		}
		if id == mintID {
			d.Minted = req.Mint.Amount
		}
		d.Net = d.Received - d.Spent
		s.Tokens = append(s.Tokens, d)
	}
	return s
}
