// Package protocols holds the adapters for the on-chain protocols this
// gateway forges transactions for. Every adapter is a pure function of
// its arguments: chain state arrives through the adapter context and
// the caller-supplied parameters, never through hidden lookups. The
// adapters depend on the forge core, not the other way around; nothing
// in the selector, builder or orchestrator branches on protocol
// identity.
//
// All of them follow the order-box pattern: a user action becomes a
// single box paying the protocol's contract, carrying the funds and the
// terms in registers. Protocol bots match orders against the shared
// pool, bank or loan boxes in their own transactions, so a user
// transaction never has to spend a box it could race other users for.
package protocols

import (
	"bytes"
	"encoding/json"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// RegisterAll records the protocol contracts for display on the given
// network and registers every adapter. Called once at startup.
func RegisterAll(reg *forge.AdapterRegistry, network ergo.NetworkType) error {
	registerContracts(network)
	for _, a := range []forge.Adapter{
		NewSwap(),
		NewStablecoin(),
		NewCurve(),
		NewP2PLoan(),
		NewLendPool(),
		NewTimelock(),
		NewBridge(),
		NewBondMarket(),
	} {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	// Contracts must be in the book before any adapter output is
	// decoded; tests reach adapters without going through RegisterAll.
	registerContracts(ergo.Mainnet)
}

func registerContracts(network ergo.NetworkType) {
	for _, c := range []struct {
		name string
		tree []byte
	}{
		{"swap-order", swapOrderTree},
		{"bank-order", bankOrderTree},
		{"curve-order", curveOrderTree},
		{"curve-pool", curvePoolTree},
		{"loan-offer", loanOfferTree},
		{"loan-fund", loanFundTree},
		{"loan-repay", loanRepayTree},
		{"pool-order", poolOrderTree},
		{"bridge-lock", bridgeLockTree},
		{"bond-issue", bondIssueTree},
		{"bond-order", bondOrderTree},
	} {
		addr, err := ergo.P2SAddress(c.tree, network)
		if err != nil {
			panic(err) // static input, cannot fail
		}
		ergo.RegisterContract(ergo.Contract{Name: c.name, Tree: c.tree, Address: addr})
	}
	ergo.RegisterContract(ergo.Contract{
		Name:    "timelock",
		Tree:    timelockTree,
		Address: timelockAddress(network),
	})
}

// decodeParams parses adapter parameters strictly: an unknown field is
// a caller bug, and silently dropping it could change what gets signed.
func decodeParams(params json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return forge.NewErr(forge.BadRequest, "bad protocol parameters: %v", err)
	}
	return nil
}

// walletKey extracts the wallet's public key from its guard script.
// Order boxes embed it as the redeemer, so only pay-to-public-key
// wallets can open orders.
func walletKey(actx forge.AdapterContext) ([]byte, error) {
	pk, ok := ergo.TreePubKey(actx.WalletTree)
	if !ok {
		return nil, forge.NewErr(forge.BadRequest,
			"wallet %s is not a pay-to-public-key address", actx.WalletAddress)
	}
	return pk, nil
}

// redeemerConstant is walletKey as a register value.
func redeemerConstant(actx forge.AdapterContext) (ergo.Constant, error) {
	pk, err := walletKey(actx)
	if err != nil {
		return ergo.Constant{}, err
	}
	c, err := ergo.GroupElementConstant(pk)
	if err != nil {
		return ergo.Constant{}, forge.NewErr(forge.BadRequest, "wallet key: %v", err)
	}
	return c, nil
}

// tokenIDConstant stores a token id as a Coll[Byte] register value.
func tokenIDConstant(id ergo.TokenID) (ergo.Constant, error) {
	raw, err := id.Bytes()
	if err != nil {
		return ergo.Constant{}, forge.NewErr(forge.BadRequest, "%v", err)
	}
	return ergo.ByteCollConstant(raw), nil
}

func ergAmount(nanoErg int64) forge.DisplayAmount {
	return forge.DisplayAmount{
		Asset:  "ERG",
		Amount: ergo.ErgAmount(nanoErg),
		Raw:    nanoErg,
	}
}

func tokenAmount(asset string, id ergo.TokenID, raw int64, decimals int) forge.DisplayAmount {
	return forge.DisplayAmount{
		Asset:   asset,
		TokenID: id,
		Amount:  ergo.TokenValue(raw, decimals),
		Raw:     raw,
	}
}

func mustContractTree(hexTree string) []byte {
	tree, err := ergo.HexDecode(hexTree)
	if err != nil {
		panic(err)
	}
	return tree
}
