package ergo

// The miner fee is not an implicit difference on this ledger: it is an
// explicit output box guarded by the fee collection contract, which
// lets any miner claim it after a short height delay. The tree below
// is the contract's canonical serialization (header 0x10: version 0,
// segregated constants); every transaction this gateway builds appends
// one output paying it.
const minerFeeTreeHex = "1005040004000e36100204a00b08cd0279be667ef9dcbbac55a06295ce870b" +
	"07029bfcdb2dce28d959f2815b16f81798ea02d192a39a8cc7a70173007301" +
	"1001020402d19683030193a38cc7b2a57300000193c2b2a573010074730273" +
	"03830108cdeeac93b1a57304"

var MinerFeeTree = mustHexDecode(minerFeeTreeHex)

// MinerFeeAddress is the fee contract's display address. The contract
// bytes are network-independent; only the address prefix differs.
func MinerFeeAddress(network NetworkType) Address {
	addr, err := P2SAddress(MinerFeeTree, network)
	if err != nil {
		panic(err) // static input, cannot fail
	}
	return addr
}

func mustHexDecode(s string) []byte {
	b, err := HexDecode(s)
	if err != nil {
		panic(err)
	}
	return b
}
