// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"encoding/hex"
	"time"

	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// genesisTimestamp is committed to by the genesis coinbase.
const genesisTimestamp = "Zclassic860413afe207aa173afee4fcfa9166dc745651c754a41ea8f155646f5aa828ac"

// genesisCoinbaseTx is the coinbase transaction for the genesis blocks for
// all networks.  Its single output is of zero value and unspendable.
var genesisCoinbaseTx = wire.MsgTx{
	Version: 1,
	TxIn: []*wire.TxIn{
		{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{},
				Index: 0xffffffff,
			},
			SignatureScript: append([]byte{
				0x04, 0xff, 0xff, 0x00, 0x1d, /* |....| */
				0x01, 0x04, /* |..| */
				0x48, /* push 72 bytes */
			}, genesisTimestamp...),
			Sequence: 0xffffffff,
		},
	},
	TxOut: []*wire.TxOut{
		{
			Value: 0,
			PkScript: mustDecodeHex("41" +
				"04678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61de" +
				"b649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d" +
				"5f" + "ac"),
		},
	},
	LockTime: 0,
}

// genesisSolution is the Equihash solution of the main network genesis
// header.
var genesisSolution = mustDecodeHex(
	"009aaa951ca873376788d3002918d956e371bdf03c1afcfd8eea17867b5480d2" +
	"e59a2a4dd52ed0d091af0c0909aa66ce2da97266926a9ea69b9ccca389bc120d" +
	"9c4dbbae727ab9d6dfd1cd847df0ef0cc9bc989f11bdd6522429c15957daa3c5" +
	"a2612522ded69857c148c0638611a19287599b47683c714b5774d0fcb1341cf4" +
	"fc3a546a2441a19f02a55c6f9775749e57783b2abd5b25d41753d2f60892bbb4" +
	"c3173d7787dbf5e50267324db218a14dd65f71bb02cf2566d3201800f866701d" +
	"b8c221424b75c639de58e7e40705157ae7d10da708ec2b9e71b9bc1ad34854a7" +
	"bdf58d93766b6e291d3b545fa1f785a1a9829eccd525d16856f4317f0449d5c3" +
	"516736f1e564f17690f13d3c939ad5516f1db70194902c20afd939168037fa40" +
	"4ec962dfbe752f79ac87a2cc3fd07bcd94d1975b1849cc739c0bc144ae4e75ed" +
	"a1bbed5b5ef8f65966257ec7b1fc6bb600e12e1c65c8c13a505f35dd363e07b6" +
	"238211a0e502e36db5a620310b544360dd9b4a6cedabc34eeb530139daad50d4" +
	"a5b6eaf4d50be4ba10e970ce984fb705376a3b0b4bf3f3778600f14e739e0440" +
	"6106f707085ab87ca70598c032b6717a54a9fd8ef72fdd78fb41fa9d45ad685c" +
	"af77e0fc42e8e644634c24bc972f3ab0e3f0345854eda624045feb6bc9d20b5b" +
	"1fc6903ebc64026e51da598c0d8711c452131a8fd2bbe01403af20e5db88afcd" +
	"53b6107f001dae78b548d6a1581baca15359de83e54e75d8fc6374ca1edec17a" +
	"9f4b06931162f9952575c5c3fb5dfc70a0f793049e781926daaafd4f4d330cf7" +
	"d5635af1541f0d29e709a37c088d6d2e7aa09d15dfb9c2ae6c1ce661e85e9d89" +
	"772eb47cfea00c621b66faf8a48cfa970b898dbd77b14e7bf44b742c00f76d24" +
	"35f949f027132adb1e974551488f988e9fe379a0f86538ee59e26637a3d50bf4" +
	"00c7f52aa9457d77c3eb426628bb17909b26a6820d0772d4c6f74472f635e4c6" +
	"e72272ce01fc475df69e10371457c55e0fbdf3a392850b9924da9c9a55792325" +
	"c4318562593f0df8d39559065be03a22b1b6c21206aa1958a0d33257d89b74de" +
	"a42a11aabf8eddbfe6136ab649744b704eb3e3d473654b588927dd9f486c1cd0" +
	"2639cf656ccbf2c4869c2ed1f2ba4ec55e69a42d5af6b3605a0cdf987734727c" +
	"6fc1c1489870fb300139328c4d12eb6f5e8309cc09f5f3c29ab0957374113931" +
	"ec9a56e7579446f12faacda9bd50899a17bd0f78e89ed70a723fdadfb1f4bc33" +
	"17c8caa32757901604fb79ae48e22251c3b1691125ec5a99fabdf62b015bc817" +
	"e1c30c06565a7071510b014058a77856a150bf86ab0c565b8bbbed159e2fb862" +
	"c6215752bf3f0563e2bbbf23b0dbfb2de21b366b7e4cda212d69502643ca1f13" +
	"ce362eef7435d60530b9999027dd39cd01fd8e064f1ccf6b748a2739707c9f76" +
	"a041f82d3e046a9c184d83396f1f15b5a11eddb2baff40fc7b410f0c43e36ac7" +
	"d8ff0204219abe4610825191fbb2be15a508c839259bfd6a4c5204c779fad6c2" +
	"3bbd37f90709654a5b93c6f93b4c844be12cd6cd2200afbf600b2ae9b6c133d8" +
	"cdb3a85312a6d9948213c656db4d076d2bacd10577d7624be0c684bd1e5464bb" +
	"39006a524d971cd2223ae9e23dea12366355b3cc4c9f6b8104df6abd23029ac4" +
	"179f718e3a51eba69e4ebeec511312c423e0755b53f72ac18ef1fb445d7ab83b" +
	"0894435a4b1a9cd1b473792e0628fd40bef624b4fb6ba457494cd1137a4da9e4" +
	"4956143068af9db98135e6890ef589726f4f5fbd45a713a24736acf150b5fb7a" +
	"4c3448465322dccd7f3458c49cf2d0ef6dd7dd2ed1f1147f4a00af28ae39a73c" +
	"827a38309f59faf8970448436fbb14766a3247aac4d5c610db9a662b8cb5b3e2")

// genesisMerkleRoot is the hash of the first transaction in the genesis block
// for all networks.
var genesisMerkleRoot = genesisCoinbaseTx.TxHash()

// genesisBlock defines the genesis block of the block chain which serves as the
// public transaction ledger for the main network.
var genesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    4,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1478403829, 0),
		Bits:       0x1f07ffff,
		Nonce:      nonceFromUint64(0x21d),
		Solution:   genesisSolution,
	},
	Transactions: []*wire.MsgTx{&genesisCoinbaseTx},
}

// genesisHash is the hash of the first block in the block chain for the main
// network (genesis block).
var genesisHash = genesisBlock.BlockHash()

// testNetGenesisBlock defines the genesis block of the block chain which
// serves as the public transaction ledger for the test network.
var testNetGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    4,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1479443947, 0),
		Bits:       0x2007ffff,
		Nonce:      nonceFromUint64(0x13),
	},
	Transactions: []*wire.MsgTx{&genesisCoinbaseTx},
}

// testNetGenesisHash is the hash of the first block in the block chain for the
// test network.
var testNetGenesisHash = testNetGenesisBlock.BlockHash()

// regTestGenesisBlock defines the genesis block of the block chain which serves
// as the public transaction ledger for the regression test network.
var regTestGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    4,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1482971059, 0),
		Bits:       0x200f0f0f,
		Nonce:      nonceFromUint64(0x9),
	},
	Transactions: []*wire.MsgTx{&genesisCoinbaseTx},
}

// regTestGenesisHash is the hash of the first block in the block chain for the
// regression test network.
var regTestGenesisHash = regTestGenesisBlock.BlockHash()

// nonceFromUint64 returns a 256-bit little endian nonce holding v.
func nonceFromUint64(v uint64) chainhash.Hash {
	var nonce chainhash.Hash
	for i := 0; i < 8; i++ {
		nonce[i] = byte(v >> (8 * uint(i)))
	}
	return nonce
}

// mustDecodeHex decodes a hard coded hex string and panics on malformed
// input.
func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
