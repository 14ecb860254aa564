package feebump

import (
	"bytes"
	"encoding/hex"
	"math"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txfix/pkg/analyzer"
	"txfix/pkg/types"
)

const (
	hash20       = "751e76e8199196d454941c45d1b3a323f1433bd6"
	p2wpkhScript = "0014" + hash20
	p2wpkhAddr   = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	p2pkhScript  = "76a91462e907b15cbf27d5425399ebf6f0fb50ebb88f1888ac"
	p2pkhAddr    = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	p2shScript   = "a914" + hash20 + "87"
	p2shAddr     = "3CNHUhP3uyB9EUtRLsmvFUmvGdjGdkTxJw"
	otherTxid    = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
)

func txHex(t *testing.T, tx *wire.MsgTx) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

// fundingTx creates a signed-looking legacy transaction paying value to script.
func fundingTx(t *testing.T, script string, value int64) *wire.MsgTx {
	t.Helper()
	hash, err := chainhash.NewHashFromStr(otherTxid)
	require.NoError(t, err)
	pk, err := hex.DecodeString(script)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), bytes.Repeat([]byte{0x01}, 106), nil))
	tx.AddTxOut(wire.NewTxOut(value, pk))
	return tx
}

func decode(t *testing.T, res *types.PsbtBuildResult) *psbt.Packet {
	t.Helper()
	packet, err := psbt.NewFromRawBytes(strings.NewReader(res.PsbtBase64), true)
	require.NoError(t, err)

	raw, err := hex.DecodeString(res.PsbtHex)
	require.NoError(t, err)
	fromHex, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	require.NoError(t, err)
	assert.Equal(t, packet.UnsignedTx.TxHash(), fromHex.UnsignedTx.TxHash())

	for _, in := range packet.Inputs {
		assert.Empty(t, in.PartialSigs)
		assert.Empty(t, in.FinalScriptSig)
		assert.Empty(t, in.FinalScriptWitness)
	}
	return packet
}

// legacyTx spends a P2PKH output of funding: 40,000 sats to a P2WPKH payee
// and 58,500 sats of P2PKH change, paying 1,500 sats over 225 vB.
func legacyTx(funding *wire.MsgTx) *types.Transaction {
	return &types.Transaction{
		Txid:     "ab" + strings.Repeat("00", 31),
		Version:  2,
		Locktime: 840_000,
		Weight:   900,
		Fee:      1_500,
		Vin: []types.Vin{{
			Txid:      funding.TxHash().String(),
			Vout:      0,
			Prevout:   &types.Vout{ScriptPubKey: p2pkhScript, ScriptPubKeyType: types.ScriptP2PKH, ScriptPubKeyAddress: p2pkhAddr, Value: 100_000},
			ScriptSig: strings.Repeat("01", 106),
			Sequence:  0xffffffff,
		}},
		Vout: []types.Vout{
			{ScriptPubKey: p2wpkhScript, ScriptPubKeyType: types.ScriptP2WPKH, ScriptPubKeyAddress: p2wpkhAddr, Value: 40_000},
			{ScriptPubKey: p2pkhScript, ScriptPubKeyType: types.ScriptP2PKH, ScriptPubKeyAddress: p2pkhAddr, Value: 58_500},
		},
	}
}

func TestBuildRBFLegacy(t *testing.T) {
	funding := fundingTx(t, p2pkhScript, 100_000)
	tx := legacyTx(funding)

	res, err := BuildRBF(RBFParams{
		Tx:            tx,
		InputTxHex:    map[string]string{funding.TxHash().String(): txHex(t, funding)},
		TargetFeeRate: 20,
		Network:       types.Mainnet,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_500), res.Fee)
	assert.Equal(t, int64(4_500), res.NewFee)
	assert.Equal(t, int64(3_000), res.AdditionalFee)
	assert.Greater(t, res.NewFee, res.Fee)
	assert.Equal(t, 1, res.ChangeOutputIndex)
	assert.Equal(t, int64(225), res.VSize)
	assert.Equal(t, 20.0, res.EffectiveFeeRate)
	assert.Contains(t, res.Warnings, types.Warning{Code: "RBF_SIGNALING"})

	packet := decode(t, res)
	unsigned := packet.UnsignedTx
	assert.Equal(t, int32(2), unsigned.Version)
	assert.Equal(t, uint32(840_000), unsigned.LockTime)
	require.Len(t, unsigned.TxIn, 1)
	assert.Equal(t, funding.TxHash(), unsigned.TxIn[0].PreviousOutPoint.Hash)
	assert.Equal(t, analyzer.ReplaceableSequence, unsigned.TxIn[0].Sequence)
	require.Len(t, unsigned.TxOut, 2)
	assert.Equal(t, int64(40_000), unsigned.TxOut[0].Value)
	assert.Equal(t, int64(55_500), unsigned.TxOut[1].Value)

	require.NotNil(t, packet.Inputs[0].NonWitnessUtxo)
	assert.Equal(t, funding.TxHash(), packet.Inputs[0].NonWitnessUtxo.TxHash())
	assert.Nil(t, packet.Inputs[0].WitnessUtxo)
}

func TestBuildRBFNewFeeAlwaysHigher(t *testing.T) {
	funding := fundingTx(t, p2pkhScript, 100_000)
	for _, rate := range []float64{6.67, 7, 12.5, 50, 100, 250} {
		res, err := BuildRBF(RBFParams{
			Tx:            legacyTx(funding),
			InputTxHex:    map[string]string{funding.TxHash().String(): txHex(t, funding)},
			TargetFeeRate: rate,
		})
		require.NoError(t, err, "rate %v", rate)
		assert.Greater(t, res.NewFee, res.Fee, "rate %v", rate)
	}
}

func TestBuildRBFErrors(t *testing.T) {
	funding := fundingTx(t, p2pkhScript, 100_000)
	inputs := map[string]string{funding.TxHash().String(): txHex(t, funding)}

	t.Run("fee not higher", func(t *testing.T) {
		// 5 sat/vB over 225 vB is 1,125 sats, below the original 1,500
		_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), InputTxHex: inputs, TargetFeeRate: 5})
		assert.ErrorIs(t, err, ErrFeeNotHigher)

		_, err = BuildRBF(RBFParams{Tx: legacyTx(funding), InputTxHex: inputs, TargetFeeRate: 6})
		assert.ErrorIs(t, err, ErrFeeNotHigher)
		assert.Contains(t, err.Error(), "1,350 sats at 6 sat/vB does not exceed 1,500 sats")
	})

	t.Run("rate beyond supply", func(t *testing.T) {
		_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), InputTxHex: inputs, TargetFeeRate: 1e20})
		assert.ErrorIs(t, err, ErrChangeOutputTooSmall)
	})

	t.Run("non-finite rate", func(t *testing.T) {
		for _, rate := range []float64{math.NaN(), math.Inf(1), -20} {
			_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), InputTxHex: inputs, TargetFeeRate: rate})
			assert.ErrorIs(t, err, ErrInvalidParams, "rate %v", rate)
		}
	})

	t.Run("change too small", func(t *testing.T) {
		_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), InputTxHex: inputs, TargetFeeRate: 265})
		assert.ErrorIs(t, err, ErrChangeOutputTooSmall)
	})

	t.Run("change not found", func(t *testing.T) {
		tx := legacyTx(funding)
		for i := range tx.Vout {
			tx.Vout[i].ScriptPubKeyAddress = ""
		}
		_, err := BuildRBF(RBFParams{Tx: tx, InputTxHex: inputs, TargetFeeRate: 20})
		assert.ErrorIs(t, err, ErrChangeOutputNotFound)
	})

	t.Run("missing raw tx hex", func(t *testing.T) {
		_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), TargetFeeRate: 20})
		assert.ErrorIs(t, err, ErrMissingRawTxHex)
	})

	t.Run("raw tx hex of another transaction", func(t *testing.T) {
		other := fundingTx(t, p2pkhScript, 99_999)
		_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), TxHex: txHex(t, other), TargetFeeRate: 20})
		assert.ErrorIs(t, err, ErrMissingRawTxHex)
	})

	t.Run("confirmed", func(t *testing.T) {
		tx := legacyTx(funding)
		tx.Status.Confirmed = true
		_, err := BuildRBF(RBFParams{Tx: tx, InputTxHex: inputs, TargetFeeRate: 20})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("bad rate", func(t *testing.T) {
		_, err := BuildRBF(RBFParams{Tx: legacyTx(funding), InputTxHex: inputs})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestBuildRBFSegwit(t *testing.T) {
	tx := &types.Transaction{
		Txid:    "cd" + strings.Repeat("00", 31),
		Version: 2,
		Weight:  561,
		Fee:     1_000,
		Vin: []types.Vin{{
			Txid:     otherTxid,
			Vout:     3,
			Prevout:  &types.Vout{ScriptPubKey: p2wpkhScript, ScriptPubKeyType: types.ScriptP2WPKH, ScriptPubKeyAddress: p2wpkhAddr, Value: 100_000},
			Witness:  []string{strings.Repeat("30", 71), strings.Repeat("02", 33)},
			Sequence: 0xfffffffd,
		}},
		Vout: []types.Vout{
			{ScriptPubKey: p2pkhScript, ScriptPubKeyType: types.ScriptP2PKH, ScriptPubKeyAddress: p2pkhAddr, Value: 30_000},
			{ScriptPubKey: p2wpkhScript, ScriptPubKeyType: types.ScriptP2WPKH, ScriptPubKeyAddress: p2wpkhAddr, Value: 69_000},
		},
	}

	res, err := BuildRBF(RBFParams{Tx: tx, TargetFeeRate: 10})
	require.NoError(t, err)
	// ceil(561/4) = 141 vB
	assert.Equal(t, int64(141), res.VSize)
	assert.Equal(t, int64(1_410), res.NewFee)
	assert.Equal(t, 1, res.ChangeOutputIndex)

	packet := decode(t, res)
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)
	assert.Equal(t, int64(100_000), packet.Inputs[0].WitnessUtxo.Value)
	assert.Nil(t, packet.Inputs[0].NonWitnessUtxo)
	assert.Equal(t, uint32(0xfffffffd), packet.UnsignedTx.TxIn[0].Sequence)
	assert.Equal(t, int64(68_590), packet.UnsignedTx.TxOut[1].Value)
}

func TestBuildRBFNestedSegwit(t *testing.T) {
	redeem := p2wpkhScript
	tx := &types.Transaction{
		Txid:    "ef" + strings.Repeat("00", 31),
		Version: 2,
		Weight:  664,
		Fee:     1_000,
		Vin: []types.Vin{{
			Txid:      otherTxid,
			Vout:      1,
			Prevout:   &types.Vout{ScriptPubKey: p2shScript, ScriptPubKeyType: types.ScriptP2SH, ScriptPubKeyAddress: p2shAddr, Value: 100_000},
			ScriptSig: "16" + redeem,
			Witness:   []string{strings.Repeat("30", 71), strings.Repeat("02", 33)},
			Sequence:  0xfffffffe,
		}},
		Vout: []types.Vout{
			{ScriptPubKey: p2shScript, ScriptPubKeyType: types.ScriptP2SH, ScriptPubKeyAddress: p2shAddr, Value: 99_000},
		},
	}

	res, err := BuildRBF(RBFParams{Tx: tx, TargetFeeRate: 10})
	require.NoError(t, err)
	packet := decode(t, res)
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)
	assert.Equal(t, redeem, hex.EncodeToString(packet.Inputs[0].RedeemScript))
	assert.Equal(t, analyzer.ReplaceableSequence, packet.UnsignedTx.TxIn[0].Sequence)

	tx.Vin[0].ScriptSig = "4c"
	_, err = BuildRBF(RBFParams{Tx: tx, TargetFeeRate: 10})
	assert.ErrorIs(t, err, analyzer.ErrScriptParse)

	// OP_TRUE wrapped in P2SH is not a witness program
	tx.Vin[0].ScriptSig = "0151"
	_, err = BuildRBF(RBFParams{Tx: tx, TargetFeeRate: 10})
	assert.ErrorIs(t, err, analyzer.ErrScriptParse)
}

// segwitParent pays 2,000 sats over 100 vB with one P2WPKH output.
func segwitParent(value int64) *types.Transaction {
	return &types.Transaction{
		Txid:   otherTxid,
		Weight: 400,
		Fee:    2_000,
		Vin:    []types.Vin{{Txid: strings.Repeat("11", 32), Sequence: 0xfffffffd}},
		Vout: []types.Vout{
			{ScriptPubKey: p2wpkhScript, ScriptPubKeyType: types.ScriptP2WPKH, ScriptPubKeyAddress: p2wpkhAddr, Value: value},
		},
	}
}

func candidate(tx *types.Transaction, idx uint32) types.CpfpCandidate {
	out := tx.Vout[idx]
	return types.CpfpCandidate{OutputIndex: idx, Value: out.Value, Address: out.ScriptPubKeyAddress, ScriptType: out.ScriptPubKeyType}
}

func TestBuildCPFP(t *testing.T) {
	parent := segwitParent(50_000)
	res, err := BuildCPFP(CPFPParams{
		Tx:            parent,
		Candidate:     candidate(parent, 0),
		TargetFeeRate: 50,
		Network:       types.Mainnet,
	})
	require.NoError(t, err)

	// 110 vB child: 50 * (100 + 110) - 2,000
	assert.Equal(t, int64(110), res.VSize)
	assert.Equal(t, int64(2_000), res.Fee)
	assert.Equal(t, int64(8_500), res.AdditionalFee)
	assert.Equal(t, int64(10_500), res.NewFee)
	assert.Equal(t, 0, res.ChangeOutputIndex)
	assert.InDelta(t, 50.0, res.EffectiveFeeRate, 1e-9)

	packet := decode(t, res)
	child := packet.UnsignedTx
	require.Len(t, child.TxIn, 1)
	assert.Equal(t, otherTxid, child.TxIn[0].PreviousOutPoint.Hash.String())
	assert.Equal(t, uint32(0), child.TxIn[0].PreviousOutPoint.Index)
	require.Len(t, child.TxOut, 1)
	assert.Equal(t, int64(41_500), child.TxOut[0].Value)
	assert.Equal(t, p2wpkhScript, hex.EncodeToString(child.TxOut[0].PkScript))
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)
	assert.Equal(t, int64(50_000), packet.Inputs[0].WitnessUtxo.Value)
}

func TestBuildCPFPDestinationAndFloor(t *testing.T) {
	parent := segwitParent(50_000)

	// The parent alone beats 1 sat/vB; the child still pays its own relay fee.
	res, err := BuildCPFP(CPFPParams{
		Tx:            parent,
		Candidate:     candidate(parent, 0),
		TargetFeeRate: 1,
		Destination:   p2pkhAddr,
	})
	require.NoError(t, err)
	assert.Greater(t, res.NewFee, res.Fee)
	assert.Positive(t, res.AdditionalFee)

	packet := decode(t, res)
	assert.Equal(t, p2pkhScript, hex.EncodeToString(packet.UnsignedTx.TxOut[0].PkScript))

	_, err = BuildCPFP(CPFPParams{
		Tx:            parent,
		Candidate:     candidate(parent, 0),
		TargetFeeRate: 10,
		Destination:   "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
	})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestBuildCPFPErrors(t *testing.T) {
	t.Run("insufficient value", func(t *testing.T) {
		parent := segwitParent(8_700)
		_, err := BuildCPFP(CPFPParams{Tx: parent, Candidate: candidate(parent, 0), TargetFeeRate: 50})
		assert.ErrorIs(t, err, ErrInsufficientValue)
	})

	t.Run("rate beyond supply", func(t *testing.T) {
		parent := segwitParent(50_000)
		_, err := BuildCPFP(CPFPParams{Tx: parent, Candidate: candidate(parent, 0), TargetFeeRate: 1e20})
		assert.ErrorIs(t, err, ErrInsufficientValue)
	})

	t.Run("non-finite rate", func(t *testing.T) {
		parent := segwitParent(50_000)
		_, err := BuildCPFP(CPFPParams{Tx: parent, Candidate: candidate(parent, 0), TargetFeeRate: math.NaN()})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("unknown output", func(t *testing.T) {
		parent := segwitParent(50_000)
		c := candidate(parent, 0)
		c.OutputIndex = 4
		_, err := BuildCPFP(CPFPParams{Tx: parent, Candidate: c, TargetFeeRate: 50})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("value mismatch", func(t *testing.T) {
		parent := segwitParent(50_000)
		c := candidate(parent, 0)
		c.Value = 60_000
		_, err := BuildCPFP(CPFPParams{Tx: parent, Candidate: c, TargetFeeRate: 50})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestBuildCPFPLegacy(t *testing.T) {
	funding := fundingTx(t, p2pkhScript, 100_000)
	parent := &types.Transaction{
		Txid:   funding.TxHash().String(),
		Weight: 764,
		Fee:    500,
		Vin:    []types.Vin{{Txid: otherTxid, Sequence: 0xffffffff}},
		Vout: []types.Vout{
			{ScriptPubKey: p2pkhScript, ScriptPubKeyType: types.ScriptP2PKH, ScriptPubKeyAddress: p2pkhAddr, Value: 100_000},
		},
	}

	res, err := BuildCPFP(CPFPParams{Tx: parent, TxHex: txHex(t, funding), Candidate: candidate(parent, 0), TargetFeeRate: 20})
	require.NoError(t, err)
	packet := decode(t, res)
	require.NotNil(t, packet.Inputs[0].NonWitnessUtxo)
	assert.Equal(t, funding.TxHash(), packet.Inputs[0].NonWitnessUtxo.TxHash())

	_, err = BuildCPFP(CPFPParams{Tx: parent, Candidate: candidate(parent, 0), TargetFeeRate: 20})
	assert.ErrorIs(t, err, ErrMissingRawTxHex)
}

func TestEncodeQR(t *testing.T) {
	parent := segwitParent(50_000)
	res, err := BuildCPFP(CPFPParams{Tx: parent, Candidate: candidate(parent, 0), TargetFeeRate: 50})
	require.NoError(t, err)

	png, err := EncodeQR(res, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = EncodeQR(&types.PsbtBuildResult{}, 256)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = EncodeQR(&types.PsbtBuildResult{PsbtBase64: strings.Repeat("cHNidP8B", 600)}, 256)
	assert.Error(t, err)
}
