package analyzer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"txfix/pkg/types"
	"txfix/pkg/utils"
)

// ErrScriptParse is wrapped by every scriptSig parsing failure.
var ErrScriptParse = errors.New("script parse error")

const (
	opPushData1 = 0x4c
	opPushData2 = 0x4d
)

// ClassifyOutputScript determines the script type of an output
func ClassifyOutputScript(scriptPubkey []byte) types.ScriptType {
	n := len(scriptPubkey)
	if n == 0 {
		return types.ScriptUnknown
	}

	// P2PKH: OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
	if n == 25 &&
		scriptPubkey[0] == 0x76 && // OP_DUP
		scriptPubkey[1] == 0xa9 && // OP_HASH160
		scriptPubkey[2] == 0x14 && // Push 20 bytes
		scriptPubkey[23] == 0x88 && // OP_EQUALVERIFY
		scriptPubkey[24] == 0xac { // OP_CHECKSIG
		return types.ScriptP2PKH
	}

	// P2SH: OP_HASH160 <20 bytes> OP_EQUAL
	if n == 23 &&
		scriptPubkey[0] == 0xa9 && // OP_HASH160
		scriptPubkey[1] == 0x14 && // Push 20 bytes
		scriptPubkey[22] == 0x87 { // OP_EQUAL
		return types.ScriptP2SH
	}

	// P2WPKH: OP_0 <20 bytes>
	if n == 22 && scriptPubkey[0] == 0x00 && scriptPubkey[1] == 0x14 {
		return types.ScriptP2WPKH
	}

	// P2WSH: OP_0 <32 bytes>
	if n == 34 && scriptPubkey[0] == 0x00 && scriptPubkey[1] == 0x20 {
		return types.ScriptP2WSH
	}

	// P2TR: OP_1 <32 bytes>
	if n == 34 && scriptPubkey[0] == 0x51 && scriptPubkey[1] == 0x20 {
		return types.ScriptP2TR
	}

	// P2A: OP_1 <0x4e73>
	if n == 4 && scriptPubkey[0] == 0x51 && scriptPubkey[1] == 0x02 &&
		scriptPubkey[2] == 0x4e && scriptPubkey[3] == 0x73 {
		return types.ScriptAnchor
	}

	// P2PK: <33 or 65 byte pubkey> OP_CHECKSIG
	if (n == 35 && scriptPubkey[0] == 0x21 || n == 67 && scriptPubkey[0] == 0x41) &&
		scriptPubkey[n-1] == 0xac {
		return types.ScriptP2PK
	}

	// Bare multisig: OP_m <pubkeys...> OP_n OP_CHECKMULTISIG
	if n >= 37 && scriptPubkey[0] >= 0x51 && scriptPubkey[0] <= 0x60 &&
		scriptPubkey[n-2] >= 0x51 && scriptPubkey[n-2] <= 0x60 &&
		scriptPubkey[n-1] == 0xae {
		return types.ScriptMultisig
	}

	// OP_RETURN
	if scriptPubkey[0] == 0x6a {
		return types.ScriptOpReturn
	}

	return types.ScriptUnknown
}

// ExtractRedeemScript returns the data of the leading push of a scriptSig.
// For a P2SH-wrapped SegWit input this is the redeem script, e.g.
// 0x16 <0014{20-byte-hash}> for P2SH-P2WPKH.
func ExtractRedeemScript(scriptSig []byte) ([]byte, error) {
	if len(scriptSig) == 0 {
		return nil, fmt.Errorf("%w: empty scriptsig, cannot extract redeem script", ErrScriptParse)
	}

	var dataStart, dataLen int
	switch op := scriptSig[0]; {
	case op >= 0x01 && op <= 0x4b:
		// Direct push: the opcode is the length
		dataLen = int(op)
		dataStart = 1

	case op == opPushData1:
		if len(scriptSig) < 2 {
			return nil, fmt.Errorf("%w: truncated OP_PUSHDATA1 in scriptsig", ErrScriptParse)
		}
		dataLen = int(scriptSig[1])
		dataStart = 2

	case op == opPushData2:
		if len(scriptSig) < 3 {
			return nil, fmt.Errorf("%w: truncated OP_PUSHDATA2 in scriptsig", ErrScriptParse)
		}
		dataLen = int(binary.LittleEndian.Uint16(scriptSig[1:3]))
		dataStart = 3

	default:
		return nil, fmt.Errorf("%w: unexpected opcode 0x%02x in scriptsig", ErrScriptParse, op)
	}

	if dataStart+dataLen > len(scriptSig) {
		return nil, fmt.Errorf("%w: scriptsig push length %d exceeds buffer", ErrScriptParse, dataLen)
	}

	out := make([]byte, dataLen)
	copy(out, scriptSig[dataStart:dataStart+dataLen])
	return out, nil
}

// ExtractRedeemScriptHex is ExtractRedeemScript for a hex-encoded scriptSig.
func ExtractRedeemScriptHex(scriptSigHex string) ([]byte, error) {
	b, err := utils.HexToBytes(scriptSigHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptParse, err)
	}
	return ExtractRedeemScript(b)
}
