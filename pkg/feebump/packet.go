package feebump

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"txfix/pkg/analyzer"
	"txfix/pkg/metrics"
	"txfix/pkg/parser"
	"txfix/pkg/types"
	"txfix/pkg/utils"
)

// serialize encodes an unsigned packet in both interchange forms and fills
// in the fields shared by every build result.
func serialize(packet *psbt.Packet, fee int64, vsize int64) (*types.PsbtBuildResult, error) {
	b64, err := packet.B64Encode()
	if err != nil {
		return nil, fmt.Errorf("encode psbt: %w", err)
	}
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize psbt: %w", err)
	}

	var rate float64
	if vsize > 0 {
		rate = float64(fee) / float64(vsize)
	}
	return &types.PsbtBuildResult{
		PsbtBase64: b64,
		PsbtHex:    hex.EncodeToString(buf.Bytes()),
		VSize:      vsize,
		Warnings:   analyzer.GenerateWarnings(fee, rate, packet.UnsignedTx),
	}, nil
}

func outPoint(txid string, index uint32) (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("%w: txid %q: %w", ErrInvalidParams, txid, err)
	}
	return wire.NewOutPoint(hash, index), nil
}

func txOut(out *types.Vout) (*wire.TxOut, error) {
	script, err := utils.HexToBytes(out.ScriptPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: scriptpubkey: %w", ErrInvalidParams, err)
	}
	return wire.NewTxOut(out.Value, script), nil
}

// previousTx decodes the full transaction that created txid:vout. Only a
// transaction that hashes to txid and has that output is accepted.
func previousTx(txid string, vout uint32, rawHex string) (*wire.MsgTx, error) {
	if rawHex == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRawTxHex, txid)
	}
	tx, err := parser.DecodeRawTx(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingRawTxHex, txid, err)
	}
	if got := tx.TxHash().String(); got != txid {
		return nil, fmt.Errorf("%w: %s (hex decodes to %s)", ErrMissingRawTxHex, txid, got)
	}
	if int(vout) >= len(tx.TxOut) {
		return nil, fmt.Errorf("%w: %s has no output %d", ErrMissingRawTxHex, txid, vout)
	}
	return tx, nil
}

func observe(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Debugf("%s build failed: %v", method, err)
	}
	metrics.PsbtBuildsTotal.WithLabelValues(method, outcome).Inc()
}
