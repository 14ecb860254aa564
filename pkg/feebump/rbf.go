package feebump

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"txfix/pkg/analyzer"
	"txfix/pkg/fees"
	"txfix/pkg/types"
)

// RBFParams describes a replacement of an unconfirmed transaction.
type RBFParams struct {
	Tx *types.Transaction
	// TxHex is the raw hex of Tx itself.
	TxHex string
	// InputTxHex maps previous txids to their raw hex, for legacy inputs.
	InputTxHex    map[string]string
	TargetFeeRate float64
	Network       types.Network
}

// BuildRBF builds an unsigned replacement of p.Tx that spends the same
// inputs and pays the fee increase out of the change output.
func BuildRBF(p RBFParams) (*types.PsbtBuildResult, error) {
	res, err := buildRBF(p)
	observe("rbf", err)
	return res, err
}

func buildRBF(p RBFParams) (*types.PsbtBuildResult, error) {
	tx := p.Tx
	switch {
	case tx == nil:
		return nil, fmt.Errorf("%w: no transaction", ErrInvalidParams)
	case len(tx.Vin) == 0 || len(tx.Vout) == 0:
		return nil, fmt.Errorf("%w: transaction has no inputs or outputs", ErrInvalidParams)
	case tx.Status.Confirmed:
		return nil, fmt.Errorf("%w: transaction %s is already confirmed", ErrInvalidParams, tx.Txid)
	case !(p.TargetFeeRate > 0) || math.IsInf(p.TargetFeeRate, 1):
		return nil, fmt.Errorf("%w: fee rate must be positive and finite", ErrInvalidParams)
	}

	cost := fees.CalculateRbfCost(tx, p.TargetFeeRate)
	if cost.NewFee <= tx.Fee {
		return nil, fmt.Errorf("%w: %s at %s does not exceed %s", ErrFeeNotHigher,
			fees.FormatSats(cost.NewFee), fees.FormatFeeRate(p.TargetFeeRate), fees.FormatSats(tx.Fee))
	}
	increase := cost.NewFee - tx.Fee

	changeIdx := analyzer.IdentifyChangeOutput(tx)
	if changeIdx < 0 {
		return nil, ErrChangeOutputNotFound
	}
	change := tx.Vout[changeIdx]
	newChange := change.Value - increase
	if dust := analyzer.DustLimit(change.ScriptPubKeyType); newChange < dust {
		return nil, fmt.Errorf("%w: output %d would hold %d sats, dust limit is %d",
			ErrChangeOutputTooSmall, changeIdx, newChange, dust)
	}

	unsigned := wire.NewMsgTx(tx.Version)
	unsigned.LockTime = tx.Locktime
	for i, in := range tx.Vin {
		if in.IsCoinbase {
			return nil, fmt.Errorf("%w: input %d is a coinbase", ErrInvalidParams, i)
		}
		op, err := outPoint(in.Txid, in.Vout)
		if err != nil {
			return nil, err
		}
		txIn := wire.NewTxIn(op, nil, nil)
		txIn.Sequence = analyzer.ReplacementSequence(in.Sequence)
		unsigned.AddTxIn(txIn)
	}
	for i := range tx.Vout {
		out, err := txOut(&tx.Vout[i])
		if err != nil {
			return nil, err
		}
		if i == changeIdx {
			out.Value = newChange
		}
		unsigned.AddTxOut(out)
	}

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, fmt.Errorf("create psbt updater: %w", err)
	}
	for i := range tx.Vin {
		if err := addInputUtxo(updater, i, &tx.Vin[i], p); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	res, err := serialize(packet, cost.NewFee, cost.VSize)
	if err != nil {
		return nil, err
	}
	res.Fee = tx.Fee
	res.NewFee = cost.NewFee
	res.AdditionalFee = increase
	res.ChangeOutputIndex = changeIdx
	res.EffectiveFeeRate = float64(cost.NewFee) / float64(cost.VSize)

	log.Infof("RBF %s: fee %s -> %s, change output %d now %s",
		tx.Txid, fees.FormatSats(tx.Fee), fees.FormatSats(cost.NewFee), changeIdx, fees.FormatSats(newChange))
	return res, nil
}

// addInputUtxo attaches the signing data for one input: the spent output for
// segwit spends, plus the redeem script for wrapped segwit, or the whole
// previous transaction for legacy spends.
func addInputUtxo(u *psbt.Updater, idx int, in *types.Vin, p RBFParams) error {
	if in.Prevout == nil {
		return fmt.Errorf("%w: no prevout for %s:%d", ErrInvalidParams, in.Txid, in.Vout)
	}
	prevType := in.Prevout.ScriptPubKeyType

	switch {
	case prevType.IsSegWit():
		out, err := txOut(in.Prevout)
		if err != nil {
			return err
		}
		return u.AddInWitnessUtxo(out, idx)

	case prevType == types.ScriptP2SH && len(in.Witness) > 0:
		redeem, err := analyzer.ExtractRedeemScriptHex(in.ScriptSig)
		if err != nil {
			return err
		}
		if !analyzer.IsNestedWitnessProgram(redeem) {
			return fmt.Errorf("%w: redeem script %x is not a v0 witness program",
				analyzer.ErrScriptParse, redeem)
		}
		out, err := txOut(in.Prevout)
		if err != nil {
			return err
		}
		if err := u.AddInWitnessUtxo(out, idx); err != nil {
			return err
		}
		return u.AddInRedeemScript(redeem, idx)

	default:
		rawHex := p.InputTxHex[in.Txid]
		if rawHex == "" {
			rawHex = p.TxHex
		}
		prev, err := previousTx(in.Txid, in.Vout, rawHex)
		if err != nil {
			return err
		}
		return u.AddInNonWitnessUtxo(prev, idx)
	}
}
