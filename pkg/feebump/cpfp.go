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

// CPFPParams describes a child spending one output of a stuck parent.
type CPFPParams struct {
	Tx *types.Transaction
	// TxHex is the raw hex of the parent, needed when the candidate is not
	// a native segwit output.
	TxHex     string
	Candidate types.CpfpCandidate
	// TargetFeeRate is the rate the parent and child should pay together.
	TargetFeeRate float64
	// Destination receives the child's output. Defaults to the candidate's
	// own address.
	Destination string
	Network     types.Network
}

// BuildCPFP builds an unsigned one-input, one-output child of p.Tx whose fee
// lifts the parent+child package to the target rate.
func BuildCPFP(p CPFPParams) (*types.PsbtBuildResult, error) {
	res, err := buildCPFP(p)
	observe("cpfp", err)
	return res, err
}

func buildCPFP(p CPFPParams) (*types.PsbtBuildResult, error) {
	tx := p.Tx
	switch {
	case tx == nil:
		return nil, fmt.Errorf("%w: no transaction", ErrInvalidParams)
	case tx.Status.Confirmed:
		return nil, fmt.Errorf("%w: transaction %s is already confirmed", ErrInvalidParams, tx.Txid)
	case !(p.TargetFeeRate > 0) || math.IsInf(p.TargetFeeRate, 1):
		return nil, fmt.Errorf("%w: fee rate must be positive and finite", ErrInvalidParams)
	case int(p.Candidate.OutputIndex) >= len(tx.Vout):
		return nil, fmt.Errorf("%w: transaction has no output %d", ErrInvalidParams, p.Candidate.OutputIndex)
	}

	parentOut := &tx.Vout[p.Candidate.OutputIndex]
	if parentOut.Value != p.Candidate.Value {
		return nil, fmt.Errorf("%w: candidate value %d does not match output %d (%d sats)",
			ErrInvalidParams, p.Candidate.Value, p.Candidate.OutputIndex, parentOut.Value)
	}

	dest := p.Destination
	if dest == "" {
		dest = p.Candidate.Address
	}
	destScript, err := analyzer.ScriptForAddress(dest, p.Network.Params())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	childVSize := fees.ChildVSize(parentOut.ScriptPubKeyType, destScript)
	cost := fees.CalculateCpfpCost(tx, childVSize, p.TargetFeeRate)
	outValue := parentOut.Value - cost.ChildFee
	if dust := analyzer.DustLimit(analyzer.ClassifyOutputScript(destScript)); outValue < dust {
		return nil, fmt.Errorf("%w: %d sats cannot cover a %d sat fee and a %d sat output",
			ErrInsufficientValue, parentOut.Value, cost.ChildFee, dust)
	}

	op, err := outPoint(tx.Txid, p.Candidate.OutputIndex)
	if err != nil {
		return nil, err
	}
	child := wire.NewMsgTx(2)
	in := wire.NewTxIn(op, nil, nil)
	in.Sequence = analyzer.ReplaceableSequence
	child.AddTxIn(in)
	child.AddTxOut(wire.NewTxOut(outValue, destScript))

	packet, err := psbt.NewFromUnsignedTx(child)
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, fmt.Errorf("create psbt updater: %w", err)
	}

	if parentOut.ScriptPubKeyType.IsSegWit() {
		prev, err := txOut(parentOut)
		if err != nil {
			return nil, err
		}
		if err := updater.AddInWitnessUtxo(prev, 0); err != nil {
			return nil, err
		}
	} else {
		parent, err := previousTx(tx.Txid, p.Candidate.OutputIndex, p.TxHex)
		if err != nil {
			return nil, err
		}
		if err := updater.AddInNonWitnessUtxo(parent, 0); err != nil {
			return nil, err
		}
	}

	res, err := serialize(packet, cost.ChildFee, childVSize)
	if err != nil {
		return nil, err
	}
	res.Fee = tx.Fee
	res.NewFee = tx.Fee + cost.ChildFee
	res.AdditionalFee = cost.ChildFee
	res.ChangeOutputIndex = 0
	res.EffectiveFeeRate = cost.PackageFeeRate

	log.Infof("CPFP %s:%d: child pays %s (%.1f sat/vB), package %.1f sat/vB",
		tx.Txid, p.Candidate.OutputIndex, fees.FormatSats(cost.ChildFee), cost.EffectiveChildFeeRate, cost.PackageFeeRate)
	return res, nil
}
