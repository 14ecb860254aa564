package types

import (
	"fmt"
	"strings"
)

// ScriptType is the standard classification of an output script.
type ScriptType uint8

const (
	ScriptUnknown ScriptType = iota
	ScriptP2PK
	ScriptP2PKH
	ScriptP2SH
	ScriptP2WPKH
	ScriptP2WSH
	ScriptP2TR
	ScriptMultisig
	ScriptOpReturn
	ScriptAnchor
)

// String returns the provider's name for the script type.
func (t ScriptType) String() string {
	switch t {
	case ScriptP2PK:
		return "p2pk"
	case ScriptP2PKH:
		return "p2pkh"
	case ScriptP2SH:
		return "p2sh"
	case ScriptP2WPKH:
		return "v0_p2wpkh"
	case ScriptP2WSH:
		return "v0_p2wsh"
	case ScriptP2TR:
		return "v1_p2tr"
	case ScriptMultisig:
		return "multisig"
	case ScriptOpReturn:
		return "op_return"
	case ScriptAnchor:
		return "anchor"
	case ScriptUnknown:
		return "unknown"
	}
	return "unknown"
}

// IsSegWit reports whether spending an output of this type is a native
// witness spend.
func (t ScriptType) IsSegWit() bool {
	switch t {
	case ScriptP2WPKH, ScriptP2WSH, ScriptP2TR, ScriptAnchor:
		return true
	case ScriptUnknown, ScriptP2PK, ScriptP2PKH, ScriptP2SH, ScriptMultisig, ScriptOpReturn:
		return false
	}
	return false
}

// ParseScriptType maps a provider script type name onto a ScriptType.
// Unrecognized names map to ScriptUnknown.
func ParseScriptType(s string) ScriptType {
	switch strings.ToLower(s) {
	case "p2pk":
		return ScriptP2PK
	case "p2pkh":
		return ScriptP2PKH
	case "p2sh":
		return ScriptP2SH
	case "v0_p2wpkh", "p2wpkh":
		return ScriptP2WPKH
	case "v0_p2wsh", "p2wsh":
		return ScriptP2WSH
	case "v1_p2tr", "p2tr":
		return ScriptP2TR
	case "multisig":
		return ScriptMultisig
	case "op_return":
		return ScriptOpReturn
	case "anchor":
		return ScriptAnchor
	}
	return ScriptUnknown
}

func (t ScriptType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ScriptType) UnmarshalText(b []byte) error {
	*t = ParseScriptType(string(b))
	return nil
}

// CheckStatus is the outcome class of a diagnostic check.
type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusWarn    CheckStatus = "warn"
	StatusFail    CheckStatus = "fail"
	StatusInfo    CheckStatus = "info"
	StatusRunning CheckStatus = "running"
)

// Icon identifies the glyph shown next to a check result.
type Icon uint8

const (
	IconCheck Icon = iota
	IconCircle
	IconWarning
	IconCross
	IconSpinner
)

// Glyph renders the icon as a single character.
func (i Icon) Glyph() string {
	switch i {
	case IconCheck:
		return "✓"
	case IconCircle:
		return "○"
	case IconWarning:
		return "⚠"
	case IconCross:
		return "✗"
	case IconSpinner:
		return "◌"
	}
	return "?"
}

func (i Icon) MarshalText() ([]byte, error) {
	return []byte(i.Glyph()), nil
}

func (i *Icon) UnmarshalText(b []byte) error {
	for _, c := range []Icon{IconCheck, IconCircle, IconWarning, IconCross, IconSpinner} {
		if c.Glyph() == string(b) {
			*i = c
			return nil
		}
	}
	return fmt.Errorf("unknown icon %q", string(b))
}

// IconFor returns the default icon for a check status.
func IconFor(s CheckStatus) Icon {
	switch s {
	case StatusPass:
		return IconCheck
	case StatusWarn:
		return IconWarning
	case StatusFail:
		return IconCross
	case StatusInfo:
		return IconCircle
	case StatusRunning:
		return IconSpinner
	}
	return IconCircle
}

// Severity grades how stuck a transaction is.
type Severity string

const (
	SeverityFine      Severity = "FINE"
	SeveritySlow      Severity = "SLOW"
	SeverityStuck     Severity = "STUCK"
	SeverityConfirmed Severity = "CONFIRMED"
)

// Method is a way of getting a transaction confirmed.
type Method string

const (
	MethodRBF         Method = "RBF"
	MethodCPFP        Method = "CPFP"
	MethodWait        Method = "WAIT"
	MethodAccelerator Method = "ACCELERATOR"
)
