package types

// Transaction is a snapshot of a transaction as reported by the data provider.
type Transaction struct {
	Txid     string   `json:"txid"`
	Version  int32    `json:"version"`
	Locktime uint32   `json:"locktime"`
	Size     int      `json:"size"`
	Weight   int      `json:"weight"`
	Fee      int64    `json:"fee"`
	Vin      []Vin    `json:"vin"`
	Vout     []Vout   `json:"vout"`
	Status   TxStatus `json:"status"`
}

// Vin represents a transaction input together with the output it spends
type Vin struct {
	Txid       string   `json:"txid"`
	Vout       uint32   `json:"vout"`
	Prevout    *Vout    `json:"prevout"`
	ScriptSig  string   `json:"scriptsig"`
	Witness    []string `json:"witness,omitempty"`
	Sequence   uint32   `json:"sequence"`
	IsCoinbase bool     `json:"is_coinbase"`
}

// Vout represents a transaction output
type Vout struct {
	ScriptPubKey        string     `json:"scriptpubkey"`
	ScriptPubKeyType    ScriptType `json:"scriptpubkey_type"`
	ScriptPubKeyAddress string     `json:"scriptpubkey_address,omitempty"`
	Value               int64      `json:"value"`
}

// TxStatus is the confirmation status of a transaction
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// FeeEstimate holds recommended fee rates in sat/vB
type FeeEstimate struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
	EconomyFee  float64 `json:"economyFee"`
	MinimumFee  float64 `json:"minimumFee"`
}

// MempoolBlock is a projected block template
type MempoolBlock struct {
	BlockSize  int64     `json:"blockSize"`
	BlockVSize float64   `json:"blockVSize"`
	NTx        int       `json:"nTx"`
	TotalFees  int64     `json:"totalFees"`
	MedianFee  float64   `json:"medianFee"`
	FeeRange   []float64 `json:"feeRange"`
}

// MinFee returns the lower bound of the block's fee range, or 0 when unknown.
func (b MempoolBlock) MinFee() float64 {
	if len(b.FeeRange) == 0 {
		return 0
	}
	return b.FeeRange[0]
}

// MempoolInfo summarizes the pending transaction pool
type MempoolInfo struct {
	Count        int64               `json:"count"`
	VSize        int64               `json:"vsize"`
	TotalFee     int64               `json:"total_fee"`
	FeeHistogram []FeeHistogramEntry `json:"fee_histogram"`
}

// OutspendStatus reports whether an output has already been spent
type OutspendStatus struct {
	Spent  bool      `json:"spent"`
	Txid   string    `json:"txid,omitempty"`
	Vin    int       `json:"vin,omitempty"`
	Status *TxStatus `json:"status,omitempty"`
}

// CheckResult is the outcome of a single diagnostic check
type CheckResult struct {
	ID     string      `json:"id"`
	Label  string      `json:"label"`
	Detail string      `json:"detail"`
	Status CheckStatus `json:"status"`
	Icon   Icon        `json:"icon"`
}

// Recommendation is one ranked way to get a transaction confirmed
type Recommendation struct {
	Method        Method   `json:"method"`
	Label         string   `json:"label"`
	IsPrimary     bool     `json:"isPrimary"`
	CostSats      int64    `json:"costSats"`
	CostUSD       *float64 `json:"costUsd,omitempty"`
	EstimatedTime string   `json:"estimatedTime"`
	TargetFeeRate float64  `json:"targetFeeRate"`
}

// Verdict is the final result of a diagnosis
type Verdict struct {
	Severity                Severity         `json:"severity"`
	Headline                string           `json:"headline"`
	Explanation             string           `json:"explanation"`
	Recommendations         []Recommendation `json:"recommendations"`
	CanRBF                  bool             `json:"canRbf"`
	CanCPFP                 bool             `json:"canCpfp"`
	ShowAcceleratorFallback bool             `json:"showAcceleratorFallback"`
	CurrentFeeRate          float64          `json:"currentFeeRate"`
	TargetFeeRate           float64          `json:"targetFeeRate"`
}

// CpfpCandidate is an unconfirmed, unspent output usable as a CPFP parent input
type CpfpCandidate struct {
	OutputIndex uint32     `json:"outputIndex"`
	Value       int64      `json:"value"`
	Address     string     `json:"address"`
	ScriptType  ScriptType `json:"scriptType"`
}

// PsbtBuildResult is the unsigned fee-bump artifact. It never carries signatures.
type PsbtBuildResult struct {
	PsbtBase64        string    `json:"psbtBase64"`
	PsbtHex           string    `json:"psbtHex"`
	Fee               int64     `json:"fee"`
	NewFee            int64     `json:"newFee"`
	AdditionalFee     int64     `json:"additionalFee"`
	ChangeOutputIndex int       `json:"changeOutputIndex"`
	EffectiveFeeRate  float64   `json:"effectiveFeeRate"`
	VSize             int64     `json:"vsize"`
	Warnings          []Warning `json:"warnings"`
}

// DiagnosisData is everything fetched for one diagnosis run
type DiagnosisData struct {
	Tx            *Transaction     `json:"tx"`
	TxHex         string           `json:"txHex"`
	Fees          *FeeEstimate     `json:"fees"`
	MempoolBlocks []MempoolBlock   `json:"mempoolBlocks"`
	MempoolInfo   *MempoolInfo     `json:"mempoolInfo"`
	Outspends     []OutspendStatus `json:"outspends"`
	BTCPrice      float64          `json:"btcPrice"`
}

// Warning represents a transaction warning
type Warning struct {
	Code string `json:"code"`
}

// ErrorInfo represents an error response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Fixture is an offline transaction description: raw hex plus the outputs it spends
type Fixture struct {
	Network  string         `json:"network"`
	RawTx    string         `json:"raw_tx"`
	Prevouts []PrevoutInput `json:"prevouts"`
	Status   *TxStatus      `json:"status,omitempty"`
}

// PrevoutInput represents a prevout in the fixture
type PrevoutInput struct {
	Txid            string `json:"txid"`
	Vout            uint32 `json:"vout"`
	ValueSats       int64  `json:"value_sats"`
	ScriptPubkeyHex string `json:"script_pubkey_hex"`
}
