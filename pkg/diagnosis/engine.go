package diagnosis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"txfix/pkg/metrics"
	"txfix/pkg/types"
)

// EngineResult is the terminal value of a diagnosis.
type EngineResult struct {
	Verdict        types.Verdict         `json:"verdict"`
	Checks         []types.CheckResult   `json:"checks"`
	CpfpCandidates []types.CpfpCandidate `json:"cpfpCandidates"`
	Data           *types.DiagnosisData  `json:"data"`
}

type step int

const (
	stepConfirmation step = iota
	stepRBF
	stepCPFP
	stepFee
	stepPosition
	stepWait
	stepDone
)

// Sequence runs the diagnostic checks over fetched data one at a time, in a
// fixed order. It stops after the confirmation check for mined transactions.
type Sequence struct {
	data       *types.DiagnosisData
	next       step
	checks     []types.CheckResult
	candidates []types.CpfpCandidate
	result     *EngineResult
}

// NewSequence validates data and prepares the check sequence.
func NewSequence(data *types.DiagnosisData) (*Sequence, error) {
	if data == nil || data.Tx == nil || data.Fees == nil || data.MempoolInfo == nil {
		return nil, errors.New("incomplete diagnosis data")
	}
	return &Sequence{
		data:       data,
		checks:     make([]types.CheckResult, 0, int(stepDone)),
		candidates: make([]types.CpfpCandidate, 0),
	}, nil
}

// Next produces the next check result. It returns false once the sequence
// is finished, after which Result is available.
func (s *Sequence) Next() (types.CheckResult, bool) {
	tx := s.data.Tx
	var c types.CheckResult

	switch s.next {
	case stepConfirmation:
		c = CheckConfirmationStatus(tx)
		s.next = stepRBF
		if tx.Status.Confirmed {
			s.next = stepDone
		}
	case stepRBF:
		c = CheckRBFSignaling(tx)
		s.next = stepCPFP
	case stepCPFP:
		c, s.candidates = CheckCPFPFeasibility(tx, s.data.Outspends)
		s.next = stepFee
	case stepFee:
		c = CheckFeeAdequacy(tx, s.data.Fees, s.data.MempoolBlocks)
		s.next = stepPosition
	case stepPosition:
		c = CheckMempoolPosition(tx, s.data.MempoolInfo)
		s.next = stepWait
	case stepWait:
		c = CheckWaitEstimate(tx, s.data.MempoolBlocks, s.data.MempoolInfo)
		s.next = stepDone
	case stepDone:
		s.finish()
		return types.CheckResult{}, false
	}

	s.checks = append(s.checks, c)
	return c, true
}

func (s *Sequence) finish() {
	if s.result != nil {
		return
	}
	var v types.Verdict
	if s.data.Tx.Status.Confirmed {
		v = buildConfirmedVerdict(s.data)
		s.candidates = make([]types.CpfpCandidate, 0)
	} else {
		v = buildVerdict(s.data, s.candidates)
	}
	s.result = &EngineResult{
		Verdict:        v,
		Checks:         s.checks,
		CpfpCandidates: s.candidates,
		Data:           s.data,
	}
}

// Result returns the final result, or nil while checks remain.
func (s *Sequence) Result() *EngineResult {
	return s.result
}

// Evaluate runs every check over data and returns the result.
func Evaluate(data *types.DiagnosisData) (*EngineResult, error) {
	seq, err := NewSequence(data)
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := seq.Next(); !ok {
			return seq.Result(), nil
		}
	}
}

// Event is one item produced by Engine.Run: a check, or the terminal result
// or error.
type Event struct {
	Check  *types.CheckResult
	Result *EngineResult
	Err    error
}

// Engine diagnoses transactions against a data provider.
type Engine struct {
	provider Provider
}

// New creates an Engine reading from p.
func New(p Provider) *Engine {
	return &Engine{provider: p}
}

// Run diagnoses txid in the background. Each check is delivered on the
// returned unbuffered channel as the consumer receives it, followed by a
// single event holding the result or the error. When ctx is cancelled the
// run stops at the next emission and the channel is closed without a
// terminal event.
func (e *Engine) Run(ctx context.Context, txid string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		runID := uuid.New().String()
		start := time.Now()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		log.Debugf("[%s] diagnosing %s", runID, txid)
		data, err := Fetch(ctx, e.provider, txid)
		if err != nil {
			if ctx.Err() != nil {
				log.Debugf("[%s] cancelled during fetch", runID)
				metrics.DiagnosisRunsTotal.WithLabelValues("cancelled", "").Inc()
				return
			}
			log.Warnf("[%s] fetch failed for %s: %v", runID, txid, err)
			metrics.DiagnosisRunsTotal.WithLabelValues("error", "").Inc()
			send(Event{Err: err})
			return
		}

		seq, err := NewSequence(data)
		if err != nil {
			send(Event{Err: err})
			return
		}
		for {
			if ctx.Err() != nil {
				log.Debugf("[%s] cancelled", runID)
				metrics.DiagnosisRunsTotal.WithLabelValues("cancelled", "").Inc()
				return
			}
			c, ok := seq.Next()
			if !ok {
				break
			}
			if !send(Event{Check: &c}) {
				metrics.DiagnosisRunsTotal.WithLabelValues("cancelled", "").Inc()
				return
			}
		}

		res := seq.Result()
		metrics.DiagnosisRunsTotal.WithLabelValues("ok", string(res.Verdict.Severity)).Inc()
		metrics.DiagnosisDuration.Observe(time.Since(start).Seconds())
		log.Infof("[%s] %s: %s (%.1f sat/vB, %d checks)", runID, txid,
			res.Verdict.Severity, res.Verdict.CurrentFeeRate, len(res.Checks))
		send(Event{Result: res})
	}()
	return out
}

// Diagnose runs a diagnosis to completion.
func (e *Engine) Diagnose(ctx context.Context, txid string) (*EngineResult, error) {
	for ev := range e.Run(ctx, txid) {
		switch {
		case ev.Err != nil:
			return nil, ev.Err
		case ev.Result != nil:
			return ev.Result, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("diagnosis ended without a result")
}
