package deposit

import (
	"github.com/cradoe/leverpad/internal/chain"
	"github.com/shopspring/decimal"
)

const (
	PathBalanceDelta    = "balance-delta"
	PathInstructionScan = "instruction-scan"
)

// Evidence is what an AmountCheck judges: the resolved transaction, the two
// parties and the minimum amount that has to have moved.
type Evidence struct {
	Tx        *chain.Transaction
	Source    string
	Target    string
	Claimed   decimal.Decimal
	Threshold decimal.Decimal
}

type Outcome struct {
	Accepted bool
	Path     string
	// Observed amount that reached the target on this path
	TargetReceived decimal.Decimal
	SourceWaived   bool
}

// AmountCheck is one strategy for proving that the claimed amount moved.
// Checks run in order and the first accepting one wins.
type AmountCheck interface {
	Name() string
	Check(ev Evidence) Outcome
}

// BalanceDeltaCheck compares pre/post balance snapshots on both sides.
type BalanceDeltaCheck struct{}

func (BalanceDeltaCheck) Name() string { return PathBalanceDelta }

func (BalanceDeltaCheck) Check(ev Evidence) Outcome {
	received := ev.Tx.Received(ev.Target)
	sent := ev.Tx.Sent(ev.Source)

	return Outcome{
		Accepted:       received.GreaterThanOrEqual(ev.Threshold) && sent.GreaterThanOrEqual(ev.Threshold),
		Path:           PathBalanceDelta,
		TargetReceived: received,
	}
}

// InstructionScanCheck sums decoded system transfers into the target. It
// catches transactions whose balance deltas are muddied by other movements
// on the same accounts. Unless RequireSource is set the source side is not
// checked on this path.
type InstructionScanCheck struct {
	RequireSource bool
}

func (InstructionScanCheck) Name() string { return PathInstructionScan }

func (c InstructionScanCheck) Check(ev Evidence) Outcome {
	total := ev.Tx.TransfersTo(ev.Target)
	out := Outcome{Path: PathInstructionScan, TargetReceived: total}

	if !total.IsPositive() {
		return out
	}

	if c.RequireSource {
		out.Accepted = total.GreaterThanOrEqual(ev.Threshold) && ev.Tx.Sent(ev.Source).GreaterThanOrEqual(ev.Threshold)
		return out
	}

	out.Accepted = total.GreaterThanOrEqual(ev.Threshold)
	out.SourceWaived = true
	return out
}

// Threshold is claimed reduced by the tolerance fraction.
func Threshold(claimed, tolerance decimal.Decimal) decimal.Decimal {
	return claimed.Mul(decimal.NewFromInt(1).Sub(tolerance))
}
