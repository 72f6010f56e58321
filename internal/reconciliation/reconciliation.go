// Package reconciliation compares stored Position state against a live
// upstream fetch and produces per-subnet drift checks, per §4.9.
package reconciliation

import (
	"time"

	"github.com/google/uuid"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// epsilon guards the relative-diff division by a stored value of zero.
var epsilon = money.NewTAO(0.000000001)

// Side holds one subnet's TAO value from one source (stored or live).
type Side struct {
	NetUID  int
	Present bool
	Value   money.TAO
}

// Check compares one netuid's stored and live sides per §4.9's formula
// and special cases.
func Check(netuid int, stored, live Side, absoluteTolerance money.TAO, relativeTolerancePct float64) domain.ReconciliationCheck {
	c := domain.ReconciliationCheck{NetUID: netuid, StoredTAOValue: stored.Value, LiveTAOValue: live.Value}

	if stored.Present != live.Present {
		oneSided := live.Value
		if stored.Present {
			oneSided = stored.Value
		}
		c.AbsoluteDiff = oneSided.Abs()
		if c.AbsoluteDiff.Cmp(absoluteTolerance) <= 0 {
			c.Passed = true
		} else {
			c.Passed = false
			c.Reason = "present on only one side and exceeds absolute tolerance"
		}
		return c
	}

	diff := live.Value.Sub(stored.Value).Abs()
	c.AbsoluteDiff = diff

	if stored.Value.IsZero() {
		c.Passed = diff.Cmp(absoluteTolerance) <= 0
		if !c.Passed {
			c.Reason = "stored value is zero; absolute tolerance exceeded"
		}
		return c
	}

	denom := money.MaxTAO(stored.Value, epsilon)
	relDiffDec, _ := diff.Div(denom)
	relDiff, _ := relDiffDec.Float64()
	c.RelativeDiffPct = relDiff * 100

	passAbs := diff.Cmp(absoluteTolerance) <= 0
	passRel := c.RelativeDiffPct <= relativeTolerancePct
	c.Passed = passAbs || passRel
	if !c.Passed {
		c.Reason = "exceeds both absolute and relative tolerance"
	}
	return c
}

// Run compares the full set of stored vs. live sides for a wallet and
// assembles the persisted ReconciliationRun.
func Run(wallet string, stored, live map[int]money.TAO, absoluteTolerance money.TAO, relativeTolerancePct float64, createdAt time.Time) domain.ReconciliationRun {
	netuids := map[int]bool{}
	for k := range stored {
		netuids[k] = true
	}
	for k := range live {
		netuids[k] = true
	}

	run := domain.ReconciliationRun{
		RunID:                uuid.NewString(),
		Wallet:               wallet,
		CreatedAt:            createdAt,
		AbsoluteToleranceTAO: absoluteTolerance,
		RelativeTolerancePct: relativeTolerancePct,
		Passed:               true,
	}

	for netuid := range netuids {
		storedVal, storedOK := stored[netuid]
		liveVal, liveOK := live[netuid]
		check := Check(netuid,
			Side{NetUID: netuid, Present: storedOK, Value: storedVal},
			Side{NetUID: netuid, Present: liveOK, Value: liveVal},
			absoluteTolerance, relativeTolerancePct)

		run.Checks = append(run.Checks, check)
		run.TotalChecks++
		if check.Passed {
			run.PassedChecks++
		} else {
			run.FailedChecks++
			run.Passed = false
		}
	}
	return run
}
