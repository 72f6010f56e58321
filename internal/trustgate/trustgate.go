// Package trustgate aggregates staleness, reconciliation drift, and
// per-dataset sync health into the single ok/degraded/blocked gate
// state that advisory signals must query first, per §4.10.
package trustgate

import (
	"time"

	"github.com/aristath/tao-treasury/internal/domain"
)

// DatasetHealth is the per-dataset sync health input, mirroring the
// persisted datastore.DatasetHealth row.
type DatasetHealth struct {
	Dataset             string
	ConsecutiveFailures int
	EverSucceeded       bool
}

// Inputs bundles everything the gate needs to compute a TrustSummary.
type Inputs struct {
	LastSyncSuccess time.Time
	EverSynced      bool
	StalenessMax    time.Duration

	LastReconRun     time.Time
	HaveReconRun     bool
	LastReconPassed  bool
	ReconMaxAge      time.Duration

	Datasets            []DatasetHealth
	MaxConsecutiveFails int
}

// Evaluate computes the aggregate TrustSummary from the three inputs.
// Any blocked sub-check makes the whole gate blocked; otherwise any
// degraded sub-check makes it degraded; otherwise ok.
func Evaluate(in Inputs, now time.Time) domain.TrustSummary {
	summary := domain.TrustSummary{
		State:           domain.GateOK,
		LastSyncSuccess: in.LastSyncSuccess,
		LastReconRun:    in.LastReconRun,
		LastReconPassed: in.LastReconPassed,
	}

	blocked := false
	degraded := false

	switch {
	case !in.EverSynced:
		blocked = true
		summary.Reasons = append(summary.Reasons, "no successful sync has ever completed")
	case now.Sub(in.LastSyncSuccess) > in.StalenessMax:
		degraded = true
		summary.Reasons = append(summary.Reasons, "most recent successful sync exceeds the staleness threshold")
	}

	switch {
	case !in.HaveReconRun:
		degraded = true
		summary.Reasons = append(summary.Reasons, "no reconciliation run has ever completed")
	case !in.LastReconPassed:
		degraded = true
		summary.Reasons = append(summary.Reasons, "most recent reconciliation run found drift")
	case now.Sub(in.LastReconRun) > in.ReconMaxAge:
		degraded = true
		summary.Reasons = append(summary.Reasons, "most recent reconciliation run is stale")
	}

	maxFails := in.MaxConsecutiveFails
	for _, d := range in.Datasets {
		if !d.EverSucceeded {
			blocked = true
			summary.Reasons = append(summary.Reasons, "dataset "+d.Dataset+" has never synced successfully")
			continue
		}
		if d.ConsecutiveFailures > maxFails {
			degraded = true
			summary.Reasons = append(summary.Reasons, "dataset "+d.Dataset+" has exceeded its consecutive-failure budget")
		}
	}

	switch {
	case blocked:
		summary.State = domain.GateBlocked
	case degraded:
		summary.State = domain.GateDegraded
	default:
		summary.State = domain.GateOK
	}
	return summary
}

// DefaultMaxConsecutiveFailures is the §4.10 "> 3" threshold.
const DefaultMaxConsecutiveFailures = 3
