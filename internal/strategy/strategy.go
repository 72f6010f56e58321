// Package strategy turns regime policy, viability tier, and trust gate
// state into advisory, never-executed TradeRecommendation values — the
// "Strategy/Rebalance core" named in §2's component table.
package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
	"github.com/aristath/tao-treasury/internal/regime"
	"github.com/aristath/tao-treasury/internal/slippage"
)

// Config carries the sizing table and caps, analogous to the
// package-local config structs used by regime.Thresholds and
// viability.TierCuts elsewhere in this pipeline.
type Config struct {
	TargetWeightByTier  map[domain.ViabilityTier]float64
	ConcentrationCapPct float64 // max single-subnet weight of total portfolio value
	SlippageCeilingPct  float64 // a sized recommendation's executable slippage must not exceed this
}

// DefaultConfig is a conservative starting table. No stored configuration
// overrides it; the active viability-config row carries only viability
// weights and thresholds.
var DefaultConfig = Config{
	TargetWeightByTier: map[domain.ViabilityTier]float64{
		domain.TierOne:      0.20,
		domain.TierTwo:      0.12,
		domain.TierThree:    0.06,
		domain.TierFour:     0.0,
		domain.TierUnviable: 0.0,
	},
	ConcentrationCapPct: 0.25,
	SlippageCeilingPct:  0.03,
}

// Eligibility is the rebalance-eligibility gate result.
type Eligibility struct {
	Eligible   bool
	Confidence string // "high" | "medium" | "low"
	Reason     string
}

// Evaluate checks a subnet's eligibility for add recommendations. A
// blocked trust gate makes every subnet ineligible; a degraded gate keeps
// eligibility but forces low confidence. WeeklyPlan still proposes trims
// for an ineligible subnet, at the confidence returned here.
func Evaluate(policy regime.Policy, tier domain.ViabilityTier, gate domain.GateState) Eligibility {
	if gate == domain.GateBlocked {
		return Eligibility{Eligible: false, Confidence: "low", Reason: "trust gate is blocked"}
	}
	if tier == domain.TierUnviable {
		return Eligibility{Eligible: false, Confidence: "low", Reason: "subnet is unviable"}
	}
	if !policy.AddsAllowed && !policy.NewBuysAllowed {
		return Eligibility{Eligible: false, Confidence: "low", Reason: "regime policy disallows adds and new buys"}
	}

	confidence := "high"
	if gate == domain.GateDegraded {
		confidence = "low"
	}
	return Eligibility{Eligible: true, Confidence: confidence}
}

// SizePosition computes a target TAO size for a tier, capped by
// portfolio concentration and by slippage capacity at the proposed
// size — downsizing to the largest cached surface size whose
// executable slippage stays under the ceiling.
func SizePosition(tier domain.ViabilityTier, cfg Config, portfolioValueTAO money.TAO, surfaces []domain.SlippageSurface, now time.Time) money.TAO {
	targetWeight := cfg.TargetWeightByTier[tier]
	if targetWeight <= 0 {
		return money.ZeroTAO()
	}
	if targetWeight > cfg.ConcentrationCapPct {
		targetWeight = cfg.ConcentrationCapPct
	}

	proposed := portfolioValueTAO.Mul(decimal.NewFromFloat(targetWeight))
	return capBySlippage(proposed, cfg.SlippageCeilingPct, surfaces, now)
}

// capBySlippage downsizes proposed to the largest standard size whose
// interpolated slippage is still within the ceiling, since the
// slippage surface is only sampled at discrete standard sizes.
func capBySlippage(proposed money.TAO, ceilingPct float64, surfaces []domain.SlippageSurface, now time.Time) money.TAO {
	proposedF := proposed.Float64()
	q := slippage.Interpolate(surfaces, proposedF, now)
	if q.SlippagePct <= ceilingPct {
		return proposed
	}

	best := 0.0
	for _, size := range slippage.StandardSizes {
		if size > proposedF {
			continue
		}
		qq := slippage.Interpolate(surfaces, size, now)
		if qq.SlippagePct <= ceilingPct && size > best {
			best = size
		}
	}
	return money.NewTAO(best)
}

// PositionState bundles one subnet position's inputs for WeeklyPlan.
type PositionState struct {
	NetUID            int
	Tier              domain.ViabilityTier
	Policy            regime.Policy
	Gate              domain.GateState
	CurrentValueTAO   money.TAO
	PortfolioValueTAO money.TAO
	Surfaces          []domain.SlippageSurface
	SnapshotRef       string
}

// WeeklyPlan compares current sleeve weights to tier-derived targets
// and proposes trim/add recommendations, bounded by each subnet's
// regime trim percentage and sleeve-expansion flag.
func WeeklyPlan(wallet string, positions []PositionState, cfg Config, now time.Time) []domain.TradeRecommendation {
	var recs []domain.TradeRecommendation
	for _, p := range positions {
		target := SizePosition(p.Tier, cfg, p.PortfolioValueTAO, p.Surfaces, now)
		diff := target.Sub(p.CurrentValueTAO)

		elig := Evaluate(p.Policy, p.Tier, p.Gate)
		switch {
		case diff.IsPositive():
			if !elig.Eligible || !p.Policy.AddsAllowed {
				continue
			}
			recs = append(recs, recommendation(wallet, p.NetUID, domain.ActionAdd, diff, elig.Confidence,
				"sleeve weight below tier target", p.SnapshotRef))
		case diff.IsNegative():
			trimCap := p.CurrentValueTAO.Mul(decimal.NewFromFloat(p.Policy.TrimPct))
			trimAmount := diff.Abs()
			if trimAmount.Cmp(trimCap) > 0 {
				trimAmount = trimCap
			}
			if trimAmount.IsZero() {
				continue
			}
			recs = append(recs, recommendation(wallet, p.NetUID, domain.ActionTrim, trimAmount, elig.Confidence,
				"sleeve weight above tier target, bounded by regime trim cap", p.SnapshotRef))
		}
	}
	return recs
}

// EventPlan proposes an immediate single-subnet trim/exit when a
// regime just committed to quarantine/dead, or when the latest
// reconciliation run for this subnet failed.
func EventPlan(wallet string, netuid int, currentValueTAO money.TAO, newRegime domain.FlowRegime, reconciliationFailed bool, snapshotRef string) *domain.TradeRecommendation {
	switch {
	case newRegime == domain.RegimeDead:
		r := recommendation(wallet, netuid, domain.ActionExit, currentValueTAO, "high",
			"regime committed to dead", snapshotRef)
		return &r
	case newRegime == domain.RegimeQuarantine:
		r := recommendation(wallet, netuid, domain.ActionTrim, currentValueTAO, "high",
			"regime committed to quarantine", snapshotRef)
		return &r
	case reconciliationFailed:
		r := recommendation(wallet, netuid, domain.ActionTrim, currentValueTAO, "medium",
			"reconciliation drift exceeded tolerance", snapshotRef)
		return &r
	default:
		return nil
	}
}

func recommendation(wallet string, netuid int, action domain.AdvisoryAction, size money.TAO, confidence, reason, snapshotRef string) domain.TradeRecommendation {
	return domain.TradeRecommendation{
		ID:          uuid.NewString(),
		Wallet:      wallet,
		NetUID:      netuid,
		Action:      action,
		SizeTAO:     size,
		Confidence:  confidence,
		Reason:      reason,
		SnapshotRef: snapshotRef,
	}
}
