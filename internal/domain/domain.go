// Package domain holds the plain-struct entities of the treasury core.
// These types carry no infrastructure dependency (no sql, no json tags
// required by a particular transport) so they can be shared between the
// datastore, the derived-compute packages, and tests without import
// cycles. TAO, rao and USD amounts use internal/money, except
// Position.UnrealizedAlphaPnL and SlippageSurface.ExpectedOutput, which
// are float64. Alpha-token quantities, ratios, scores, and percentages
// are plain float64 as well.
package domain

import (
	"time"

	"github.com/aristath/tao-treasury/internal/money"
)

// Wallet identifies a tracked coldkey address.
type Wallet struct {
	Address string // 46-48 char base58 on-chain address
	Label   string
	Active  bool
}

// FlowRegime classifies a subnet's net capital flow dynamics.
type FlowRegime string

const (
	RegimeRiskOn     FlowRegime = "risk_on"
	RegimeNeutral    FlowRegime = "neutral"
	RegimeRiskOff    FlowRegime = "risk_off"
	RegimeQuarantine FlowRegime = "quarantine"
	RegimeDead       FlowRegime = "dead"
)

// ViabilityTier is the result of the hard-fail + percentile scoring
// pipeline in §4.8.
type ViabilityTier string

const (
	TierOne      ViabilityTier = "tier_1"
	TierTwo      ViabilityTier = "tier_2"
	TierThree    ViabilityTier = "tier_3"
	TierFour     ViabilityTier = "tier_4"
	TierUnviable ViabilityTier = "unviable"
)

// Flows bundles the multi-horizon net-flow ratios driving the regime
// classifier. Values are fractions of pool reserve (e.g. -0.15 = -15%).
type Flows struct {
	F1d, F3d, F7d, F14d float64
	// DailyHistory holds the most recent daily flow ratios, most recent
	// first, used for the "3 of last 4 days negative" quarantine rule.
	DailyHistory []float64
}

// Subnet is the mutable current state of a numbered execution domain.
// netuid 0 is Root: no pool, no slippage, no alpha token.
type Subnet struct {
	NetUID int

	PoolTAOReserve   money.TAO
	PoolAlphaReserve float64 // alpha is not TAO- or USD-denominated money
	AlphaPriceTAO    money.TAO

	EmissionShare money.Percent
	OwnerTake     money.Percent
	FeeRate       money.Percent
	IncentiveBurn money.Percent
	HolderCount   int

	Flows Flows

	FlowRegime          FlowRegime
	RegimeCandidate     FlowRegime
	RegimeCandidateDays int
	FlowRegimeSince     time.Time

	ViabilityScore float64
	ViabilityTier  ViabilityTier

	RegisteredAt time.Time
	AgeDays      int
	Rank         int
	MarketCapTAO money.TAO

	MaxDrawdown30d float64
}

// IsRoot reports whether this subnet is the Root network (netuid 0),
// which has no pool, no slippage, and no alpha token.
func (s Subnet) IsRoot() bool { return s.NetUID == 0 }

// SubnetSnapshot is an immutable historical row keyed by (netuid, timestamp).
type SubnetSnapshot struct {
	NetUID    int
	Timestamp time.Time

	PoolTAOReserve   money.TAO
	PoolAlphaReserve float64
	AlphaPriceTAO    money.TAO
	EmissionShare    money.Percent
	HolderCount      int
	Flows            Flows
	FlowRegime       FlowRegime
}

// AdvisoryAction is a recommended position action; it is never executed
// automatically.
type AdvisoryAction string

const (
	ActionHold     AdvisoryAction = "hold"
	ActionAdd      AdvisoryAction = "add"
	ActionTrim     AdvisoryAction = "trim"
	ActionExit     AdvisoryAction = "exit"
	ActionNewEntry AdvisoryAction = "new_entry"
)

// Position is the current holding of one wallet in one subnet. At most
// one live row exists per (Wallet, NetUID).
type Position struct {
	Wallet string
	NetUID int

	AlphaBalance      float64
	AlphaPurchased    float64 // cost-basis lots still held, see costbasis package
	CostBasisComplete bool    // true once derived from a fully-loaded FIFO ledger

	TAOValueMid     money.TAO
	TAOValueExec50  money.TAO
	TAOValueExec100 money.TAO

	EntryPrice money.TAO
	EntryDate  time.Time

	CostBasisTAO money.TAO
	CostBasisUSD money.USD

	RealizedPnLTAO     money.TAO
	UnrealizedPnLTAO   money.TAO
	UnrealizedYield    money.Percent
	UnrealizedAlphaPnL float64

	RecommendedAction AdvisoryAction
}

// IsActive reports whether the position still holds a non-zero alpha
// balance. Zero-balance positions are retained (never deleted) so the
// cost-basis row survives for realized-pnl queries.
func (p Position) IsActive() bool { return p.AlphaBalance > 0 }

// PositionSnapshot is an immutable (wallet, netuid, timestamp) row.
type PositionSnapshot struct {
	Wallet    string
	NetUID    int
	Timestamp time.Time

	AlphaBalance float64
	TAOValueMid  money.TAO
}

// StakeTxType enumerates the stake transaction kinds.
type StakeTxType string

const (
	TxStake      StakeTxType = "stake"
	TxUnstake    StakeTxType = "unstake"
	TxUnstakeAll StakeTxType = "unstake_all"
)

// StakeTransaction is an immutable row keyed by external extrinsic id.
type StakeTransaction struct {
	ExtrinsicID string
	BlockNumber int64
	Timestamp   time.Time

	Wallet string
	NetUID int
	Hotkey string

	Type StakeTxType

	AmountRao int64
	AmountTAO money.TAO

	AlphaAmount *float64
	LimitPrice  *money.TAO

	FeeTAO  money.TAO
	Success bool
}

// PositionCostBasis is the derived FIFO-lot aggregate for one position.
type PositionCostBasis struct {
	Wallet string
	NetUID int

	TotalStakedTAO   money.TAO
	TotalUnstakedTAO money.TAO
	NetInvestedTAO   money.TAO

	WeightedAvgEntryPrice money.TAO

	RealizedPnLTAO     money.TAO
	RealizedYieldTAO   money.TAO
	RealizedYieldAlpha float64

	TotalFeesTAO money.TAO

	TotalStakedUSD   money.USD
	TotalUnstakedUSD money.USD
	NetInvestedUSD   money.USD
	RealizedPnLUSD   money.USD

	Complete bool // true once built from a fully-loaded transaction history
}

// DelegationEventKind is a tagged sum type for the events endpoint: a
// superset of stake transactions that also includes reward credits.
type DelegationEventKind string

const (
	DelegationStake   DelegationEventKind = "stake"
	DelegationUnstake DelegationEventKind = "unstake"
	DelegationReward  DelegationEventKind = "reward"
)

// DelegationEvent is ground truth for yield (§4.5), keyed by external event id.
type DelegationEvent struct {
	EventID     string
	Timestamp   time.Time
	Wallet      string
	NetUID      int
	Hotkey      string
	Kind        DelegationEventKind
	AmountTAO   money.TAO
	AmountAlpha float64
}

// PositionYieldHistory is a daily row keyed (wallet, netuid, date).
type PositionYieldHistory struct {
	Wallet string
	NetUID int
	Date   time.Time

	StartAlphaBalance float64
	EndAlphaBalance   float64
	NetStakeDeltaTAO  money.TAO

	YieldAlpha float64
	YieldTAO   money.TAO
	DailyAPY   float64
}

// StakeAction distinguishes the direction of a slippage quote.
type StakeAction string

const (
	SlippageStake   StakeAction = "stake"
	SlippageUnstake StakeAction = "unstake"
)

// SlippageSurface is a cached per-size slippage quote.
type SlippageSurface struct {
	NetUID  int
	Action  StakeAction
	SizeTAO float64

	SlippagePct      float64
	ExpectedOutput   float64
	PoolTAOReserve   money.TAO
	PoolAlphaReserve float64

	ComputedAt time.Time
	ExpiresAt  time.Time
}

func (s SlippageSurface) Stale(now time.Time) bool { return now.After(s.ExpiresAt) }

// PortfolioRegime is the value-weighted portfolio-level rollup of subnet regimes.
type PortfolioRegime string

const (
	PortfolioRiskOn  PortfolioRegime = "risk_on"
	PortfolioNeutral PortfolioRegime = "neutral"
	PortfolioRiskOff PortfolioRegime = "risk_off"
)

// PortfolioSnapshot is a per-wallet point-in-time aggregate.
type PortfolioSnapshot struct {
	Wallet    string
	Timestamp time.Time

	NAVMid  money.TAO
	NAVExec money.TAO

	RootAllocationPct   float64
	SleeveAllocationPct float64
	BufferAllocationPct float64

	TurnoverTAO money.TAO

	Regime       PortfolioRegime
	RegimeReason string
}

// NAVHistory is a per-wallet daily OHLC row in executable-NAV terms.
type NAVHistory struct {
	Wallet string
	Date   time.Time

	Open, High, Low, Close money.TAO
	ATH                    money.TAO

	DailyReturnTAO money.TAO
	DailyReturnPct float64
	DrawdownPct    float64
}

// Validator tracks a (hotkey, netuid) performance record.
type Validator struct {
	Hotkey string
	NetUID int

	APYCurrent float64
	APY7d      float64
	APY30d     float64
	TakeRate   float64
	StakeTAO   money.TAO

	QualityFlags []string
}

// AlertSeverity classifies an Alert's urgency.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is an advisory notice tied to the data snapshot that produced it.
type Alert struct {
	ID          string
	CreatedAt   time.Time
	Wallet      string
	NetUID      *int
	Severity    AlertSeverity
	Message     string
	SnapshotRef string
}

// DecisionLog records an advisory decision for audit.
type DecisionLog struct {
	ID          string
	CreatedAt   time.Time
	Wallet      string
	NetUID      *int
	Decision    string
	Reason      string
	SnapshotRef string
}

// TradeRecommendation is the advisory surface of the strategy engine —
// never auto-executed.
type TradeRecommendation struct {
	ID          string
	CreatedAt   time.Time
	Wallet      string
	NetUID      int
	Action      AdvisoryAction
	SizeTAO     money.TAO
	Confidence  string // "high" | "medium" | "low"
	Reason      string
	SnapshotRef string
}

// ReconciliationCheck is one per-netuid comparison within a run.
type ReconciliationCheck struct {
	NetUID          int
	StoredTAOValue  money.TAO
	LiveTAOValue    money.TAO
	AbsoluteDiff    money.TAO
	RelativeDiffPct float64
	Passed          bool
	Reason          string
}

// ReconciliationRun is keyed by a synthetic run id.
type ReconciliationRun struct {
	RunID     string
	Wallet    string
	CreatedAt time.Time

	TotalChecks  int
	PassedChecks int
	FailedChecks int

	AbsoluteToleranceTAO money.TAO
	RelativeTolerancePct float64

	Checks []ReconciliationCheck

	Passed bool
	Error  string
}

// GateState is the trust gate's aggregate health state.
type GateState string

const (
	GateOK       GateState = "ok"
	GateDegraded GateState = "degraded"
	GateBlocked  GateState = "blocked"
)

// TrustSummary is the trust gate's output.
type TrustSummary struct {
	State   GateState
	Reasons []string

	LastSyncSuccess time.Time
	LastReconRun    time.Time
	LastReconPassed bool
}

// SignalRun is the persisted result of a named analytical signal.
type SignalRun struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	Evidence   map[string]any
	Guardrails []string
	Passed     bool
}
