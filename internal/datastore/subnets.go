package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// SubnetRepo persists current subnet state and its historical snapshots.
type SubnetRepo struct{ db *DB }

func NewSubnetRepo(db *DB) *SubnetRepo { return &SubnetRepo{db: db} }

// Upsert writes the current-state row for a subnet, per §4.3's "current
// state replaced in place, history appended" rule.
func (r *SubnetRepo) Upsert(ctx context.Context, s domain.Subnet) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return upsertSubnetTx(tx, s)
	})
}

func upsertSubnetTx(tx *sql.Tx, s domain.Subnet) error {
	poolTAO, _ := s.PoolTAOReserve.Value()
	alphaPrice, _ := s.AlphaPriceTAO.Value()
	emission, _ := s.EmissionShare.Value()
	ownerTake, _ := s.OwnerTake.Value()
	feeRate, _ := s.FeeRate.Value()
	burn, _ := s.IncentiveBurn.Value()
	marketCap, _ := s.MarketCapTAO.Value()

	_, err := tx.Exec(`
		INSERT INTO subnets (
			netuid, pool_tao_reserve, pool_alpha_reserve, alpha_price_tao,
			emission_share, owner_take, fee_rate, incentive_burn, holder_count,
			flow_1d, flow_3d, flow_7d, flow_14d,
			flow_regime, regime_candidate, regime_candidate_days, flow_regime_since,
			viability_score, viability_tier, registered_at, rank, market_cap_tao, max_drawdown_30d
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(netuid) DO UPDATE SET
			pool_tao_reserve = excluded.pool_tao_reserve,
			pool_alpha_reserve = excluded.pool_alpha_reserve,
			alpha_price_tao = excluded.alpha_price_tao,
			emission_share = excluded.emission_share,
			owner_take = excluded.owner_take,
			fee_rate = excluded.fee_rate,
			incentive_burn = excluded.incentive_burn,
			holder_count = excluded.holder_count,
			flow_1d = excluded.flow_1d, flow_3d = excluded.flow_3d,
			flow_7d = excluded.flow_7d, flow_14d = excluded.flow_14d,
			flow_regime = excluded.flow_regime,
			regime_candidate = excluded.regime_candidate,
			regime_candidate_days = excluded.regime_candidate_days,
			flow_regime_since = excluded.flow_regime_since,
			viability_score = excluded.viability_score,
			viability_tier = excluded.viability_tier,
			rank = excluded.rank,
			market_cap_tao = excluded.market_cap_tao,
			max_drawdown_30d = excluded.max_drawdown_30d`,
		s.NetUID, poolTAO, s.PoolAlphaReserve, alphaPrice,
		emission, ownerTake, feeRate, burn, s.HolderCount,
		s.Flows.F1d, s.Flows.F3d, s.Flows.F7d, s.Flows.F14d,
		string(s.FlowRegime), string(s.RegimeCandidate), s.RegimeCandidateDays, formatTime(s.FlowRegimeSince),
		s.ViabilityScore, string(s.ViabilityTier), formatTime(s.RegisteredAt), s.Rank, marketCap, s.MaxDrawdown30d)
	if err != nil {
		return fmt.Errorf("upsert subnet %d: %w", s.NetUID, err)
	}
	return nil
}

// InsertSnapshot appends an immutable historical row. Conflicts on the
// (netuid, timestamp) key are swallowed as already-applied, per §7.
func (r *SubnetRepo) InsertSnapshot(ctx context.Context, snap domain.SubnetSnapshot) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		poolTAO, _ := snap.PoolTAOReserve.Value()
		alphaPrice, _ := snap.AlphaPriceTAO.Value()
		emission, _ := snap.EmissionShare.Value()
		_, err := tx.Exec(`
			INSERT INTO subnet_snapshots (netuid, timestamp, pool_tao_reserve, pool_alpha_reserve, alpha_price_tao, emission_share, holder_count, flow_regime)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.NetUID, formatTime(snap.Timestamp), poolTAO, snap.PoolAlphaReserve, alphaPrice, emission, snap.HolderCount, string(snap.FlowRegime))
		if err != nil {
			if IsUniqueConstraintViolation(err) {
				return nil
			}
			return fmt.Errorf("insert subnet snapshot %d@%s: %w", snap.NetUID, snap.Timestamp, err)
		}
		return nil
	})
}

// Get returns the current state row for one subnet.
func (r *SubnetRepo) Get(ctx context.Context, netuid int) (domain.Subnet, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT netuid, pool_tao_reserve, pool_alpha_reserve, alpha_price_tao,
			emission_share, owner_take, fee_rate, incentive_burn, holder_count,
			flow_1d, flow_3d, flow_7d, flow_14d,
			flow_regime, regime_candidate, regime_candidate_days, flow_regime_since,
			viability_score, viability_tier, registered_at, rank, market_cap_tao, max_drawdown_30d
		FROM subnets WHERE netuid = ?`, netuid)
	return scanSubnet(row)
}

// List returns all current subnet rows ordered by netuid.
func (r *SubnetRepo) List(ctx context.Context) ([]domain.Subnet, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT netuid, pool_tao_reserve, pool_alpha_reserve, alpha_price_tao,
			emission_share, owner_take, fee_rate, incentive_burn, holder_count,
			flow_1d, flow_3d, flow_7d, flow_14d,
			flow_regime, regime_candidate, regime_candidate_days, flow_regime_since,
			viability_score, viability_tier, registered_at, rank, market_cap_tao, max_drawdown_30d
		FROM subnets ORDER BY netuid`)
	if err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	defer rows.Close()

	var out []domain.Subnet
	for rows.Next() {
		s, err := scanSubnet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubnet(row rowScanner) (domain.Subnet, error) {
	var s domain.Subnet
	var poolTAO, alphaPrice, emission, ownerTake, feeRate, burn, marketCap string
	var flowRegime, regimeCandidate, tier string
	var regimeSince, registeredAt string

	err := row.Scan(
		&s.NetUID, &poolTAO, &s.PoolAlphaReserve, &alphaPrice,
		&emission, &ownerTake, &feeRate, &burn, &s.HolderCount,
		&s.Flows.F1d, &s.Flows.F3d, &s.Flows.F7d, &s.Flows.F14d,
		&flowRegime, &regimeCandidate, &s.RegimeCandidateDays, &regimeSince,
		&s.ViabilityScore, &tier, &registeredAt, &s.Rank, &marketCap, &s.MaxDrawdown30d)
	if err != nil {
		return domain.Subnet{}, fmt.Errorf("scan subnet: %w", err)
	}

	s.PoolTAOReserve, err = money.TAOFromString(poolTAO)
	if err != nil {
		return domain.Subnet{}, err
	}
	s.AlphaPriceTAO, err = money.TAOFromString(alphaPrice)
	if err != nil {
		return domain.Subnet{}, err
	}
	s.MarketCapTAO, err = money.TAOFromString(marketCap)
	if err != nil {
		return domain.Subnet{}, err
	}
	if err := scanPercentInto(&s.EmissionShare, emission); err != nil {
		return domain.Subnet{}, err
	}
	if err := scanPercentInto(&s.OwnerTake, ownerTake); err != nil {
		return domain.Subnet{}, err
	}
	if err := scanPercentInto(&s.FeeRate, feeRate); err != nil {
		return domain.Subnet{}, err
	}
	if err := scanPercentInto(&s.IncentiveBurn, burn); err != nil {
		return domain.Subnet{}, err
	}

	s.FlowRegime = domain.FlowRegime(flowRegime)
	s.RegimeCandidate = domain.FlowRegime(regimeCandidate)
	s.ViabilityTier = domain.ViabilityTier(tier)
	s.FlowRegimeSince = parseTime(regimeSince)
	s.RegisteredAt = parseTime(registeredAt)
	s.AgeDays = int(time.Since(s.RegisteredAt).Hours() / 24)
	return s, nil
}

func scanPercentInto(p *money.Percent, s string) error {
	v, err := money.PercentFromString(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
