package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// StakeTransactionRepo persists the immutable on-chain stake ledger that
// backs FIFO cost-basis accounting (§4.5).
type StakeTransactionRepo struct{ db *DB }

func NewStakeTransactionRepo(db *DB) *StakeTransactionRepo { return &StakeTransactionRepo{db: db} }

// Insert appends one stake transaction. A duplicate extrinsic id (the
// same transaction re-fetched by a later sync pass) is swallowed as
// already-applied, per §7.
func (r *StakeTransactionRepo) Insert(ctx context.Context, tx domain.StakeTransaction) error {
	return r.db.WithTx(ctx, func(sqlTx *sql.Tx) error {
		return insertStakeTransactionTx(sqlTx, tx)
	})
}

func insertStakeTransactionTx(tx *sql.Tx, t domain.StakeTransaction) error {
	amountTAO, _ := t.AmountTAO.Value()
	feeTAO, _ := t.FeeTAO.Value()

	var limitPrice interface{}
	if t.LimitPrice != nil {
		v, _ := t.LimitPrice.Value()
		limitPrice = v
	}
	var alphaAmount interface{}
	if t.AlphaAmount != nil {
		alphaAmount = *t.AlphaAmount
	}

	_, err := tx.Exec(`
		INSERT INTO stake_transactions (
			extrinsic_id, block_number, timestamp, wallet, netuid, hotkey,
			type, amount_rao, amount_tao, alpha_amount, limit_price, fee_tao, success
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ExtrinsicID, t.BlockNumber, formatTime(t.Timestamp), t.Wallet, t.NetUID, t.Hotkey,
		string(t.Type), t.AmountRao, amountTAO, alphaAmount, limitPrice, feeTAO, t.Success)
	if err != nil {
		if IsUniqueConstraintViolation(err) {
			return nil
		}
		return fmt.Errorf("insert stake transaction %s: %w", t.ExtrinsicID, err)
	}
	return nil
}

// ListByPosition returns every transaction for a (wallet, netuid) pair in
// ascending block order, the order the FIFO lot queue replays them in.
func (r *StakeTransactionRepo) ListByPosition(ctx context.Context, wallet string, netuid int) ([]domain.StakeTransaction, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT extrinsic_id, block_number, timestamp, wallet, netuid, hotkey,
			type, amount_rao, amount_tao, alpha_amount, limit_price, fee_tao, success
		FROM stake_transactions WHERE wallet = ? AND netuid = ? ORDER BY block_number ASC`, wallet, netuid)
	if err != nil {
		return nil, fmt.Errorf("list stake transactions for %s/%d: %w", wallet, netuid, err)
	}
	defer rows.Close()

	var out []domain.StakeTransaction
	for rows.Next() {
		st, err := scanStakeTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LatestBlock returns the highest block number recorded for a wallet
// across all subnets, used to bound incremental extrinsic fetches.
func (r *StakeTransactionRepo) LatestBlock(ctx context.Context, wallet string) (int64, error) {
	var block sql.NullInt64
	row := r.db.conn.QueryRowContext(ctx, `SELECT MAX(block_number) FROM stake_transactions WHERE wallet = ?`, wallet)
	if err := row.Scan(&block); err != nil {
		return 0, fmt.Errorf("latest block for %s: %w", wallet, err)
	}
	return block.Int64, nil
}

func scanStakeTransaction(rows *sql.Rows) (domain.StakeTransaction, error) {
	var t domain.StakeTransaction
	var timestamp, amountTAO, feeTAO string
	var alphaAmount, limitPrice sql.NullString
	var alphaAmountF sql.NullFloat64

	err := rows.Scan(
		&t.ExtrinsicID, &t.BlockNumber, &timestamp, &t.Wallet, &t.NetUID, &t.Hotkey,
		&t.Type, &t.AmountRao, &amountTAO, &alphaAmountF, &limitPrice, &feeTAO, &t.Success)
	if err != nil {
		return domain.StakeTransaction{}, fmt.Errorf("scan stake transaction: %w", err)
	}
	_ = alphaAmount

	t.Timestamp = parseTime(timestamp)
	t.AmountTAO, err = money.TAOFromString(amountTAO)
	if err != nil {
		return domain.StakeTransaction{}, err
	}
	t.FeeTAO, err = money.TAOFromString(feeTAO)
	if err != nil {
		return domain.StakeTransaction{}, err
	}
	if alphaAmountF.Valid {
		v := alphaAmountF.Float64
		t.AlphaAmount = &v
	}
	if limitPrice.Valid {
		lp, err := money.TAOFromString(limitPrice.String)
		if err != nil {
			return domain.StakeTransaction{}, err
		}
		t.LimitPrice = &lp
	}
	return t, nil
}
