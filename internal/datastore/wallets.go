package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
)

// WalletRepo persists the set of tracked wallets.
type WalletRepo struct{ db *DB }

func NewWalletRepo(db *DB) *WalletRepo { return &WalletRepo{db: db} }

// Upsert inserts or updates a wallet's label/active flag.
func (r *WalletRepo) Upsert(ctx context.Context, w domain.Wallet) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return upsertWalletTx(tx, w)
	})
}

func upsertWalletTx(tx *sql.Tx, w domain.Wallet) error {
	_, err := tx.Exec(`
		INSERT INTO wallets (address, label, active) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET label = excluded.label, active = excluded.active`,
		w.Address, w.Label, w.Active)
	if err != nil {
		return fmt.Errorf("upsert wallet %s: %w", w.Address, err)
	}
	return nil
}

// List returns all wallets, active or not.
func (r *WalletRepo) List(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT address, label, active FROM wallets ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Address, &w.Label, &w.Active); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Active returns only wallets with active = true, the set the sync
// orchestrator iterates over each tick.
func (r *WalletRepo) Active(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT address, label, active FROM wallets WHERE active = 1 ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Address, &w.Label, &w.Active); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Get returns a single wallet by address.
func (r *WalletRepo) Get(ctx context.Context, address string) (domain.Wallet, error) {
	var w domain.Wallet
	row := r.db.conn.QueryRowContext(ctx, `SELECT address, label, active FROM wallets WHERE address = ?`, address)
	err := row.Scan(&w.Address, &w.Label, &w.Active)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("get wallet %s: %w", address, err)
	}
	return w, nil
}
