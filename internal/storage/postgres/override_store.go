package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

// OverrideStore implements storage.OverrideStore using PostgreSQL.
type OverrideStore struct {
	pool *Pool
}

// NewOverrideStore creates a new OverrideStore.
func NewOverrideStore(pool *Pool) *OverrideStore {
	return &OverrideStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OverrideStore = (*OverrideStore)(nil)

// Upsert inserts or replaces the override, keeping created_at of an existing row.
func (s *OverrideStore) Upsert(ctx context.Context, o *domain.Override) (err error) {
	if o == nil || o.WalletAddress == "" || o.PositionID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("upsert_override", time.Now(), &err)

	source := o.Source
	if source == "" {
		source = domain.OverrideSourceManual
	}
	var pct *string
	if o.PnLPercent != nil {
		v := o.PnLPercent.String()
		pct = &v
	}

	query := `
		INSERT INTO position_overrides (
			wallet_address, position_id, protocol, profit_usd, pnl_percent, source, note
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (wallet_address, position_id) DO UPDATE SET
			protocol    = EXCLUDED.protocol,
			profit_usd  = EXCLUDED.profit_usd,
			pnl_percent = EXCLUDED.pnl_percent,
			source      = EXCLUDED.source,
			note        = EXCLUDED.note,
			updated_at  = now()
	`

	_, err = s.pool.Exec(ctx, query,
		o.WalletAddress, o.PositionID, string(o.Protocol), numericArg(o.ProfitUSD), pct, source, o.Note,
	)
	if err != nil {
		return fmt.Errorf("upsert position override: %w", err)
	}
	return nil
}

// GetByWallet returns all overrides of wallet ordered by position_id.
func (s *OverrideStore) GetByWallet(ctx context.Context, wallet string) (result []*domain.Override, err error) {
	defer observe("get_overrides", time.Now(), &err)

	query := `
		SELECT wallet_address, position_id, protocol, profit_usd::text, pnl_percent::text,
		       source, note, created_at, updated_at
		FROM position_overrides
		WHERE wallet_address = $1
		ORDER BY position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("query position overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o        domain.Override
			protocol string
			profit   string
			pct      *string
		)
		if err := rows.Scan(
			&o.WalletAddress, &o.PositionID, &protocol, &profit, &pct,
			&o.Source, &o.Note, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan position override: %w", err)
		}
		o.Protocol = domain.Protocol(protocol)
		if o.ProfitUSD, err = parseNumeric(profit); err != nil {
			return nil, err
		}
		if pct != nil {
			v, err := parseNumeric(*pct)
			if err != nil {
				return nil, err
			}
			o.PnLPercent = &v
		}
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position overrides: %w", err)
	}
	return result, nil
}

// Delete removes one override. Returns storage.ErrNotFound if absent.
func (s *OverrideStore) Delete(ctx context.Context, wallet, positionID string) (err error) {
	defer observe("delete_override", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM position_overrides WHERE wallet_address = $1 AND position_id = $2`,
		wallet, positionID,
	)
	if err != nil {
		return fmt.Errorf("delete position override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

