package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `
	wallet_address, signature, protocol, kind, position_id, pool_id,
	token_x_mint, token_x_symbol, token_x_decimals, token_x_amount::text,
	token_y_mint, token_y_symbol, token_y_decimals, token_y_amount::text,
	total_usd_value::text, slot, block_time, succeeded, payload
`

// Upsert inserts e unless (wallet_address, signature) exists.
func (s *EventStore) Upsert(ctx context.Context, e *domain.Event) (inserted bool, err error) {
	if e == nil || e.Signature == "" || e.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}
	defer observe("upsert_event", time.Now(), &err)

	payload, err := domain.EncodePayload(e.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}

	query := `
		INSERT INTO position_events (
			wallet_address, signature, protocol, kind, position_id, pool_id,
			token_x_mint, token_x_symbol, token_x_decimals, token_x_amount,
			token_y_mint, token_y_symbol, token_y_decimals, token_y_amount,
			total_usd_value, slot, block_time, succeeded, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10::numeric,
			$11, $12, $13, $14::numeric,
			$15::numeric, $16, $17, $18, $19
		)
		ON CONFLICT (wallet_address, signature) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		e.WalletAddress, e.Signature, string(e.Protocol), string(e.Kind), e.PositionID, e.PoolID,
		e.TokenX.Mint, e.TokenX.Symbol, e.TokenX.Decimals, numericArg(e.TokenX.Amount),
		e.TokenY.Mint, e.TokenY.Symbol, e.TokenY.Decimals, numericArg(e.TokenY.Amount),
		numericArg(e.TotalUSDValue), e.Slot, e.BlockTime, e.Succeeded, payload,
	)
	if err != nil {
		return false, fmt.Errorf("insert position event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteByWallet removes all events of wallet.
func (s *EventStore) DeleteByWallet(ctx context.Context, wallet string) (n int64, err error) {
	defer observe("delete_events", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM position_events WHERE wallet_address = $1`, wallet)
	if err != nil {
		return 0, fmt.Errorf("delete position events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Query returns the wallet's events matching filter, ordered by block_time, signature.
func (s *EventStore) Query(ctx context.Context, wallet string, filter storage.EventFilter) (events []*domain.Event, err error) {
	defer observe("query_events", time.Now(), &err)

	where := []string{"wallet_address = $1"}
	args := []interface{}{wallet}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.Protocol != "" {
		add("protocol = $%d", string(filter.Protocol))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		add("kind = ANY($%d)", kinds)
	}
	if filter.PositionID != "" {
		add("position_id = $%d", filter.PositionID)
	}
	if filter.From > 0 {
		add("block_time >= $%d", filter.From)
	}
	if filter.To > 0 {
		add("block_time <= $%d", filter.To)
	}

	query := "SELECT " + eventColumns + " FROM position_events WHERE " +
		strings.Join(where, " AND ") + " ORDER BY block_time ASC, signature ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query position events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Ping verifies the pool can reach the database.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var result []*domain.Event
	for rows.Next() {
		var (
			e                     domain.Event
			protocol, kind        string
			xAmount, yAmount, usd string
			payload               []byte
		)
		err := rows.Scan(
			&e.WalletAddress, &e.Signature, &protocol, &kind, &e.PositionID, &e.PoolID,
			&e.TokenX.Mint, &e.TokenX.Symbol, &e.TokenX.Decimals, &xAmount,
			&e.TokenY.Mint, &e.TokenY.Symbol, &e.TokenY.Decimals, &yAmount,
			&usd, &e.Slot, &e.BlockTime, &e.Succeeded, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position event: %w", err)
		}

		e.Protocol = domain.Protocol(protocol)
		e.Kind = domain.EventKind(kind)
		if e.TokenX.Amount, err = parseNumeric(xAmount); err != nil {
			return nil, err
		}
		if e.TokenY.Amount, err = parseNumeric(yAmount); err != nil {
			return nil, err
		}
		if e.TotalUSDValue, err = parseNumeric(usd); err != nil {
			return nil, err
		}
		if e.Payload, err = domain.DecodePayload(payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", e.Signature, err)
		}

		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position events: %w", err)
	}
	return result, nil
}
