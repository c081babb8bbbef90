package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

// EventStore implements storage.EventStore on a ReplacingMergeTree table.
// ClickHouse does not enforce keys, so Upsert checks existence first and
// readers use FINAL to collapse rows written by racing inserts.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `
	wallet_address, signature, protocol, kind, position_id, pool_id,
	token_x_mint, token_x_symbol, token_x_decimals, token_x_amount,
	token_y_mint, token_y_symbol, token_y_decimals, token_y_amount,
	total_usd_value, slot, block_time, succeeded, payload
`

// Upsert inserts e unless (wallet_address, signature) exists.
func (s *EventStore) Upsert(ctx context.Context, e *domain.Event) (inserted bool, err error) {
	if e == nil || e.Signature == "" || e.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}
	defer observe("upsert_event", time.Now(), &err)

	exists, err := s.exists(ctx, e.WalletAddress, e.Signature)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return false, nil
	}

	payload, err := domain.EncodePayload(e.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO position_events ("+eventColumns+")")
	if err != nil {
		return false, fmt.Errorf("prepare batch: %w", err)
	}

	var succeeded uint8
	if e.Succeeded {
		succeeded = 1
	}
	err = batch.Append(
		e.WalletAddress, e.Signature, string(e.Protocol), string(e.Kind), e.PositionID, e.PoolID,
		e.TokenX.Mint, e.TokenX.Symbol, int32(e.TokenX.Decimals), e.TokenX.Amount,
		e.TokenY.Mint, e.TokenY.Symbol, int32(e.TokenY.Decimals), e.TokenY.Amount,
		e.TotalUSDValue, e.Slot, e.BlockTime, succeeded, string(payload),
	)
	if err != nil {
		return false, fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return false, fmt.Errorf("send batch: %w", err)
	}
	return true, nil
}

// DeleteByWallet removes all events of wallet. The mutation runs synchronously.
func (s *EventStore) DeleteByWallet(ctx context.Context, wallet string) (n int64, err error) {
	defer observe("delete_events", time.Now(), &err)

	var count uint64
	err = s.conn.QueryRow(ctx,
		`SELECT count() FROM position_events FINAL WHERE wallet_address = ?`, wallet,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 1,
	}))
	if err := s.conn.Exec(ctx, `ALTER TABLE position_events DELETE WHERE wallet_address = ?`, wallet); err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return int64(count), nil
}

// Query returns the wallet's events matching filter, ordered by block_time, signature.
func (s *EventStore) Query(ctx context.Context, wallet string, filter storage.EventFilter) (events []*domain.Event, err error) {
	defer observe("query_events", time.Now(), &err)

	where := []string{"wallet_address = ?"}
	args := []interface{}{wallet}

	if filter.Protocol != "" {
		where = append(where, "protocol = ?")
		args = append(args, string(filter.Protocol))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		where = append(where, "has(?, kind)")
		args = append(args, kinds)
	}
	if filter.PositionID != "" {
		where = append(where, "position_id = ?")
		args = append(args, filter.PositionID)
	}
	if filter.From > 0 {
		where = append(where, "block_time >= ?")
		args = append(args, filter.From)
	}
	if filter.To > 0 {
		where = append(where, "block_time <= ?")
		args = append(args, filter.To)
	}

	query := "SELECT " + eventColumns + " FROM position_events FINAL WHERE " +
		strings.Join(where, " AND ") + " ORDER BY block_time ASC, signature ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Ping verifies the server is reachable.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *EventStore) exists(ctx context.Context, wallet, signature string) (bool, error) {
	query := `
		SELECT count() FROM position_events FINAL
		WHERE wallet_address = ? AND signature = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, wallet, signature).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			e                    domain.Event
			protocol, kind       string
			xDecimals, yDecimals int32
			succeeded            uint8
			payload              string
		)
		err := rows.Scan(
			&e.WalletAddress, &e.Signature, &protocol, &kind, &e.PositionID, &e.PoolID,
			&e.TokenX.Mint, &e.TokenX.Symbol, &xDecimals, &e.TokenX.Amount,
			&e.TokenY.Mint, &e.TokenY.Symbol, &yDecimals, &e.TokenY.Amount,
			&e.TotalUSDValue, &e.Slot, &e.BlockTime, &succeeded, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Protocol = domain.Protocol(protocol)
		e.Kind = domain.EventKind(kind)
		e.TokenX.Decimals = int(xDecimals)
		e.TokenY.Decimals = int(yDecimals)
		e.Succeeded = succeeded == 1
		if e.Payload, err = domain.DecodePayload([]byte(payload)); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", e.Signature, err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
