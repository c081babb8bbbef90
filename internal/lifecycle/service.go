package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/solana"
	"solana-position-tracker/internal/storage"
)

// ErrInvalidOverride is returned for overrides that cannot be stored.
var ErrInvalidOverride = errors.New("invalid override")

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Events    storage.EventStore
	Overrides storage.OverrideStore
	Cursors   storage.CursorStore // optional, cleared together with events
	Logger    *zap.Logger
}

// Service reads stored events and overrides and produces reconciled reports.
type Service struct {
	events    storage.EventStore
	overrides storage.OverrideStore
	cursors   storage.CursorStore
	logger    *zap.Logger
}

// NewService creates a Service.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		events:    opts.Events,
		overrides: opts.Overrides,
		cursors:   opts.Cursors,
		logger:    logger.Named("lifecycle"),
	}
}

// Report reconstructs the wallet's lifecycles and applies its overrides.
func (s *Service) Report(ctx context.Context, wallet string) (*Report, error) {
	if err := solana.ValidateAddress(wallet); err != nil {
		return nil, err
	}

	events, err := s.events.Query(ctx, wallet, storage.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	report := Reconstruct(wallet, events)

	if s.overrides == nil {
		return report, nil
	}
	overrides, err := s.overrides.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	reconciled := Reconcile(report, overrides)

	s.logger.Debug("report built",
		zap.String("wallet", wallet),
		zap.Int("events", len(events)),
		zap.Int("lifecycles", len(reconciled.Lifecycles)),
		zap.Int("overrides", len(overrides)),
		zap.Int("unmatched_overrides", len(reconciled.UnmatchedOverrides)))

	return reconciled, nil
}

// SetOverride validates and stores a manual P&L override. An empty Source
// is stamped as manual.
func (s *Service) SetOverride(ctx context.Context, o *domain.Override) error {
	if o == nil {
		return fmt.Errorf("%w: nil", ErrInvalidOverride)
	}
	if err := solana.ValidateAddress(o.WalletAddress); err != nil {
		return fmt.Errorf("%w: wallet: %v", ErrInvalidOverride, err)
	}
	if o.PositionID == "" {
		return fmt.Errorf("%w: position id is required", ErrInvalidOverride)
	}
	if o.PnLPercent != nil && o.PnLPercent.LessThan(decimal.NewFromInt(-100)) {
		return fmt.Errorf("%w: pnl percent %s below -100", ErrInvalidOverride, o.PnLPercent)
	}
	if o.Source == "" {
		o.Source = domain.OverrideSourceManual
	}

	if err := s.overrides.Upsert(ctx, o); err != nil {
		return fmt.Errorf("store override: %w", err)
	}
	s.logger.Info("override saved",
		zap.String("wallet", o.WalletAddress),
		zap.String("position_id", o.PositionID),
		zap.String("profit_usd", o.ProfitUSD.String()))
	return nil
}

// DeleteOverride removes one override. Returns storage.ErrNotFound if absent.
func (s *Service) DeleteOverride(ctx context.Context, wallet, positionID string) error {
	return s.overrides.Delete(ctx, wallet, positionID)
}

// Clear removes every event and the sync cursor of wallet. Overrides are kept.
func (s *Service) Clear(ctx context.Context, wallet string) (int64, error) {
	if err := solana.ValidateAddress(wallet); err != nil {
		return 0, err
	}
	n, err := s.events.DeleteByWallet(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	if s.cursors != nil {
		if err := s.cursors.Delete(ctx, wallet); err != nil {
			return n, fmt.Errorf("clear cursor: %w", err)
		}
	}
	s.logger.Info("wallet cleared", zap.String("wallet", wallet), zap.Int64("deleted", n))
	return n, nil
}
