package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stableMirror/internal/model"
	"stableMirror/internal/protocol"
	"stableMirror/internal/storage"
)

// RouteSyncConfig configures a RouteSyncer.
type RouteSyncConfig struct {
	PSM          common.Address
	MaxRetries   int
	RetryBackoff time.Duration
}

// RouteSyncer fills the chain-only fields of known PSM routes (buffer,
// decimals, halted) from routes(stable). Event-driven fields are not touched.
type RouteSyncer struct {
	cfg    RouteSyncConfig
	caller protocol.ContractCaller
	store  storage.EntityStore
	logger *zap.Logger
}

func NewRouteSyncer(cfg RouteSyncConfig, caller protocol.ContractCaller, store storage.EntityStore, logger *zap.Logger) *RouteSyncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteSyncer{cfg: cfg, caller: caller, store: store, logger: logger}
}

// Sync refreshes every stored route and returns how many were updated.
func (s *RouteSyncer) Sync(ctx context.Context) (int, error) {
	if s.cfg.PSM == (common.Address{}) {
		return 0, fmt.Errorf("psm address is required")
	}

	var stables []string
	err := s.store.Each(ctx, model.TypePSMRoute, func(e model.Entity) error {
		stables = append(stables, e.EntityKey())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list routes: %w", err)
	}

	updated := 0
	for _, stable := range stables {
		if !common.IsHexAddress(stable) {
			s.logger.Warn("skip route with invalid key", zap.String("stable", stable))
			continue
		}

		var state protocol.RouteState
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			state, err = protocol.ReadRoute(ctx, s.caller, s.cfg.PSM, common.HexToAddress(stable), nil)
			if err != nil {
				s.logger.Warn("route read failed", zap.Error(err), zap.String("stable", stable))
			}
			return err
		})
		if err != nil {
			return updated, fmt.Errorf("read route %s: %w", stable, err)
		}

		if err := s.apply(ctx, stable, state); err != nil {
			return updated, err
		}
		updated++
		s.logger.Info("route synced",
			zap.String("stable", stable),
			zap.String("buffer", state.Buffer.String()),
			zap.Uint8("decimals", state.Decimals),
			zap.Bool("halted", state.Halted),
		)
	}
	return updated, nil
}

func (s *RouteSyncer) apply(ctx context.Context, stable string, state protocol.RouteState) error {
	return s.store.Update(ctx, func(tx storage.Tx) error {
		e, ok, err := tx.Load(ctx, model.TypePSMRoute, stable)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		route, ok := e.(*model.PSMRoute)
		if !ok {
			return fmt.Errorf("route %s: unexpected entity %T", stable, e)
		}
		decimals := state.Decimals
		route.Buffer = state.Buffer
		route.Decimals = &decimals
		route.Halted = state.Halted
		return tx.Upsert(ctx, route)
	})
}
