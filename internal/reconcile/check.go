// Package reconcile verifies projected totals against the append-only
// history they were built from. Violations are reported, never corrected.
package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"stableMirror/internal/model"
	"stableMirror/internal/storage"
)

const (
	CheckSupplyHistory     = "supply_history"
	CheckSupplyNegative    = "supply_negative"
	CheckAllocatorDebt     = "allocator_debt"
	CheckAllocatorNegative = "allocator_negative"
	CheckAllocatorMissing  = "allocator_missing"
	CheckUserBalance       = "user_balance"
	CheckUserNegative      = "user_negative"
	CheckUserMissing       = "user_missing"
	CheckRouteSpread       = "route_spread"
	CheckRouteDepth        = "route_depth"
)

// Violation is one failed invariant.
type Violation struct {
	Check    string    `json:"check"`
	Entity   model.Ref `json:"entity"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
}

// Report is the result of one Check run.
type Report struct {
	Violations []Violation              `json:"violations"`
	Checked    map[model.EntityType]int `json:"checked"`
}

func (r Report) OK() bool { return len(r.Violations) == 0 }

// Log writes a summary line and one line per violation.
func (r Report) Log(logger *zap.Logger) {
	if logger == nil {
		return
	}
	for _, v := range r.Violations {
		logger.Error("invariant violation",
			zap.String("check", v.Check),
			zap.String("entity_type", string(v.Entity.Type)),
			zap.String("entity_key", v.Entity.Key),
			zap.String("expected", v.Expected),
			zap.String("actual", v.Actual),
		)
	}
	logger.Info("invariant check complete",
		zap.Int("violations", len(r.Violations)),
		zap.Int("allocators", r.Checked[model.TypeAllocator]),
		zap.Int("users", r.Checked[model.TypeUser]),
		zap.Int("routes", r.Checked[model.TypePSMRoute]),
	)
}

type checker struct {
	ctx    context.Context
	reader storage.Reader
	report Report
}

// Check runs every invariant over the full entity set.
func Check(ctx context.Context, reader storage.Reader) (Report, error) {
	c := &checker{
		ctx:    ctx,
		reader: reader,
		report: Report{Checked: make(map[model.EntityType]int)},
	}
	steps := []func() error{c.checkSupply, c.checkAllocators, c.checkUsers, c.checkRoutes}
	for _, step := range steps {
		if err := step(); err != nil {
			return Report{}, err
		}
	}

	sort.SliceStable(c.report.Violations, func(i, j int) bool {
		a, b := c.report.Violations[i], c.report.Violations[j]
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		return a.Entity.Key < b.Entity.Key
	})
	return c.report, nil
}

func (c *checker) violation(check string, ref model.Ref, expected, actual *big.Int) {
	v := Violation{Check: check, Entity: ref}
	if expected != nil {
		v.Expected = expected.String()
	}
	if actual != nil {
		v.Actual = actual.String()
	}
	c.report.Violations = append(c.report.Violations, v)
}

func (c *checker) each(typ model.EntityType, fn func(model.Entity) error) error {
	err := c.reader.Each(c.ctx, typ, func(e model.Entity) error {
		c.report.Checked[typ]++
		return fn(e)
	})
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", typ, err)
	}
	return nil
}

func (c *checker) checkSupply() error {
	history := new(big.Int)
	records := 0
	err := c.each(model.TypeSupplyChange, func(e model.Entity) error {
		change, ok := e.(*model.SupplyChange)
		if !ok {
			return fmt.Errorf("unexpected entity %T", e)
		}
		records++
		switch change.Direction {
		case model.SupplyMint:
			history.Add(history, change.Value)
		case model.SupplyBurn:
			history.Sub(history, change.Value)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ref := model.Ref{Type: model.TypeSystemState, Key: model.SystemStateID}
	e, ok, err := c.reader.Load(c.ctx, model.TypeSystemState, model.SystemStateID)
	if err != nil {
		return fmt.Errorf("load system state: %w", err)
	}
	supply := new(big.Int)
	if ok {
		c.report.Checked[model.TypeSystemState]++
		state, isState := e.(*model.SystemState)
		if !isState {
			return fmt.Errorf("unexpected entity %T", e)
		}
		supply = state.TotalSupply
	} else if records == 0 {
		return nil
	}

	if supply.Sign() < 0 {
		c.violation(CheckSupplyNegative, ref, nil, supply)
	}
	if supply.Cmp(history) != 0 {
		c.violation(CheckSupplyHistory, ref, history, supply)
	}
	return nil
}

func (c *checker) checkAllocators() error {
	sums := make(map[string]*big.Int)
	err := c.each(model.TypeAllocatorAction, func(e model.Entity) error {
		action, ok := e.(*model.AllocatorAction)
		if !ok {
			return fmt.Errorf("unexpected entity %T", e)
		}
		sum := sumFor(sums, action.Allocator)
		switch action.Type {
		case model.AllocatorMint:
			sum.Add(sum, action.Amount)
		case model.AllocatorRepay:
			sum.Sub(sum, action.Amount)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = c.each(model.TypeAllocator, func(e model.Entity) error {
		alloc, ok := e.(*model.Allocator)
		if !ok {
			return fmt.Errorf("unexpected entity %T", e)
		}
		ref := model.Ref{Type: model.TypeAllocator, Key: alloc.Address}
		expected := sumFor(sums, alloc.Address)
		delete(sums, alloc.Address)
		if alloc.Debt.Sign() < 0 {
			c.violation(CheckAllocatorNegative, ref, nil, alloc.Debt)
		}
		if alloc.Debt.Cmp(expected) != 0 {
			c.violation(CheckAllocatorDebt, ref, expected, alloc.Debt)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for key, sum := range sums {
		c.violation(CheckAllocatorMissing, model.Ref{Type: model.TypeAllocator, Key: key}, sum, nil)
	}
	return nil
}

func (c *checker) checkUsers() error {
	sums := make(map[string]*big.Int)
	err := c.each(model.TypeSavingsAction, func(e model.Entity) error {
		action, ok := e.(*model.SavingsAction)
		if !ok {
			return fmt.Errorf("unexpected entity %T", e)
		}
		sum := sumFor(sums, action.User)
		switch action.Type {
		case model.SavingsDeposit:
			sum.Add(sum, action.Shares)
		case model.SavingsWithdraw:
			sum.Sub(sum, action.Shares)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = c.each(model.TypeUser, func(e model.Entity) error {
		user, ok := e.(*model.User)
		if !ok {
			return fmt.Errorf("unexpected entity %T", e)
		}
		ref := model.Ref{Type: model.TypeUser, Key: user.Address}
		expected := sumFor(sums, user.Address)
		delete(sums, user.Address)
		if user.SharesBalance.Sign() < 0 {
			c.violation(CheckUserNegative, ref, nil, user.SharesBalance)
		}
		if user.SharesBalance.Cmp(expected) != 0 {
			c.violation(CheckUserBalance, ref, expected, user.SharesBalance)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for key, sum := range sums {
		c.violation(CheckUserMissing, model.Ref{Type: model.TypeUser, Key: key}, sum, nil)
	}
	return nil
}

func (c *checker) checkRoutes() error {
	return c.each(model.TypePSMRoute, func(e model.Entity) error {
		route, ok := e.(*model.PSMRoute)
		if !ok {
			return fmt.Errorf("unexpected entity %T", e)
		}
		ref := model.Ref{Type: model.TypePSMRoute, Key: route.Stable}
		if route.SpreadBps < 0 || route.SpreadBps > model.MaxSpreadBps {
			c.violation(CheckRouteSpread, ref, big.NewInt(model.MaxSpreadBps), big.NewInt(route.SpreadBps))
		}
		if route.MaxDepth != nil && route.MaxDepth.Sign() < 0 {
			c.violation(CheckRouteDepth, ref, nil, route.MaxDepth)
		}
		return nil
	})
}

func sumFor(sums map[string]*big.Int, key string) *big.Int {
	sum, ok := sums[key]
	if !ok {
		sum = new(big.Int)
		sums[key] = sum
	}
	return sum
}
