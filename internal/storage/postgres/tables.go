package postgres

import (
	"fmt"
	"math/big"
	"strings"

	"stableMirror/internal/model"
)

type column struct {
	name    string
	numeric bool
}

// table maps one entity type to its SQL table. The first column is the key.
type table struct {
	name    string
	columns []column
	touch   bool
	encode  func(model.Entity) ([]any, error)
	decode  func(scan func(dest ...any) error) (model.Entity, error)
}

func (t table) key() string {
	return t.columns[0].name
}

func (t table) selectList() string {
	parts := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if c.numeric {
			parts = append(parts, c.name+"::text")
		} else {
			parts = append(parts, c.name)
		}
	}
	return strings.Join(parts, ", ")
}

func (t table) selectSQL(forUpdate bool) string {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", t.selectList(), t.name, t.key())
	if forUpdate {
		q += " FOR UPDATE"
	}
	return q
}

func (t table) selectAllSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.selectList(), t.name, t.key())
}

func (t table) existsSQL() string {
	return fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", t.name, t.key())
}

func (t table) insertSQL() string {
	names := make([]string, 0, len(t.columns))
	params := make([]string, 0, len(t.columns))
	for i, c := range t.columns {
		names = append(names, c.name)
		p := fmt.Sprintf("$%d", i+1)
		if c.numeric {
			p += "::numeric"
		}
		params = append(params, p)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(names, ", "), strings.Join(params, ", "))
}

func (t table) upsertSQL() string {
	sets := make([]string, 0, len(t.columns))
	for _, c := range t.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c.name, c.name))
	}
	if t.touch {
		sets = append(sets, "updated_at = now()")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", t.insertSQL(), t.key(), strings.Join(sets, ", "))
}

var tables = map[model.EntityType]table{
	model.TypeSystemState: {
		name:    "system_state",
		columns: []column{{name: "id"}, {name: "total_supply", numeric: true}},
		touch:   true,
		encode: func(e model.Entity) ([]any, error) {
			s, ok := e.(*model.SystemState)
			if !ok {
				return nil, typeError(e)
			}
			return []any{s.ID, numText(s.TotalSupply)}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var s model.SystemState
			var supply string
			if err := scan(&s.ID, &supply); err != nil {
				return nil, err
			}
			var err error
			if s.TotalSupply, err = parseNum(supply); err != nil {
				return nil, err
			}
			return &s, nil
		},
	},
	model.TypeSwap: {
		name: "swaps",
		columns: []column{
			{name: "id"}, {name: "user_address"}, {name: "stable"},
			{name: "amount_in", numeric: true}, {name: "amount_out", numeric: true}, {name: "fee_amount", numeric: true},
			{name: "block_number"}, {name: "log_index"}, {name: "block_ts"},
		},
		encode: func(e model.Entity) ([]any, error) {
			s, ok := e.(*model.Swap)
			if !ok {
				return nil, typeError(e)
			}
			return []any{
				s.ID, s.User, s.Stable,
				numText(s.AmountIn), numText(s.AmountOut), numText(s.FeeAmount),
				int64(s.BlockNumber), int64(s.LogIndex), int64(s.Timestamp),
			}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var s model.Swap
			var in, out, fee string
			var block, logIndex, ts int64
			if err := scan(&s.ID, &s.User, &s.Stable, &in, &out, &fee, &block, &logIndex, &ts); err != nil {
				return nil, err
			}
			var err error
			if s.AmountIn, err = parseNum(in); err != nil {
				return nil, err
			}
			if s.AmountOut, err = parseNum(out); err != nil {
				return nil, err
			}
			if s.FeeAmount, err = parseNum(fee); err != nil {
				return nil, err
			}
			s.BlockNumber, s.LogIndex, s.Timestamp = uint64(block), uint64(logIndex), uint64(ts)
			return &s, nil
		},
	},
	model.TypePSMRoute: {
		name: "psm_routes",
		columns: []column{
			{name: "stable"}, {name: "max_depth", numeric: true}, {name: "spread_bps"},
			{name: "buffer", numeric: true}, {name: "decimals"}, {name: "halted"}, {name: "updated_block"},
		},
		touch: true,
		encode: func(e model.Entity) ([]any, error) {
			r, ok := e.(*model.PSMRoute)
			if !ok {
				return nil, typeError(e)
			}
			var decimals *int16
			if r.Decimals != nil {
				d := int16(*r.Decimals)
				decimals = &d
			}
			return []any{
				r.Stable, numText(r.MaxDepth), int32(r.SpreadBps),
				numTextPtr(r.Buffer), decimals, r.Halted, int64(r.UpdatedBlock),
			}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var r model.PSMRoute
			var depth string
			var spread int32
			var buffer *string
			var decimals *int16
			var block int64
			if err := scan(&r.Stable, &depth, &spread, &buffer, &decimals, &r.Halted, &block); err != nil {
				return nil, err
			}
			var err error
			if r.MaxDepth, err = parseNum(depth); err != nil {
				return nil, err
			}
			if buffer != nil {
				if r.Buffer, err = parseNum(*buffer); err != nil {
					return nil, err
				}
			}
			if decimals != nil {
				d := uint8(*decimals)
				r.Decimals = &d
			}
			r.SpreadBps = int64(spread)
			r.UpdatedBlock = uint64(block)
			return &r, nil
		},
	},
	model.TypeAllocator: {
		name: "allocators",
		columns: []column{
			{name: "address"}, {name: "ceiling", numeric: true}, {name: "daily_cap", numeric: true}, {name: "debt", numeric: true},
		},
		touch: true,
		encode: func(e model.Entity) ([]any, error) {
			a, ok := e.(*model.Allocator)
			if !ok {
				return nil, typeError(e)
			}
			return []any{a.Address, numText(a.Ceiling), numText(a.DailyCap), numText(a.Debt)}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var a model.Allocator
			var ceiling, dailyCap, debt string
			if err := scan(&a.Address, &ceiling, &dailyCap, &debt); err != nil {
				return nil, err
			}
			var err error
			if a.Ceiling, err = parseNum(ceiling); err != nil {
				return nil, err
			}
			if a.DailyCap, err = parseNum(dailyCap); err != nil {
				return nil, err
			}
			if a.Debt, err = parseNum(debt); err != nil {
				return nil, err
			}
			return &a, nil
		},
	},
	model.TypeAllocatorAction: {
		name: "allocator_actions",
		columns: []column{
			{name: "id"}, {name: "action_type"}, {name: "allocator"}, {name: "counterparty"},
			{name: "amount", numeric: true}, {name: "block_number"}, {name: "log_index"}, {name: "block_ts"},
		},
		encode: func(e model.Entity) ([]any, error) {
			a, ok := e.(*model.AllocatorAction)
			if !ok {
				return nil, typeError(e)
			}
			return []any{
				a.ID, string(a.Type), a.Allocator, a.Counterparty,
				numText(a.Amount), int64(a.BlockNumber), int64(a.LogIndex), int64(a.Timestamp),
			}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var a model.AllocatorAction
			var typ, amount string
			var block, logIndex, ts int64
			if err := scan(&a.ID, &typ, &a.Allocator, &a.Counterparty, &amount, &block, &logIndex, &ts); err != nil {
				return nil, err
			}
			var err error
			if a.Amount, err = parseNum(amount); err != nil {
				return nil, err
			}
			a.Type = model.AllocatorActionType(typ)
			a.BlockNumber, a.LogIndex, a.Timestamp = uint64(block), uint64(logIndex), uint64(ts)
			return &a, nil
		},
	},
	model.TypeUser: {
		name:    "users",
		columns: []column{{name: "address"}, {name: "s0xusd_balance", numeric: true}},
		touch:   true,
		encode: func(e model.Entity) ([]any, error) {
			u, ok := e.(*model.User)
			if !ok {
				return nil, typeError(e)
			}
			return []any{u.Address, numText(u.SharesBalance)}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var u model.User
			var balance string
			if err := scan(&u.Address, &balance); err != nil {
				return nil, err
			}
			var err error
			if u.SharesBalance, err = parseNum(balance); err != nil {
				return nil, err
			}
			return &u, nil
		},
	},
	model.TypeSavingsAction: {
		name: "savings_actions",
		columns: []column{
			{name: "id"}, {name: "action_type"}, {name: "user_address"}, {name: "owner"}, {name: "receiver"},
			{name: "assets", numeric: true}, {name: "shares", numeric: true},
			{name: "block_number"}, {name: "log_index"}, {name: "block_ts"},
		},
		encode: func(e model.Entity) ([]any, error) {
			a, ok := e.(*model.SavingsAction)
			if !ok {
				return nil, typeError(e)
			}
			return []any{
				a.ID, string(a.Type), a.User, a.Owner, a.Receiver,
				numText(a.Assets), numText(a.Shares),
				int64(a.BlockNumber), int64(a.LogIndex), int64(a.Timestamp),
			}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var a model.SavingsAction
			var typ, assets, shares string
			var block, logIndex, ts int64
			if err := scan(&a.ID, &typ, &a.User, &a.Owner, &a.Receiver, &assets, &shares, &block, &logIndex, &ts); err != nil {
				return nil, err
			}
			var err error
			if a.Assets, err = parseNum(assets); err != nil {
				return nil, err
			}
			if a.Shares, err = parseNum(shares); err != nil {
				return nil, err
			}
			a.Type = model.SavingsActionType(typ)
			a.BlockNumber, a.LogIndex, a.Timestamp = uint64(block), uint64(logIndex), uint64(ts)
			return &a, nil
		},
	},
	model.TypeSupplyChange: {
		name: "supply_changes",
		columns: []column{
			{name: "id"}, {name: "direction"}, {name: "account"}, {name: "value", numeric: true},
			{name: "block_number"}, {name: "log_index"}, {name: "block_ts"},
		},
		encode: func(e model.Entity) ([]any, error) {
			s, ok := e.(*model.SupplyChange)
			if !ok {
				return nil, typeError(e)
			}
			return []any{
				s.ID, string(s.Direction), s.Account, numText(s.Value),
				int64(s.BlockNumber), int64(s.LogIndex), int64(s.Timestamp),
			}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var s model.SupplyChange
			var dir, value string
			var block, logIndex, ts int64
			if err := scan(&s.ID, &dir, &s.Account, &value, &block, &logIndex, &ts); err != nil {
				return nil, err
			}
			var err error
			if s.Value, err = parseNum(value); err != nil {
				return nil, err
			}
			s.Direction = model.SupplyDirection(dir)
			s.BlockNumber, s.LogIndex, s.Timestamp = uint64(block), uint64(logIndex), uint64(ts)
			return &s, nil
		},
	},
	model.TypeProtocolParam: {
		name: "protocol_params",
		columns: []column{
			{name: "key"}, {name: "kind"}, {name: "value"}, {name: "updated_block"}, {name: "updated_ts"},
		},
		encode: func(e model.Entity) ([]any, error) {
			p, ok := e.(*model.ProtocolParam)
			if !ok {
				return nil, typeError(e)
			}
			return []any{p.Key, p.Kind, p.Value, int64(p.UpdatedBlock), int64(p.UpdatedAt)}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var p model.ProtocolParam
			var block, ts int64
			if err := scan(&p.Key, &p.Kind, &p.Value, &block, &ts); err != nil {
				return nil, err
			}
			p.UpdatedBlock, p.UpdatedAt = uint64(block), uint64(ts)
			return &p, nil
		},
	},
	model.TypeAppliedEvent: {
		name: "applied_events",
		columns: []column{
			{name: "key"}, {name: "stream"}, {name: "kind"}, {name: "block_number"}, {name: "log_index"},
		},
		encode: func(e model.Entity) ([]any, error) {
			a, ok := e.(*model.AppliedEvent)
			if !ok {
				return nil, typeError(e)
			}
			return []any{a.Key, a.Stream, a.Kind, int64(a.BlockNumber), int64(a.LogIndex)}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var a model.AppliedEvent
			var block, logIndex int64
			if err := scan(&a.Key, &a.Stream, &a.Kind, &block, &logIndex); err != nil {
				return nil, err
			}
			a.BlockNumber, a.LogIndex = uint64(block), uint64(logIndex)
			return &a, nil
		},
	},
	model.TypeStreamCursor: {
		name:    "stream_cursors",
		columns: []column{{name: "stream"}, {name: "block_number"}, {name: "log_index"}},
		touch:   true,
		encode: func(e model.Entity) ([]any, error) {
			c, ok := e.(*model.StreamCursor)
			if !ok {
				return nil, typeError(e)
			}
			return []any{c.Stream, int64(c.BlockNumber), int64(c.LogIndex)}, nil
		},
		decode: func(scan func(dest ...any) error) (model.Entity, error) {
			var c model.StreamCursor
			var block, logIndex int64
			if err := scan(&c.Stream, &block, &logIndex); err != nil {
				return nil, err
			}
			c.BlockNumber, c.LogIndex = uint64(block), uint64(logIndex)
			return &c, nil
		},
	},
}

func tableFor(typ model.EntityType) (table, error) {
	t, ok := tables[typ]
	if !ok {
		return table{}, fmt.Errorf("no table for entity type %q", typ)
	}
	return t, nil
}

func typeError(e model.Entity) error {
	return fmt.Errorf("unexpected entity %T for %s", e, e.EntityType())
}

func numText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func numTextPtr(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseNum(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric: %s", value)
	}
	return parsed, nil
}
