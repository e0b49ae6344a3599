package projector

import (
	"context"
	"fmt"
	"strings"

	"stableMirror/internal/event"
	"stableMirror/internal/model"
)

var paramKinds = map[event.Kind]event.ParamType{
	event.KindAddressParamUpdated: event.ParamAddress,
	event.KindUintParamUpdated:    event.ParamUint,
	event.KindBoolParamUpdated:    event.ParamBool,
}

// planParamUpdated stores the latest registry value under its bytes32 key.
func planParamUpdated(env event.Envelope) (plan, error) {
	key, err := env.Bytes32("key")
	if err != nil {
		return plan{}, err
	}
	want, ok := paramKinds[env.Kind]
	if !ok {
		return plan{}, fmt.Errorf("%s is not a param event", env.Kind)
	}
	value, ok := env.Param("value")
	if !ok {
		return plan{}, fmt.Errorf("%s %q: %w", env.Kind, "value", event.ErrMissingParam)
	}
	if value.Type() != want {
		return plan{}, fmt.Errorf("%s %q is %s, want %s: %w", env.Kind, "value", value.Type(), want, event.ErrParamType)
	}
	ref := model.Ref{Type: model.TypeProtocolParam, Key: strings.ToLower(key.Hex())}

	return plan{refs: []model.Ref{ref}, run: func(ctx context.Context, view View) (*Effect, error) {
		eff := &Effect{}
		eff.upsert(&model.ProtocolParam{
			Key:          ref.Key,
			Kind:         want.String(),
			Value:        value.String(),
			UpdatedBlock: env.BlockNumber,
			UpdatedAt:    env.Timestamp,
		})
		return eff, nil
	}}, nil
}
