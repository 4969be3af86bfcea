package notify

import (
	"encoding/json"
	"fmt"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

// Create builds the variant for t. payload is the matching *Input value (or a
// pointer to one), or raw JSON decoded into that input.
func Create(t Type, payload any) (Variant, error) {
	var (
		v   Variant
		err error
	)
	switch t {
	case TypeFarm:
		v, err = build(payload, newFarmEvent)
	case TypeSensorAlert:
		v, err = build(payload, newSensorAlert)
	case TypePowerAlert:
		v, err = build(payload, newPowerAlert)
	default:
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownNotificationType, string(t))
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func build[T any, V Variant](payload any, construct func(T) (V, error)) (Variant, error) {
	in, err := decode[T](payload)
	if err != nil {
		return nil, err
	}
	v, err := construct(in)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decode[T any](payload any) (T, error) {
	var in T
	switch p := payload.(type) {
	case T:
		return p, nil
	case *T:
		if p == nil {
			return in, apperr.Missing("payload")
		}
		return *p, nil
	case json.RawMessage:
		return unmarshalPayload[T](p)
	case []byte:
		return unmarshalPayload[T](p)
	case nil:
		return in, apperr.Missing("payload")
	default:
		return in, apperr.Invalid("payload", fmt.Sprintf("unexpected type %T", payload))
	}
}

func unmarshalPayload[T any](raw []byte) (T, error) {
	var in T
	if len(raw) == 0 {
		return in, apperr.Missing("payload")
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, apperr.Invalid("payload", "is not valid JSON for this type: "+err.Error())
	}
	return in, nil
}
