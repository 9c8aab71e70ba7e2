package command

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// wireValue keeps property values typed across JSON, which would otherwise
// turn every integer into a float64.
type wireValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v,omitempty"`
}

func encodeValue(value any) (wireValue, error) {
	var typ string
	switch value.(type) {
	case nil:
		return wireValue{Type: "nil"}, nil
	case int:
		typ = "int"
	case int64:
		typ = "int64"
	case float64:
		typ = "float"
	case string:
		typ = "string"
	case bool:
		typ = "bool"
	case object.ID:
		typ = "id"
	case []object.ID:
		typ = "ids"
	case []int:
		typ = "ints"
	case []string:
		typ = "strings"
	default:
		return wireValue{}, fmt.Errorf("unsupported property value %T", value)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return wireValue{}, err
	}
	return wireValue{Type: typ, Value: raw}, nil
}

func decodeValue(w wireValue) (any, error) {
	switch w.Type {
	case "nil":
		return nil, nil
	case "int":
		return decodeAs[int](w.Value)
	case "int64":
		return decodeAs[int64](w.Value)
	case "float":
		return decodeAs[float64](w.Value)
	case "string":
		return decodeAs[string](w.Value)
	case "bool":
		return decodeAs[bool](w.Value)
	case "id":
		return decodeAs[object.ID](w.Value)
	case "ids":
		return decodeAs[[]object.ID](w.Value)
	case "ints":
		return decodeAs[[]int](w.Value)
	case "strings":
		return decodeAs[[]string](w.Value)
	default:
		return nil, fmt.Errorf("unsupported property value type %q", w.Type)
	}
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeProps(props map[object.Property]any) (map[object.Property]wireValue, error) {
	out := make(map[object.Property]wireValue, len(props))
	for prop, value := range props {
		encoded, err := encodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", prop, err)
		}
		out[prop] = encoded
	}
	return out, nil
}

func decodeProps(props map[object.Property]wireValue) (map[object.Property]any, error) {
	out := make(map[object.Property]any, len(props))
	for prop, value := range props {
		decoded, err := decodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", prop, err)
		}
		out[prop] = decoded
	}
	return out, nil
}
