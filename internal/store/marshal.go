package store

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/dfsim/internal/ir"
)

// marshalBindings converts Input bindings to canonical JSON TEXT,
// e.g. {"a":{"int":5}}.
func marshalBindings(bindings map[string]ir.Value) (string, error) {
	doc := make(map[string]any, len(bindings))
	for id, v := range bindings {
		doc[id] = v
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("marshal bindings: %w", err)
	}
	return string(data), nil
}

// unmarshalBindings parses the form written by marshalBindings.
// No bindings decode to a nil map.
func unmarshalBindings(data string) (map[string]ir.Value, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal bindings: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]ir.Value, len(raw))
	for id, body := range raw {
		v, err := ir.UnmarshalValue(body)
		if err != nil {
			return nil, fmt.Errorf("unmarshal binding %q: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}

// marshalCells converts a memory image to a canonical JSON array ordered
// by address, e.g. [{"address":1,"value":{"int":42}}].
func marshalCells(image map[int64]ir.Value) (string, error) {
	addrs := make([]int64, 0, len(image))
	for a := range image {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)

	doc := make([]any, len(addrs))
	for i, a := range addrs {
		doc[i] = map[string]any{"address": a, "value": image[a]}
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("marshal memory: %w", err)
	}
	return string(data), nil
}

type cellJSON struct {
	Address int64           `json:"address"`
	Value   json.RawMessage `json:"value"`
}

// unmarshalCells parses the form written by marshalCells.
func unmarshalCells(data string) (map[int64]ir.Value, error) {
	var raw []cellJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal memory: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[int64]ir.Value, len(raw))
	for _, c := range raw {
		v, err := ir.UnmarshalValue(c.Value)
		if err != nil {
			return nil, fmt.Errorf("unmarshal memory @%d: %w", c.Address, err)
		}
		out[c.Address] = v
	}
	return out, nil
}

// marshalValue stores a Value as tagged JSON TEXT. A nil Value is SQL NULL.
func marshalValue(v ir.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalValue is the inverse of marshalValue.
func unmarshalValue(data *string) (ir.Value, error) {
	if data == nil {
		return nil, nil
	}
	return ir.UnmarshalValue([]byte(*data))
}

// marshalTokens stores consumed inputs as a JSON array of tagged tokens.
func marshalTokens(tokens []ir.Token) (string, error) {
	if tokens == nil {
		tokens = []ir.Token{}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	return string(data), nil
}

// unmarshalTokens returns nil for a source firing, matching the engine.
func unmarshalTokens(data string) ([]ir.Token, error) {
	var tokens []ir.Token
	if err := json.Unmarshal([]byte(data), &tokens); err != nil {
		return nil, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return tokens, nil
}
