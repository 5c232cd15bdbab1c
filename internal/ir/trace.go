package ir

import (
	"encoding/json"
	"fmt"
)

// Token is one consumed input: the slot it was dequeued from and its value.
type Token struct {
	Slot  int
	Value Value
}

// Firing records one node execution within a step.
type Firing struct {
	Node   string
	Kind   Kind
	Inputs []Token

	// Output is nil when the firing produced no token (a stall).
	Output Value
}

// Produced reports whether the firing emitted a token.
func (f Firing) Produced() bool {
	return f.Output != nil
}

// MemoryWrite is a Store committed at the end of a step.
type MemoryWrite struct {
	Node    string
	Address int64
	Value   Value
}

// StepRecord is the trace entry for one bulk-synchronous step.
// Firings appear in graph declaration order.
type StepRecord struct {
	Step      int64
	Firings   []Firing
	Writes    []MemoryWrite
	Completed bool
}

// Fired returns the ids of the nodes that fired in this step.
func (r StepRecord) Fired() []string {
	ids := make([]string, len(r.Firings))
	for i, f := range r.Firings {
		ids[i] = f.Node
	}
	return ids
}

type tokenJSON struct {
	Slot  int             `json:"slot"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (t Token) MarshalJSON() ([]byte, error) {
	v, err := MarshalValue(t.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tokenJSON{Slot: t.Slot, Value: v})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Token) UnmarshalJSON(data []byte) error {
	var in tokenJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v, err := UnmarshalValue(in.Value)
	if err != nil {
		return fmt.Errorf("token slot %d: %w", in.Slot, err)
	}
	*t = Token{Slot: in.Slot, Value: v}
	return nil
}

type firingJSON struct {
	Node   string          `json:"node"`
	Kind   Kind            `json:"kind"`
	Inputs []Token         `json:"inputs"`
	Output json.RawMessage `json:"output,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f Firing) MarshalJSON() ([]byte, error) {
	out := firingJSON{Node: f.Node, Kind: f.Kind, Inputs: f.Inputs}
	if out.Inputs == nil {
		out.Inputs = []Token{}
	}
	if f.Output != nil {
		v, err := MarshalValue(f.Output)
		if err != nil {
			return nil, fmt.Errorf("firing %q output: %w", f.Node, err)
		}
		out.Output = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Firing) UnmarshalJSON(data []byte) error {
	var in firingJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = Firing{Node: in.Node, Kind: in.Kind, Inputs: in.Inputs}
	if len(in.Output) > 0 {
		v, err := UnmarshalValue(in.Output)
		if err != nil {
			return fmt.Errorf("firing %q output: %w", in.Node, err)
		}
		f.Output = v
	}
	return nil
}

type writeJSON struct {
	Node    string          `json:"node"`
	Address int64           `json:"address"`
	Value   json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (w MemoryWrite) MarshalJSON() ([]byte, error) {
	v, err := MarshalValue(w.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(writeJSON{Node: w.Node, Address: w.Address, Value: v})
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *MemoryWrite) UnmarshalJSON(data []byte) error {
	var in writeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v, err := UnmarshalValue(in.Value)
	if err != nil {
		return fmt.Errorf("write @%d: %w", in.Address, err)
	}
	*w = MemoryWrite{Node: in.Node, Address: in.Address, Value: v}
	return nil
}

// stepRecordJSON keeps snake_case tags on the record envelope.
type stepRecordJSON struct {
	Step      int64         `json:"step"`
	Firings   []Firing      `json:"firings"`
	Writes    []MemoryWrite `json:"writes,omitempty"`
	Completed bool          `json:"completed"`
}

// MarshalJSON implements json.Marshaler.
func (r StepRecord) MarshalJSON() ([]byte, error) {
	out := stepRecordJSON(r)
	if out.Firings == nil {
		out.Firings = []Firing{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *StepRecord) UnmarshalJSON(data []byte) error {
	var in stepRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = StepRecord(in)
	return nil
}
