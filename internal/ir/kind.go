package ir

import (
	"fmt"
	"strings"
)

// Kind is the closed set of operator kinds a node may have.
type Kind int

const (
	KindInvalid Kind = iota
	KindConstant
	KindInput
	KindStream
	KindBinaryOp
	KindTrueSteer
	KindFalseSteer
	KindMerge
	KindCarry
	KindLoad
	KindStore
	KindOutput
	KindOrder
	KindInvariant
)

var kindNames = [...]string{
	KindInvalid:    "Invalid",
	KindConstant:   "Constant",
	KindInput:      "Input",
	KindStream:     "Stream",
	KindBinaryOp:   "BinaryOp",
	KindTrueSteer:  "TrueSteer",
	KindFalseSteer: "FalseSteer",
	KindMerge:      "Merge",
	KindCarry:      "Carry",
	KindLoad:       "Load",
	KindStore:      "Store",
	KindOutput:     "Output",
	KindOrder:      "Order",
	KindInvariant:  "Invariant",
}

// kindAliases maps lower-cased spellings found in graph descriptions
// to their kind. Canonical names are added in init.
var kindAliases = map[string]Kind{
	"functioninput":  KindInput,
	"functionoutput": KindOutput,
	"return":         KindOutput,
	"sequencer":      KindOrder,
	"binop":          KindBinaryOp,
	"basicbinaryop":  KindBinaryOp,
	"const":          KindConstant,
}

func init() {
	for k := KindConstant; k <= KindInvariant; k++ {
		kindAliases[strings.ToLower(kindNames[k])] = k
	}
}

// String returns the canonical kind name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the defined operator kinds.
func (k Kind) Valid() bool {
	return k >= KindConstant && k <= KindInvariant
}

// IsSource reports whether k fires without consuming tokens.
func (k Kind) IsSource() bool {
	return k == KindConstant || k == KindInput || k == KindStream
}

// ParseKind resolves a kind name case-insensitively, accepting aliases
// such as FunctionInput, Return and Sequencer.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return KindInvalid, fmt.Errorf("unknown operator kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid operator kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
