package ir

import (
	"fmt"
	"strings"
)

// BinOp is the operator symbol carried by a BinaryOp node.
type BinOp int

const (
	OpInvalid BinOp = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpShl
	OpShr
	OpGt
	OpLt
	OpGe
	OpLe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpXor
)

type binOpInfo struct {
	symbol string
	name   string
}

var binOps = [...]binOpInfo{
	OpInvalid: {"?", "invalid"},
	OpAdd:     {"+", "add"},
	OpSub:     {"-", "sub"},
	OpMul:     {"*", "mul"},
	OpDiv:     {"/", "div"},
	OpRem:     {"%", "rem"},
	OpShl:     {"<<", "shl"},
	OpShr:     {">>", "shr"},
	OpGt:      {">", "gt"},
	OpLt:      {"<", "lt"},
	OpGe:      {">=", "ge"},
	OpLe:      {"<=", "le"},
	OpEq:      {"==", "eq"},
	OpNe:      {"!=", "ne"},
	OpAnd:     {"&", "and"},
	OpOr:      {"|", "or"},
	OpXor:     {"^", "xor"},
}

var binOpLookup = map[string]BinOp{
	"subtract": OpSub,
	"greater":  OpGt,
	"less":     OpLt,
	"equal":    OpEq,
	"notequal": OpNe,
}

func init() {
	for op := OpAdd; op <= OpXor; op++ {
		binOpLookup[binOps[op].symbol] = op
		binOpLookup[binOps[op].name] = op
	}
}

// Symbol returns the operator's infix symbol, e.g. "+".
func (op BinOp) Symbol() string {
	if op < 0 || int(op) >= len(binOps) {
		return "?"
	}
	return binOps[op].symbol
}

// String returns the operator's short name, e.g. "add".
func (op BinOp) String() string {
	if op < 0 || int(op) >= len(binOps) {
		return fmt.Sprintf("BinOp(%d)", int(op))
	}
	return binOps[op].name
}

// Valid reports whether op is a defined operator.
func (op BinOp) Valid() bool {
	return op >= OpAdd && op <= OpXor
}

// IsComparison reports whether op yields a Bool.
func (op BinOp) IsComparison() bool {
	return op >= OpGt && op <= OpNe
}

// ParseBinOp accepts either the symbol ("<<") or the name ("shl").
func ParseBinOp(s string) (BinOp, error) {
	key := strings.TrimSpace(s)
	if op, ok := binOpLookup[key]; ok {
		return op, nil
	}
	if op, ok := binOpLookup[strings.ToLower(strings.ReplaceAll(key, "-", ""))]; ok {
		return op, nil
	}
	return OpInvalid, fmt.Errorf("unknown binary operator %q", s)
}

// MarshalText implements encoding.TextMarshaler using the symbol form.
func (op BinOp) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("invalid binary operator %d", int(op))
	}
	return []byte(op.Symbol()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *BinOp) UnmarshalText(text []byte) error {
	parsed, err := ParseBinOp(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}
