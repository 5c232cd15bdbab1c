package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// SimOptions holds the flags shared by commands that execute a graph.
type SimOptions struct {
	Inputs   []string
	Memory   []string
	MaxSteps int
	OneShot  bool
}

func (o *SimOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&o.Inputs, "input", "i", nil, "bind an Input node, name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&o.Memory, "memory", "m", nil, "seed a memory cell, addr=value (repeatable)")
	cmd.Flags().IntVar(&o.MaxSteps, "max-steps", engine.DefaultMaxSteps, "step bound for the run")
	cmd.Flags().BoolVar(&o.OneShot, "one-shot", false, "sources fire only in the first step")
}

// RunConfig parses the flags into an engine run configuration.
func (o *SimOptions) RunConfig() (engine.RunConfig, error) {
	if o.MaxSteps <= 0 {
		return engine.RunConfig{}, fmt.Errorf("--max-steps must be positive, got %d", o.MaxSteps)
	}
	inputs, err := parseInputs(o.Inputs)
	if err != nil {
		return engine.RunConfig{}, err
	}
	memory, err := parseMemory(o.Memory)
	if err != nil {
		return engine.RunConfig{}, err
	}
	return engine.RunConfig{
		Inputs:   inputs,
		Memory:   memory,
		OneShot:  o.OneShot,
		MaxSteps: o.MaxSteps,
	}, nil
}

// parseInputs turns name=value pairs into Input bindings. Values are read
// with ir.ParseLiteral; a later pair for the same name wins.
func parseInputs(pairs []string) (map[string]ir.Value, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]ir.Value, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q: want name=value", p)
		}
		out[name] = ir.ParseLiteral(raw)
	}
	return out, nil
}

// parseMemory turns addr=value pairs into a memory image.
func parseMemory(pairs []string) (map[int64]ir.Value, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[int64]ir.Value, len(pairs))
	for _, p := range pairs {
		rawAddr, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --memory %q: want addr=value", p)
		}
		addr, err := strconv.ParseInt(strings.TrimSpace(rawAddr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --memory %q: address must be an integer", p)
		}
		out[addr] = ir.ParseLiteral(raw)
	}
	return out, nil
}

// describeValue renders a token as type:value, or "none" for no token.
func describeValue(v ir.Value) string {
	if v == nil {
		return "none"
	}
	return ir.TypeName(v) + ":" + v.String()
}

// describeTokens renders consumed tokens as [slot]=type:value pairs.
func describeTokens(tokens []ir.Token) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = fmt.Sprintf("[%d]=%s", tok.Slot, describeValue(tok.Value))
	}
	return out
}
