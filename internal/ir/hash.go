package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainGraph = "dfsim/graph/v1"
	DomainTrace = "dfsim/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GraphHash computes the content digest of a graph.
// Two graphs with equal digests run identically under equal bindings.
func GraphHash(g Graph) (string, error) {
	canonical, err := MarshalCanonical(GraphDoc(g))
	if err != nil {
		return "", fmt.Errorf("GraphHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// TraceHash computes the digest of a step trace. Replaying a run with the
// same graph and bindings must reproduce it exactly.
func TraceHash(records []StepRecord) (string, error) {
	doc := make([]any, len(records))
	for i, r := range records {
		doc[i] = stepDoc(r)
	}
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// MustGraphHash is like GraphHash but panics on error.
// Use only in tests or when the graph is known to be valid.
func MustGraphHash(g Graph) string {
	h, err := GraphHash(g)
	if err != nil {
		panic(err)
	}
	return h
}

// GraphDoc returns the canonical document form of g.
func GraphDoc(g Graph) map[string]any {
	nodes := make([]any, len(g.Nodes))
	for i, n := range g.Nodes {
		doc := map[string]any{
			"id":   n.ID,
			"kind": n.Kind.String(),
		}
		if n.Op != OpInvalid {
			doc["op"] = n.Op.Symbol()
		}
		if n.Literal != nil {
			doc["literal"] = n.Literal
		}
		if n.Select != nil {
			doc["select"] = *n.Select
		}
		nodes[i] = doc
	}
	edges := make([]any, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = map[string]any{"from": e.From, "to": e.To, "slot": e.Slot}
	}
	return map[string]any{
		"name":  g.Name,
		"nodes": nodes,
		"edges": edges,
	}
}

func stepDoc(r StepRecord) map[string]any {
	firings := make([]any, len(r.Firings))
	for i, f := range r.Firings {
		inputs := make([]any, len(f.Inputs))
		for j, tok := range f.Inputs {
			inputs[j] = map[string]any{"slot": tok.Slot, "value": tok.Value}
		}
		doc := map[string]any{
			"node":   f.Node,
			"kind":   f.Kind.String(),
			"inputs": inputs,
		}
		if f.Output != nil {
			doc["output"] = f.Output
		}
		firings[i] = doc
	}
	writes := make([]any, len(r.Writes))
	for i, w := range r.Writes {
		writes[i] = map[string]any{"node": w.Node, "address": w.Address, "value": w.Value}
	}
	return map[string]any{
		"step":      r.Step,
		"completed": r.Completed,
		"firings":   firings,
		"writes":    writes,
	}
}
