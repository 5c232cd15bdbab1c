package engine

import "github.com/roach88/dfsim/internal/ir"

// tokenQueue is the FIFO of tokens waiting on one input slot.
//
// It is owned by a single State and is not safe for concurrent use.
type tokenQueue struct {
	tokens []ir.Value
}

func newTokenQueue() *tokenQueue {
	return &tokenQueue{tokens: make([]ir.Value, 0, 4)}
}

// push appends a token to the back of the queue.
func (q *tokenQueue) push(v ir.Value) {
	q.tokens = append(q.tokens, v)
}

// peek returns the front token without removing it.
func (q *tokenQueue) peek() (ir.Value, bool) {
	if len(q.tokens) == 0 {
		return nil, false
	}
	return q.tokens[0], true
}

// pop removes and returns the front token.
func (q *tokenQueue) pop() (ir.Value, bool) {
	if len(q.tokens) == 0 {
		return nil, false
	}
	v := q.tokens[0]

	// Nil out the slot so the backing array does not pin consumed values.
	q.tokens[0] = nil
	if len(q.tokens) == 1 {
		q.tokens = q.tokens[:0]
	} else {
		q.tokens = q.tokens[1:]
	}
	return v, true
}

// Len returns the number of queued tokens.
func (q *tokenQueue) Len() int {
	return len(q.tokens)
}

func (q *tokenQueue) clear() {
	clear(q.tokens)
	q.tokens = q.tokens[:0]
}
