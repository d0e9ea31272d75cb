package console

import (
	"fmt"
	"sort"
)

// Default rendering knobs.
const (
	DefaultMaxIteration = 100
	DefaultMarker       = "==>"
	TruncationMarker    = "..."
	NullToken           = "null"
)

// Iterator is the capability contract the projector classifies against.
// Anything with a has-more/next pair is rendered as a streamed sequence,
// regardless of what concrete collection backs it.
type Iterator interface {
	HasNext() bool
	Next() interface{}
}

type sliceIterator struct {
	items []interface{}
	pos   int
}

// NewSliceIterator wraps a fixed-size ordered collection as an Iterator.
func NewSliceIterator(items []interface{}) Iterator {
	return &sliceIterator{items: items}
}

func (it *sliceIterator) HasNext() bool { return it.pos < len(it.items) }

func (it *sliceIterator) Next() interface{} {
	v := it.items[it.pos]
	it.pos++
	return v
}

// Projector turns evaluation results into bounded output lines. It holds one
// piece of state between calls: the pending sequence left behind when a
// previous render hit the iteration cap. That pending sequence exists to
// support chained statements, where a result handle is produced by one
// submission and then iterated further by the next.
type Projector struct {
	// MaxIteration bounds the element lines of one render pass. -1 means
	// unbounded.
	MaxIteration int
	// Marker prefixes every rendered line.
	Marker string

	pending Iterator
}

func NewProjector() *Projector {
	return &Projector{
		MaxIteration: DefaultMaxIteration,
		Marker:       DefaultMarker,
	}
}

// Draining reports whether a pending sequence is held between calls.
func (p *Projector) Draining() bool { return p.pending != nil }

// Reset drops any pending sequence.
func (p *Projector) Reset() { p.pending = nil }

// Project renders one top-level result. A pending sequence from an earlier
// truncated render is drained first, against the same line budget. If the
// budget runs out mid-sequence a truncation marker is emitted and the
// remainder is retained, unconsumed, for the next call. Any failure while
// classifying or draining resets the projector to idle before propagating, so
// a bad render never leaves a half-consumed cursor behind.
func (p *Projector) Project(result interface{}) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.pending = nil
			err = fmt.Errorf("result iteration failed: %v", r)
		}
	}()

	budget := p.MaxIteration

	if p.pending != nil {
		var truncated bool
		lines, truncated = p.drain(p.pending, budget, lines)
		if truncated {
			// Remainder stays pending; the cap consumed this whole pass.
			return lines, nil
		}
		budget -= len(lines)
		p.pending = nil
	}

	it, isSequence := classify(result)
	if !isSequence {
		return append(lines, p.Marker+formatValue(result)), nil
	}

	var truncated bool
	lines, truncated = p.drain(it, budget, lines)
	if truncated {
		p.pending = it
	}
	return lines, nil
}

// drain renders elements until the iterator is exhausted or budget lines have
// been appended past the starting point. Reports whether elements remain.
func (p *Projector) drain(it Iterator, budget int, lines []string) ([]string, bool) {
	rendered := 0
	for it.HasNext() {
		if budget >= 0 && rendered >= budget {
			return append(lines, TruncationMarker), true
		}
		lines = append(lines, p.Marker+formatValue(it.Next()))
		rendered++
	}
	return lines, false
}

// classify decides how a result is iterated, by capability and in precedence
// order: an iterator is consumed directly, an ordered collection is wrapped,
// a keyed collection iterates its entries, anything else is a single scalar.
func classify(result interface{}) (Iterator, bool) {
	switch v := result.(type) {
	case Iterator:
		return v, true
	case []interface{}:
		return NewSliceIterator(v), true
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]interface{}, len(keys))
		for i, k := range keys {
			entries[i] = fmt.Sprintf("%s=%v", k, v[k])
		}
		return NewSliceIterator(entries), true
	default:
		return nil, false
	}
}

func formatValue(v interface{}) string {
	if v == nil {
		return NullToken
	}
	return fmt.Sprintf("%v", v)
}
