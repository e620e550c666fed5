// Package buffer implements the time-indexed, concurrency-safe, single-writer/multi-reader
// buffer described in specification §4.1: an ordered, append-at-tail container with bounded
// reservation, time-range and count-range extraction, and consume/peek semantics.
//
// The source's template-instantiated buffer-per-record-type is re-expressed here as a single
// generic type parameterized on the record, following the specification's §9 guidance ("a
// generic function monomorphized from the buffer type").
package buffer

import (
	"sort"
	"sync"

	"github.com/gazeio/ettbuffer/xerrors"
)

// Side selects the endpoint a count-based extraction is taken from.
type Side int

const (
	// Start is the oldest end of the buffer.
	Start Side = iota
	// End is the newest end of the buffer.
	End
)

// KeyFunc extracts the timestamp key used for range operations from a record.
type KeyFunc[T any] func(T) int64

// Buffer is an ordered, append-at-tail sequence of T. Records are kept in arrival order; for
// streams that carry timestamps, arrival order equals non-decreasing key order in steady state.
// Size is bounded only by the Reserve hint — there is no implicit eviction.
type Buffer[T any] struct {
	mu            sync.RWMutex
	items         []T
	keyFn         KeyFunc[T]
	hasTimestamps bool
}

// New creates a Buffer keyed by keyFn. hasTimestamps must be false for streams that have no
// timestamp (Positioning); keyFn is never called in that case and may be nil.
func New[T any](keyFn KeyFunc[T], hasTimestamps bool) *Buffer[T] {
	return &Buffer[T]{keyFn: keyFn, hasTimestamps: hasTimestamps}
}

// Reserve grows the buffer's backing capacity to at least hint. It never shrinks.
func (b *Buffer[T]) Reserve(hint int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cap(b.items) >= hint {
		return
	}
	grown := make([]T, len(b.items), hint)
	copy(grown, b.items)
	b.items = grown
}

// Append adds record to the tail. Called from the writer side (the Stream Dispatcher).
func (b *Buffer[T]) Append(record T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, record)
}

// Len reports the current number of buffered records.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// PeekN copies up to count records from the requested side without modifying the buffer.
func (b *Buffer[T]) PeekN(count int, side Side) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lo, hi := countRange(len(b.items), count, side)
	return append([]T(nil), b.items[lo:hi]...)
}

// PeekLatest implements the documented peek default: count=1, side=End.
func (b *Buffer[T]) PeekLatest() []T {
	return b.PeekN(1, End)
}

// PeekTimeRange copies every record with key in [tLo, tHi] (inclusive both ends) without
// modifying the buffer. Returns InvalidOperation if the stream has no timestamp.
func (b *Buffer[T]) PeekTimeRange(tLo, tHi int64) ([]T, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lo, hi, err := b.timeRangeIndices(tLo, tHi)
	if err != nil {
		return nil, err
	}
	return append([]T(nil), b.items[lo:hi]...), nil
}

// ConsumeN moves out up to count records from the requested side, shrinking the buffer.
func (b *Buffer[T]) ConsumeN(count int, side Side) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, hi := countRange(len(b.items), count, side)
	return b.removeRange(lo, hi)
}

// ConsumeAll implements the documented consume default: count=unbounded, side=Start (drain
// oldest-first).
func (b *Buffer[T]) ConsumeAll() []T {
	return b.ConsumeN(len(b.items)+1, Start)
}

// ConsumeTimeRange moves out every record with key in [tLo, tHi], shrinking the buffer. Returns
// InvalidOperation if the stream has no timestamp.
func (b *Buffer[T]) ConsumeTimeRange(tLo, tHi int64) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, hi, err := b.timeRangeIndices(tLo, tHi)
	if err != nil {
		return nil, err
	}
	return b.removeRange(lo, hi), nil
}

// Clear drops every record.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeRange(0, len(b.items))
}

// ClearTimeRange drops every record with key in [tLo, tHi]. Returns InvalidOperation if the
// stream has no timestamp.
func (b *Buffer[T]) ClearTimeRange(tLo, tHi int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, hi, err := b.timeRangeIndices(tLo, tHi)
	if err != nil {
		return err
	}
	b.removeRange(lo, hi)
	return nil
}

// timeRangeIndices binary-searches the selected key assuming non-decreasing order, per §4.1: a
// lower bound at or before the first key starts the range at index 0, and analogously for the
// upper bound. An empty buffer reports an empty [0,0) range rather than an error, so
// consume/clear can short-circuit on it.
func (b *Buffer[T]) timeRangeIndices(tLo, tHi int64) (int, int, error) {
	if !b.hasTimestamps {
		return 0, 0, xerrors.InvalidOperation("stream has no timestamp: time-range operation unsupported")
	}
	n := len(b.items)
	if n == 0 {
		return 0, 0, nil
	}
	lo := sort.Search(n, func(i int) bool { return b.keyFn(b.items[i]) >= tLo })
	hi := sort.Search(n, func(i int) bool { return b.keyFn(b.items[i]) > tHi })
	if hi < lo {
		hi = lo
	}
	return lo, hi, nil
}

// removeRange deletes items[lo:hi], returning a copy of what was removed. The backing array is
// shifted down over the gap and the freed tail slots are zeroed so any referenced heap data
// (e.g. an EyeImage payload) becomes collectible rather than pinned by a stale slice tail.
func (b *Buffer[T]) removeRange(lo, hi int) []T {
	if lo >= hi {
		return nil
	}
	removed := append([]T(nil), b.items[lo:hi]...)
	n := copy(b.items[lo:], b.items[hi:])
	newLen := lo + n
	var zero T
	for i := newLen; i < len(b.items); i++ {
		b.items[i] = zero
	}
	b.items = b.items[:newLen]
	return removed
}

// countRange resolves a (count, side) pair against the current length.
func countRange(n, count int, side Side) (int, int) {
	if count < 0 {
		count = 0
	}
	if count > n {
		count = n
	}
	if side == Start {
		return 0, count
	}
	return n - count, n
}
