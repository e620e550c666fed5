package buffer

import (
	"sort"
	"sync"

	"github.com/gazeio/ettbuffer/xerrors"
)

// TimeKey selects which of an inlet record's two timestamps a range operation keys on.
type TimeKey int

const (
	KeyLocal TimeKey = iota
	KeyRemote
)

// InletRecord augments a record with the local ingestion timestamp and the remote outlet's own
// production timestamp (spec.md §3). RemoteTS duplicates the record's own system timestamp for
// uniform access regardless of record type.
type InletRecord[T any] struct {
	Record   T
	LocalTS  int64
	RemoteTS int64
}

func (r InletRecord[T]) key(which TimeKey) int64 {
	if which == KeyLocal {
		return r.LocalTS
	}
	return r.RemoteTS
}

// InletBuffer is a Buffer of InletRecord[T] whose range operations can key on either timestamp,
// chosen per call rather than fixed at construction (unlike the local-side Buffer).
type InletBuffer[T any] struct {
	mu            sync.RWMutex
	items         []InletRecord[T]
	hasTimestamps bool
}

// NewInlet creates an InletBuffer. hasTimestamps must be false for Positioning inlets.
func NewInlet[T any](hasTimestamps bool) *InletBuffer[T] {
	return &InletBuffer[T]{hasTimestamps: hasTimestamps}
}

func (b *InletBuffer[T]) Reserve(hint int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cap(b.items) >= hint {
		return
	}
	grown := make([]InletRecord[T], len(b.items), hint)
	copy(grown, b.items)
	b.items = grown
}

func (b *InletBuffer[T]) Append(record InletRecord[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, record)
}

func (b *InletBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *InletBuffer[T]) PeekN(count int, side Side) []InletRecord[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lo, hi := countRange(len(b.items), count, side)
	return append([]InletRecord[T](nil), b.items[lo:hi]...)
}

func (b *InletBuffer[T]) PeekTimeRange(tLo, tHi int64, which TimeKey) ([]InletRecord[T], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lo, hi, err := b.timeRangeIndices(tLo, tHi, which)
	if err != nil {
		return nil, err
	}
	return append([]InletRecord[T](nil), b.items[lo:hi]...), nil
}

func (b *InletBuffer[T]) ConsumeN(count int, side Side) []InletRecord[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, hi := countRange(len(b.items), count, side)
	return b.removeRange(lo, hi)
}

func (b *InletBuffer[T]) ConsumeAll() []InletRecord[T] {
	return b.ConsumeN(len(b.items)+1, Start)
}

func (b *InletBuffer[T]) ConsumeTimeRange(tLo, tHi int64, which TimeKey) ([]InletRecord[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, hi, err := b.timeRangeIndices(tLo, tHi, which)
	if err != nil {
		return nil, err
	}
	return b.removeRange(lo, hi), nil
}

func (b *InletBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeRange(0, len(b.items))
}

func (b *InletBuffer[T]) ClearTimeRange(tLo, tHi int64, which TimeKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, hi, err := b.timeRangeIndices(tLo, tHi, which)
	if err != nil {
		return err
	}
	b.removeRange(lo, hi)
	return nil
}

func (b *InletBuffer[T]) timeRangeIndices(tLo, tHi int64, which TimeKey) (int, int, error) {
	if !b.hasTimestamps {
		return 0, 0, xerrors.InvalidOperation("inlet stream has no timestamp: time-range operation unsupported")
	}
	n := len(b.items)
	if n == 0 {
		return 0, 0, nil
	}
	lo := sort.Search(n, func(i int) bool { return b.items[i].key(which) >= tLo })
	hi := sort.Search(n, func(i int) bool { return b.items[i].key(which) > tHi })
	if hi < lo {
		hi = lo
	}
	return lo, hi, nil
}

func (b *InletBuffer[T]) removeRange(lo, hi int) []InletRecord[T] {
	if lo >= hi {
		return nil
	}
	removed := append([]InletRecord[T](nil), b.items[lo:hi]...)
	n := copy(b.items[lo:], b.items[hi:])
	newLen := lo + n
	var zero InletRecord[T]
	for i := newLen; i < len(b.items); i++ {
		b.items[i] = zero
	}
	b.items = b.items[:newLen]
	return removed
}
