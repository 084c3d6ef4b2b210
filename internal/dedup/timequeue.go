package dedup

import "time"

type timed[T any] struct {
	at    time.Time
	value T
}

// timeQueue is an insertion-ordered FIFO of timestamped values. Callers push
// with non-decreasing timestamps, so expired entries always form a prefix.
type timeQueue[T any] struct {
	items            []timed[T]
	head             int
	compactThreshold int
}

func newTimeQueue[T any](compactThreshold int) *timeQueue[T] {
	return &timeQueue[T]{compactThreshold: compactThreshold}
}

func (q *timeQueue[T]) push(at time.Time, v T) {
	q.items = append(q.items, timed[T]{at: at, value: v})
}

func (q *timeQueue[T]) len() int {
	return len(q.items) - q.head
}

// popExpired removes every entry older than cutoff and calls fn on each.
// Only the expired prefix is visited.
func (q *timeQueue[T]) popExpired(cutoff time.Time, fn func(at time.Time, v T)) int {
	n := 0
	for q.head < len(q.items) && !q.items[q.head].at.After(cutoff) {
		item := q.items[q.head]
		var zero timed[T]
		q.items[q.head] = zero
		q.head++
		n++
		if fn != nil {
			fn(item.at, item.value)
		}
	}
	q.maybeCompact()
	return n
}

// popFront drops the oldest entry regardless of age.
func (q *timeQueue[T]) popFront() (T, bool) {
	var zero T
	if q.len() == 0 {
		return zero, false
	}
	v := q.items[q.head].value
	q.items[q.head] = timed[T]{}
	q.head++
	q.maybeCompact()
	return v, true
}

// maybeCompact reclaims the dead prefix once it is both larger than the
// threshold and at least half of the backing array.
func (q *timeQueue[T]) maybeCompact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head < q.compactThreshold || q.head*2 < len(q.items) {
		return
	}
	live := make([]timed[T], len(q.items)-q.head)
	copy(live, q.items[q.head:])
	q.items = live
	q.head = 0
}

func (q *timeQueue[T]) values() []T {
	out := make([]T, 0, q.len())
	for _, item := range q.items[q.head:] {
		out = append(out, item.value)
	}
	return out
}
