// Package intervallist provides a reusable interval container: add(begin,
// length), sort, merge, depth. It is the shared interval bookkeeping for
// suspicious-read detection, coverage-gap analysis, and the verified
// extent of a placement cluster.
package intervallist

import "sort"

// Interval is a half-open [Begin, Begin+Length) span.
type Interval struct {
	Begin, Length int32
}

// End returns the interval's exclusive end coordinate.
func (iv Interval) End() int32 { return iv.Begin + iv.Length }

// List is an unordered-until-Sort collection of Intervals over a single
// coordinate space (a read, or a tig).
type List struct {
	items  []Interval
	sorted bool
}

// Add appends an interval. The list becomes unsorted.
func (l *List) Add(begin, length int32) {
	if length <= 0 {
		return
	}
	l.items = append(l.items, Interval{Begin: begin, Length: length})
	l.sorted = false
}

// Len returns the number of intervals added (before merging).
func (l *List) Len() int { return len(l.items) }

// Sort orders the intervals by Begin ascending, ties by Length ascending.
func (l *List) Sort() {
	if l.sorted {
		return
	}
	sort.Slice(l.items, func(i, j int) bool {
		if l.items[i].Begin != l.items[j].Begin {
			return l.items[i].Begin < l.items[j].Begin
		}
		return l.items[i].Length < l.items[j].Length
	})
	l.sorted = true
}

// Merge returns the list of maximal merged (non-overlapping, non-adjacent)
// intervals, in ascending order. It sorts the receiver in place (as Sort
// does) and otherwise leaves it unchanged.
func (l *List) Merge() []Interval {
	l.Sort()
	if len(l.items) == 0 {
		return nil
	}
	merged := make([]Interval, 0, len(l.items))
	cur := l.items[0]
	for _, iv := range l.items[1:] {
		if iv.Begin <= cur.End() {
			if iv.End() > cur.End() {
				cur.Length = iv.End() - cur.Begin
			}
			continue
		}
		merged = append(merged, cur)
		cur = iv
	}
	merged = append(merged, cur)
	return merged
}

// Depth returns, for every distinct interval boundary, the number of input
// intervals covering that point -- a coverage-depth sweep. The returned
// slice is sorted by position and gives depth on [result[i].Begin,
// result[i+1].Begin) (last entry's depth extends to infinity only if
// nonzero, callers should bound externally).
func (l *List) Depth() []Interval {
	l.Sort()
	type event struct {
		pos   int32
		delta int32
	}
	events := make([]event, 0, 2*len(l.items))
	for _, iv := range l.items {
		events = append(events, event{iv.Begin, 1}, event{iv.End(), -1})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].pos < events[j].pos })

	var out []Interval
	depth := int32(0)
	i := 0
	for i < len(events) {
		pos := events[i].pos
		for i < len(events) && events[i].pos == pos {
			depth += events[i].delta
			i++
		}
		out = append(out, Interval{Begin: pos, Length: depth})
	}
	return out
}

// CoversSingleSpan reports whether the merged intervals of l form exactly
// one contiguous run covering all of [0, spanLength).
func (l *List) CoversSingleSpan(spanLength int32) bool {
	merged := l.Merge()
	if len(merged) != 1 {
		return false
	}
	return merged[0].Begin <= 0 && merged[0].End() >= spanLength
}

// Gaps returns the maximal sub-intervals of [0, spanLength) not covered by
// any merged interval.
func (l *List) Gaps(spanLength int32) []Interval {
	merged := l.Merge()
	var gaps []Interval
	cursor := int32(0)
	for _, iv := range merged {
		if iv.Begin > cursor {
			gaps = append(gaps, Interval{Begin: cursor, Length: iv.Begin - cursor})
		}
		if iv.End() > cursor {
			cursor = iv.End()
		}
	}
	if cursor < spanLength {
		gaps = append(gaps, Interval{Begin: cursor, Length: spanLength - cursor})
	}
	return gaps
}
