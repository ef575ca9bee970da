package ratelimit

import (
	"sort"
	"time"
)

// firstWithin returns the index of the first timestamp newer than
// now-length. ts must be sorted ascending.
func firstWithin(ts []time.Time, now time.Time, length time.Duration) int {
	cutoff := now.Add(-length)
	return sort.Search(len(ts), func(i int) bool {
		return ts[i].After(cutoff)
	})
}

// countWithin counts timestamps inside the trailing window ending at now.
func countWithin(ts []time.Time, now time.Time, length time.Duration) int {
	return len(ts) - firstWithin(ts, now, length)
}

// blocking returns the timestamp whose expiry brings the window below limit
// and the delay until that happens. ok is false when the window has room.
func blocking(ts []time.Time, now time.Time, length time.Duration, limit int) (time.Time, time.Duration, bool) {
	if limit <= 0 {
		return time.Time{}, 0, false
	}
	start := firstWithin(ts, now, length)
	count := len(ts) - start
	if count < limit {
		return time.Time{}, 0, false
	}
	at := ts[start+count-limit]
	retry := at.Add(length).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return at, retry, true
}

// prune drops timestamps older than length and returns the remaining slice.
func prune(ts []time.Time, now time.Time, length time.Duration) []time.Time {
	i := firstWithin(ts, now, length)
	if i == 0 {
		return ts
	}
	if i == len(ts) {
		return nil
	}
	return append([]time.Time(nil), ts[i:]...)
}

// insert adds now keeping ts sorted.
func insert(ts []time.Time, now time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool {
		return ts[i].After(now)
	})
	if i == len(ts) {
		return append(ts, now)
	}
	ts = append(ts, time.Time{})
	copy(ts[i+1:], ts[i:])
	ts[i] = now
	return ts
}
