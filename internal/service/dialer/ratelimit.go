package dialer

import "time"

// slidingWindow is a coarse one-minute rate limiter: a rolling log of
// placement timestamps pruned before each check. Bursts are allowed as long
// as the trailing-window count stays under the cap.
type slidingWindow struct {
	stamps []time.Time
}

const windowSpan = time.Minute

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-windowSpan)
	i := 0
	for ; i < len(w.stamps); i++ {
		if w.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// allow reports whether another call fits under the cap right now.
func (w *slidingWindow) allow(now time.Time, limit int) bool {
	w.prune(now)
	return len(w.stamps) < limit
}

// record logs one placed call.
func (w *slidingWindow) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.stamps)
}
