package station

import "sync"

// alertLog is the bounded, shared alert log. Both loops write to it and
// consumers read copies of it.
type alertLog struct {
	mu      sync.Mutex
	entries []string
	cap     int
	trim    int
}

func newAlertLog(capacity, trim int) *alertLog {
	return &alertLog{cap: capacity, trim: trim}
}

// add appends msg. When the log grows past its cap the oldest trim entries
// are dropped in one step. It returns the number dropped.
func (l *alertLog) add(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
	if len(l.entries) <= l.cap {
		return 0
	}
	drop := min(l.trim, len(l.entries))
	l.entries = append([]string(nil), l.entries[drop:]...)
	return drop
}

// retainNewest keeps only the newest n entries and returns how many were
// dropped.
func (l *alertLog) retainNewest(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if len(l.entries) <= n {
		return 0
	}
	drop := len(l.entries) - n
	l.entries = append([]string(nil), l.entries[drop:]...)
	return drop
}

// clear empties the log and returns how many entries it held.
func (l *alertLog) clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	l.entries = nil
	return n
}

func (l *alertLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// snapshot returns a copy of the log, oldest first.
func (l *alertLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.entries...)
}

// newest returns a copy of the last n entries, oldest first.
func (l *alertLog) newest(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.entries) {
		n = len(l.entries)
	}
	if n <= 0 {
		return []string{}
	}
	return append([]string{}, l.entries[len(l.entries)-n:]...)
}
