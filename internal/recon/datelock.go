package recon

import "sync"

// dateLocks serializes day resolution per calendar date, so two concurrent
// deliveries for the same date cannot both run find-then-create and produce
// duplicate day pages.
//
// Entries are never removed; the key space is calendar dates actually seen by
// this process.
type dateLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDateLocks() *dateLocks {
	return &dateLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for date and returns its release function.
func (d *dateLocks) acquire(date string) func() {
	d.mu.Lock()
	l, ok := d.locks[date]
	if !ok {
		l = &sync.Mutex{}
		d.locks[date] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}
