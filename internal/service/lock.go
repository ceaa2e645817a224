package service

import "sync"

// loanLocker serializes schedule mutation per loan ID so that two concurrent
// payment applications (or a payment racing a materialization) never
// read-modify-write the same schedule rows. Entries are reference counted and
// removed once the last holder releases.
type loanLocker struct {
	mu    sync.Mutex
	locks map[int64]*loanLock
}

// locks is the single locker shared by the schedule and payment services, so
// a payment racing a materialization on the same loan serializes in-process
// too, not only at the database row lock.
var locks = newLoanLocker()

type loanLock struct {
	mu   sync.Mutex
	refs int
}

func newLoanLocker() *loanLocker {
	return &loanLocker{locks: make(map[int64]*loanLock)}
}

// Lock acquires the mutex for the given loan ID, creating it on first use.
func (l *loanLocker) Lock(loanID int64) {
	l.mu.Lock()
	entry, ok := l.locks[loanID]
	if !ok {
		entry = &loanLock{}
		l.locks[loanID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for the given loan ID.
func (l *loanLocker) Unlock(loanID int64) {
	l.mu.Lock()
	entry := l.locks[loanID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, loanID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
