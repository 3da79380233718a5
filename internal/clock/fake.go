package clock

import (
	"context"
	"time"
)

// FakeClock is a test double whose time becomes valid after a scripted number of syncs.
type FakeClock struct {
	// Unset is returned by Now until the clock is synced.
	Unset time.Time

	// Time is returned by Now once synced.
	Time time.Time

	// SyncAfter is the number of Sync calls before the clock is set.
	// A negative value never sets it.
	SyncAfter int

	// SyncError, if set, will be returned by Sync.
	SyncError error

	SyncCalls int
}

// Sync counts the request.
func (f *FakeClock) Sync(ctx context.Context) error {
	f.SyncCalls++
	return f.SyncError
}

// Now returns Time once synced, else Unset.
func (f *FakeClock) Now() time.Time {
	if f.Synced() {
		return f.Time
	}
	return f.Unset
}

// Synced reports whether SyncAfter syncs have been requested.
func (f *FakeClock) Synced() bool {
	return f.SyncAfter >= 0 && f.SyncCalls >= f.SyncAfter
}
