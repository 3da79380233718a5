package netlink

import "context"

// FakeLink is a test double whose link comes up after a scripted number of polls.
type FakeLink struct {
	// UpAfter is the number of Connected calls that report down before the
	// link is up. A negative value keeps the link down forever.
	UpAfter int

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	ConnectCalls int
	Polls        int
}

// Connect records the call.
func (f *FakeLink) Connect(ctx context.Context) error {
	f.ConnectCalls++
	return f.ConnectError
}

// Connected reports up once UpAfter polls have passed.
func (f *FakeLink) Connected(ctx context.Context) bool {
	f.Polls++
	if f.UpAfter < 0 {
		return false
	}
	return f.Polls > f.UpAfter
}
