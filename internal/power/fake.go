package power

import (
	"context"

	"github.com/sweeney/feedback-buttons/internal/logic"
)

// FakeSleeper records sleep requests instead of sleeping.
type FakeSleeper struct {
	// States contains every state passed to Sleep.
	States []logic.DeviceState

	// Err, if set, will be returned by Sleep.
	Err error

	// Block makes Sleep wait for ctx to end, like a device nobody wakes.
	Block bool
}

// Sleep records st and returns Err, or ctx.Err() when blocking.
func (f *FakeSleeper) Sleep(ctx context.Context, st logic.DeviceState) error {
	f.States = append(f.States, st)
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.Err
}
