// Package power classifies why the process started and emulates deep sleep
// by parking on the button lines and re-executing the binary.
package power

import (
	"fmt"

	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/state"
)

// WakeEnv carries the wake cause into the re-executed process.
const WakeEnv = "FEEDBACK_WAKE_CAUSE"

// WakeExt1 is the marker value for a wake on any-low input.
const WakeExt1 = "ext1"

// Classify determines the wake cause from the environment and loads the
// retained state. Every cause other than the marker is a cold start, and a
// cold start always begins from cold state: any stale retained state is
// removed. A failed removal is reported with the cold wake.
func Classify(getenv func(string) string, store state.Store) (logic.Wake, error) {
	if getenv(WakeEnv) != WakeExt1 {
		cold := logic.Wake{Cause: logic.WakeColdStart, State: logic.ColdState()}
		if err := store.Clear(); err != nil {
			return cold, fmt.Errorf("clear stale state: %w", err)
		}
		return cold, nil
	}

	st, found, err := store.Load()
	if err != nil {
		return logic.Wake{Cause: logic.WakeExternal, State: logic.ColdState()}, fmt.Errorf("load retained state: %w", err)
	}
	return logic.Wake{Cause: logic.WakeExternal, State: st, Retained: found}, nil
}
