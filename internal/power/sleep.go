package power

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/state"
)

// Sleeper enters low-power sleep. On success Sleep does not return.
// Cancelling ctx abandons the wait for a wake line.
type Sleeper interface {
	Sleep(ctx context.Context, st logic.DeviceState) error
}

// WakeMask returns the bitmask of input line offsets that wake the device.
// Any single line at LOW is enough.
func WakeMask(lines []int) (uint64, error) {
	var mask uint64
	for _, l := range lines {
		if l < 0 || l > 63 {
			return 0, fmt.Errorf("line %d outside wake mask range", l)
		}
		mask |= 1 << uint(l)
	}
	return mask, nil
}

// MaskLines expands a wake mask back into line offsets in ascending order.
func MaskLines(mask uint64) []int {
	var lines []int
	for l := 0; l < 64; l++ {
		if mask&(1<<uint(l)) != 0 {
			lines = append(lines, l)
		}
	}
	return lines
}

// WaitFunc blocks until one of lines is LOW and returns its offset.
type WaitFunc func(ctx context.Context, lines []int) (int, error)

// ExecFunc replaces the current process image.
type ExecFunc func(argv0 string, argv []string, envv []string) error

// ExecSleeper saves the state, parks on the input lines and re-executes the
// binary with the wake marker set.
type ExecSleeper struct {
	Store state.Store
	Lines []int
	Wait  WaitFunc
	Exec  ExecFunc

	// Binary and Args default to the running executable and os.Args.
	Binary string
	Args   []string
	// Environ defaults to os.Environ.
	Environ func() []string

	Log zerolog.Logger
}

// NewExecSleeper creates an ExecSleeper with the real exec.
func NewExecSleeper(store state.Store, lines []int, wait WaitFunc, log zerolog.Logger) *ExecSleeper {
	return &ExecSleeper{
		Store:   store,
		Lines:   lines,
		Wait:    wait,
		Exec:    syscall.Exec,
		Environ: os.Environ,
		Log:     log,
	}
}

// Sleep persists st and blocks until a wake line goes LOW, then re-executes.
// It only returns on failure or when ctx ends while waiting; the saved state
// is left in place either way.
func (s *ExecSleeper) Sleep(ctx context.Context, st logic.DeviceState) error {
	mask, err := WakeMask(s.Lines)
	if err != nil {
		return err
	}
	if err := s.Store.Save(st); err != nil {
		return fmt.Errorf("retain state: %w", err)
	}

	s.Log.Info().Str("mask", fmt.Sprintf("%#x", mask)).Msg("entering sleep")

	line, err := s.Wait(ctx, MaskLines(mask))
	if err != nil {
		return fmt.Errorf("wait for wake: %w", err)
	}
	s.Log.Info().Int("line", line).Msg("woken by input")

	bin, args, err := s.target()
	if err != nil {
		return err
	}
	env := withWakeMarker(s.Environ())
	if err := s.Exec(bin, args, env); err != nil {
		return fmt.Errorf("re-exec %s: %w", bin, err)
	}
	// Exec returns only on failure; a fake may return nil.
	return nil
}

func (s *ExecSleeper) target() (string, []string, error) {
	args := s.Args
	if args == nil {
		args = os.Args
	}
	if s.Binary != "" {
		return s.Binary, args, nil
	}
	bin, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locate executable: %w", err)
	}
	return bin, args, nil
}

// withWakeMarker returns env with any previous marker replaced.
func withWakeMarker(env []string) []string {
	prefix := WakeEnv + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+WakeExt1)
}
