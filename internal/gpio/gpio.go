// Package gpio provides button inputs and indicator outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Bank drives N button inputs and N indicator outputs paired by index.
type Bank interface {
	// Len returns the number of channels.
	Len() int

	// Active reports whether input index is at its active level.
	// Inputs are pulled up, so raw LOW = pressed.
	Active(index int) (bool, error)

	// SetIndicator switches the indicator of channel index on or off.
	SetIndicator(index int, on bool) error

	// Close releases GPIO resources. Indicators are switched off first.
	Close() error
}

// Pair is the line offsets of one channel.
type Pair struct {
	Input     int
	Indicator int
}

// DefaultChip is the GPIO chip used when none is configured.
const DefaultChip = "gpiochip0"
