//go:build !linux

package gpio

import (
	"context"
	"errors"
)

// RealBank is not available on non-Linux platforms.
type RealBank struct{}

// NewRealBank returns an error on non-Linux platforms.
func NewRealBank(chipName string, pairs []Pair) (*RealBank, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Len is not implemented on non-Linux platforms.
func (b *RealBank) Len() int { return 0 }

// Active is not implemented on non-Linux platforms.
func (b *RealBank) Active(index int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetIndicator is not implemented on non-Linux platforms.
func (b *RealBank) SetIndicator(index int, on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealBank) Close() error {
	return nil
}

// WaitForActive is not implemented on non-Linux platforms.
func WaitForActive(ctx context.Context, chipName string, lines []int) (int, error) {
	return 0, errors.New("gpio: not supported")
}
