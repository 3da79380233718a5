//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBank drives buttons and indicators on actual hardware.
type RealBank struct {
	chip       *gpiocdev.Chip
	inputs     []*gpiocdev.Line
	indicators []*gpiocdev.Line
}

// NewRealBank requests every input with pull-up and every indicator as an output driven low.
func NewRealBank(chipName string, pairs []Pair) (*RealBank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	b := &RealBank{chip: chip}
	for i, p := range pairs {
		in, err := chip.RequestLine(p.Input, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request input %d (line %d): %w", i, p.Input, err)
		}
		b.inputs = append(b.inputs, in)

		out, err := chip.RequestLine(p.Indicator, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request indicator %d (line %d): %w", i, p.Indicator, err)
		}
		b.indicators = append(b.indicators, out)
	}

	return b, nil
}

// Len returns the number of channels.
func (b *RealBank) Len() int {
	return len(b.inputs)
}

// Active reads input index. Raw 0 (LOW) = pressed.
func (b *RealBank) Active(index int) (bool, error) {
	if index < 0 || index >= len(b.inputs) {
		return false, fmt.Errorf("input %d out of range", index)
	}
	v, err := b.inputs[index].Value()
	if err != nil {
		return false, fmt.Errorf("read input %d: %w", index, err)
	}
	return v == 0, nil
}

// SetIndicator drives indicator index high (on) or low (off).
func (b *RealBank) SetIndicator(index int, on bool) error {
	if index < 0 || index >= len(b.indicators) {
		return fmt.Errorf("indicator %d out of range", index)
	}
	v := 0
	if on {
		v = 1
	}
	if err := b.indicators[index].SetValue(v); err != nil {
		return fmt.Errorf("set indicator %d: %w", index, err)
	}
	return nil
}

// Close switches indicators off and releases every line.
func (b *RealBank) Close() error {
	var errs []error

	for i, l := range b.indicators {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear indicator %d: %w", i, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close indicator %d: %w", i, err))
		}
	}
	for i, l := range b.inputs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input %d: %w", i, err))
		}
	}
	b.indicators = nil
	b.inputs = nil

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// WaitForActive blocks until any of the given input lines is at its active (LOW)
// level and returns that line. A line already LOW when the wait is armed
// returns immediately. The lines must not be held by a Bank.
func WaitForActive(ctx context.Context, chipName string, lines []int) (int, error) {
	if len(lines) == 0 {
		return 0, errors.New("wait: no lines")
	}

	fired := make(chan int, len(lines))
	handler := func(evt gpiocdev.LineEvent) {
		select {
		case fired <- evt.Offset:
		default:
		}
	}

	req, err := gpiocdev.RequestLines(chipName, lines,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(handler),
	)
	if err != nil {
		return 0, fmt.Errorf("arm wake lines: %w", err)
	}
	defer req.Close()

	values := make([]int, len(lines))
	if err := req.Values(values); err != nil {
		return 0, fmt.Errorf("read wake lines: %w", err)
	}
	for i, v := range values {
		if v == 0 {
			return lines[i], nil
		}
	}

	select {
	case line := <-fired:
		return line, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
