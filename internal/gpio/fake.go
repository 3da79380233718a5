package gpio

import "fmt"

// FakeBank is a test double with scripted input levels and recorded indicator writes.
type FakeBank struct {
	// Scripts holds the scripted active levels per input. Each Active(i) call
	// consumes the next level for input i; the last level repeats once exhausted.
	// An input without a script reads inactive.
	Scripts map[int][]bool

	// pos tracks the current position in each script.
	pos map[int]int

	// Lit holds the current indicator levels.
	Lit []bool

	// Writes records every SetIndicator call in order.
	Writes []IndicatorWrite

	// ReadError, if set, will be returned by Active.
	ReadError error

	// WriteError, if set, will be returned by SetIndicator.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool

	n int
}

// IndicatorWrite is one recorded SetIndicator call.
type IndicatorWrite struct {
	Index int
	On    bool
}

// NewFakeBank creates a FakeBank with n channels, all released and dark.
func NewFakeBank(n int) *FakeBank {
	return &FakeBank{
		Scripts: make(map[int][]bool),
		pos:     make(map[int]int),
		Lit:     make([]bool, n),
		n:       n,
	}
}

// Script replaces the scripted levels of input index.
func (f *FakeBank) Script(index int, levels ...bool) {
	f.Scripts[index] = levels
	f.pos[index] = 0
}

// Hold scripts input index as pressed until the next Script call.
func (f *FakeBank) Hold(index int) {
	f.Script(index, true)
}

// Press scripts a single debounced press: LOW on the first read and on the
// confirming re-read, released afterwards.
func (f *FakeBank) Press(index int) {
	f.Script(index, true, true, false)
}

// Len returns the number of channels.
func (f *FakeBank) Len() int {
	return f.n
}

// Active returns the next scripted level of input index.
func (f *FakeBank) Active(index int) (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if index < 0 || index >= f.n {
		return false, fmt.Errorf("input %d out of range", index)
	}

	levels := f.Scripts[index]
	if len(levels) == 0 {
		return false, nil
	}

	v := levels[f.pos[index]]
	if f.pos[index] < len(levels)-1 {
		f.pos[index]++
	}
	return v, nil
}

// SetIndicator records the write and updates Lit.
func (f *FakeBank) SetIndicator(index int, on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if index < 0 || index >= f.n {
		return fmt.Errorf("indicator %d out of range", index)
	}
	f.Writes = append(f.Writes, IndicatorWrite{Index: index, On: on})
	f.Lit[index] = on
	return nil
}

// LitCount returns how many indicators are on.
func (f *FakeBank) LitCount() int {
	n := 0
	for _, on := range f.Lit {
		if on {
			n++
		}
	}
	return n
}

// Close marks the bank as closed and switches indicators off.
func (f *FakeBank) Close() error {
	for i := range f.Lit {
		f.Lit[i] = false
	}
	f.Closed = true
	return nil
}
