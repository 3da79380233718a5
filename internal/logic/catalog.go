package logic

import (
	"errors"
	"fmt"
	"math"
)

// MaxChannels is the largest table a Catalog accepts. The persisted
// last-button field is a signed byte with -1 reserved for "none".
const MaxChannels = math.MaxInt8 + 1

// DefaultChannels is the four-button layout of the reference board.
var DefaultChannels = []ButtonChannel{
	{Index: 0, Input: 27, Indicator: 5, Label: "very good feedback"},
	{Index: 1, Input: 26, Indicator: 18, Label: "good feedback"},
	{Index: 2, Input: 25, Indicator: 19, Label: "bad feedback"},
	{Index: 3, Input: 33, Indicator: 21, Label: "very bad feedback"},
}

// Catalog maps a channel index to its button definition.
// It is immutable after construction.
type Catalog struct {
	channels []ButtonChannel
}

// NewCatalog validates channels and builds a Catalog.
// Channel indices are reassigned to their slice position.
func NewCatalog(channels []ButtonChannel) (*Catalog, error) {
	if len(channels) == 0 {
		return nil, errors.New("catalog: no channels")
	}
	if len(channels) > MaxChannels {
		return nil, fmt.Errorf("catalog: too many channels: %d > %d", len(channels), MaxChannels)
	}

	seen := make(map[int]int, 2*len(channels))
	out := make([]ButtonChannel, len(channels))
	for i, ch := range channels {
		if ch.Label == "" {
			return nil, fmt.Errorf("catalog: channel %d has empty label", i)
		}
		for _, line := range []int{ch.Input, ch.Indicator} {
			if prev, ok := seen[line]; ok {
				return nil, fmt.Errorf("catalog: line %d used by channels %d and %d", line, prev, i)
			}
			seen[line] = i
		}
		ch.Index = i
		out[i] = ch
	}

	return &Catalog{channels: out}, nil
}

// Len returns the number of channels.
func (c *Catalog) Len() int {
	return len(c.channels)
}

// Channel returns the definition of channel i. It panics if i is out of range.
func (c *Catalog) Channel(i int) ButtonChannel {
	if i < 0 || i >= len(c.channels) {
		panic(fmt.Sprintf("catalog: channel index %d out of range [0,%d)", i, len(c.channels)))
	}
	return c.channels[i]
}

// Label returns the feedback label of channel i. It panics if i is out of range:
// indices only ever come from confirmed scans.
func (c *Catalog) Label(i int) string {
	return c.Channel(i).Label
}

// Channels returns a copy of all channel definitions.
func (c *Catalog) Channels() []ButtonChannel {
	out := make([]ButtonChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

// InputLines returns the input line offsets in index order.
func (c *Catalog) InputLines() []int {
	lines := make([]int, len(c.channels))
	for i, ch := range c.channels {
		lines[i] = ch.Input
	}
	return lines
}
