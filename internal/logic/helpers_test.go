package logic

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedLines returns scripted levels per input. Each Active call consumes the
// next level for that line; the last level repeats once the script is exhausted.
type scriptedLines struct {
	n       int
	scripts map[int][]bool
	pos     map[int]int
	fail    map[int]bool
	reads   []int
}

func newScriptedLines(n int) *scriptedLines {
	return &scriptedLines{
		n:       n,
		scripts: make(map[int][]bool),
		pos:     make(map[int]int),
		fail:    make(map[int]bool),
	}
}

func (s *scriptedLines) script(line int, levels ...bool) *scriptedLines {
	s.scripts[line] = levels
	s.pos[line] = 0
	return s
}

func (s *scriptedLines) Len() int { return s.n }

func (s *scriptedLines) Active(i int) (bool, error) {
	s.reads = append(s.reads, i)
	if s.fail[i] {
		return false, errors.New("line fault")
	}
	levels := s.scripts[i]
	if len(levels) == 0 {
		return false, nil
	}
	v := levels[s.pos[i]]
	if s.pos[i] < len(levels)-1 {
		s.pos[i]++
	}
	return v, nil
}

// recordingIndicators keeps the current level of every indicator.
type recordingIndicators struct {
	lit    map[int]bool
	writes int
	err    error
}

func newRecordingIndicators() *recordingIndicators {
	return &recordingIndicators{lit: make(map[int]bool)}
}

func (r *recordingIndicators) SetIndicator(i int, on bool) error {
	r.writes++
	if r.err != nil {
		return r.err
	}
	r.lit[i] = on
	return nil
}

func (r *recordingIndicators) litCount() int {
	n := 0
	for _, on := range r.lit {
		if on {
			n++
		}
	}
	return n
}

// stubPublisher returns a fixed result and records presses.
type stubPublisher struct {
	result  PublishResult
	presses []PressEvent
	// litAtPublish captures the indicator state seen during Publish.
	indicators   *recordingIndicators
	litAtPublish []bool
}

func (p *stubPublisher) Publish(_ context.Context, press PressEvent) PublishResult {
	p.presses = append(p.presses, press)
	if p.indicators != nil {
		p.litAtPublish = append(p.litAtPublish, p.indicators.lit[press.Channel])
	}
	return p.result
}

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestScanner builds a Scanner whose settle waits are recorded instead of slept.
func newTestScanner(lines LineReader) (*Scanner, *[]time.Duration) {
	var slept []time.Duration
	s := NewScanner(lines, DefaultSettle, func(d time.Duration) {
		slept = append(slept, d)
	}, func() time.Time { return epoch })
	return s, &slept
}

func newTestCatalog(t *testing.T, n int) *Catalog {
	t.Helper()
	channels := make([]ButtonChannel, n)
	for i := range channels {
		channels[i] = ButtonChannel{Input: 100 + i, Indicator: 200 + i, Label: DefaultChannels[i%len(DefaultChannels)].Label}
	}
	c, err := NewCatalog(channels)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}
