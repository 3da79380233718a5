package logic

import "time"

// DefaultSettle is the wait between the first LOW sample and the confirming re-read.
const DefaultSettle = 20 * time.Millisecond

// Scanner confirms button presses with a single sample-then-recheck debounce.
type Scanner struct {
	reader     LineReader
	settle     time.Duration
	sleep      func(time.Duration)
	now        func() time.Time
	readErrors int
}

// NewScanner creates a Scanner over reader. sleep performs the settle wait and
// now supplies the capture time of confirmed presses.
func NewScanner(reader LineReader, settle time.Duration, sleep func(time.Duration), now func() time.Time) *Scanner {
	return &Scanner{
		reader: reader,
		settle: settle,
		sleep:  sleep,
		now:    now,
	}
}

// Scan reads every input in index order and returns the first confirmed press.
// A line that is LOW on the first read but HIGH after the settle wait is noise;
// scanning resumes at the next index. Lowest index wins when several lines are LOW.
func (s *Scanner) Scan() (PressEvent, bool) {
	for i := 0; i < s.reader.Len(); i++ {
		if !s.read(i) {
			continue
		}

		s.sleep(s.settle)
		if s.read(i) {
			return PressEvent{Channel: i, Time: s.now()}, true
		}
	}
	return PressEvent{}, false
}

// ReadErrors returns how many line reads failed since creation.
func (s *Scanner) ReadErrors() int {
	return s.readErrors
}

// read treats a failed read as an inactive line.
func (s *Scanner) read(i int) bool {
	active, err := s.reader.Active(i)
	if err != nil {
		s.readErrors++
		return false
	}
	return active
}
