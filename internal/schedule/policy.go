package schedule

import (
	"errors"
	"fmt"
	"time"
)

// LabelLayout is the time-of-day format used for slot labels, e.g. "09:30 AM".
const LabelLayout = "03:04 PM"

var ErrInvalidGrid = errors.New("invalid slot grid")

type Config struct {
	// Start and End are "15:04" values; End is the last bookable slot.
	Start    string
	End      string
	Step     time.Duration
	Location *time.Location
	Now      func() time.Time
}

// DefaultConfig is the half-hour grid from 09:00 AM to 10:00 PM.
func DefaultConfig() Config {
	//nolint:exhaustruct
	return Config{
		Start: "09:00",
		End:   "22:00",
		Step:  30 * time.Minute, //nolint:gomnd
	}
}

// Policy answers "what day is it" and "which slot labels exist". It is
// immutable after construction and safe for concurrent use.
type Policy struct {
	now   func() time.Time
	loc   *time.Location
	slots []string
	index map[string]int
}

func NewPolicy(conf Config) (*Policy, error) {
	start, err := time.Parse("15:04", conf.Start)
	if err != nil {
		return nil, fmt.Errorf("slot start %q: %w", conf.Start, ErrInvalidGrid)
	}

	end, err := time.Parse("15:04", conf.End)
	if err != nil {
		return nil, fmt.Errorf("slot end %q: %w", conf.End, ErrInvalidGrid)
	}

	if conf.Step <= 0 || conf.Step%time.Minute != 0 {
		return nil, fmt.Errorf("slot step %v: %w", conf.Step, ErrInvalidGrid)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("slot end %s before start %s: %w", conf.End, conf.Start, ErrInvalidGrid)
	}

	p := &Policy{
		now:   conf.Now,
		loc:   conf.Location,
		index: make(map[string]int),
	}

	if p.now == nil {
		p.now = time.Now
	}

	if p.loc == nil {
		p.loc = time.Local
	}

	for t := start; !t.After(end); t = t.Add(conf.Step) {
		label := t.Format(LabelLayout)
		p.index[label] = len(p.slots)
		p.slots = append(p.slots, label)
	}

	return p, nil
}

func (p *Policy) Location() *time.Location {
	return p.loc
}

func (p *Policy) Today() Date {
	return DateOf(p.now().In(p.loc))
}

func (p *Policy) IsValidDate(d Date) bool {
	return !d.IsZero() && !d.Before(p.Today())
}

func (p *Policy) IsValidSlotTime(label string) bool {
	_, ok := p.index[label]

	return ok
}

// SlotIndex reports the position of label in the daily grid.
func (p *Policy) SlotIndex(label string) (int, bool) {
	idx, ok := p.index[label]

	return idx, ok
}

func (p *Policy) Slots() []string {
	out := make([]string, len(p.slots))
	copy(out, p.slots)

	return out
}
