package validity

import "time"

// DateLayout is the wire format for validity bounds.
const DateLayout = "2006-01-02"

// Interval is the half-open day range [ValidFrom, ValidTo). ValidTo is the first
// day the rule no longer applies; nil means the rule never expires.
type Interval struct {
	ValidFrom time.Time
	ValidTo   *time.Time
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewInterval normalizes both bounds to day granularity and checks ValidTo > ValidFrom.
func NewInterval(from time.Time, to *time.Time) (Interval, error) {
	if from.IsZero() {
		return Interval{}, &IntervalInvalidError{Reason: "valid_from is required"}
	}
	iv := Interval{ValidFrom: Day(from)}
	if to != nil {
		end := Day(*to)
		iv.ValidTo = &end
	}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// MustInterval panics on invalid bounds; meant for fixtures.
func MustInterval(from time.Time, to *time.Time) Interval {
	iv, err := NewInterval(from, to)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) Validate() error {
	if i.ValidTo != nil && !i.ValidTo.After(i.ValidFrom) {
		return &IntervalInvalidError{
			ValidFrom: i.ValidFrom,
			ValidTo:   i.ValidTo,
			Reason:    "valid_to must be after valid_from",
		}
	}
	return nil
}

func (i Interval) IsOpenEnded() bool {
	return i.ValidTo == nil
}

// Overlaps treats a nil end as +inf. Adjacent intervals (a.ValidTo == b.ValidFrom) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return beforeEnd(i.ValidFrom, other.ValidTo) && beforeEnd(other.ValidFrom, i.ValidTo)
}

// Contains reports whether the day of t falls inside the interval.
func (i Interval) Contains(t time.Time) bool {
	day := Day(t)
	return !day.Before(i.ValidFrom) && beforeEnd(day, i.ValidTo)
}

// ClosedAt returns a copy ending at the day of end.
func (i Interval) ClosedAt(end time.Time) (Interval, error) {
	return NewInterval(i.ValidFrom, &end)
}

func (i Interval) Equal(other Interval) bool {
	if !i.ValidFrom.Equal(other.ValidFrom) {
		return false
	}
	if i.ValidTo == nil || other.ValidTo == nil {
		return i.ValidTo == nil && other.ValidTo == nil
	}
	return i.ValidTo.Equal(*other.ValidTo)
}

func (i Interval) String() string {
	end := "open"
	if i.ValidTo != nil {
		end = i.ValidTo.Format(DateLayout)
	}
	return "[" + i.ValidFrom.Format(DateLayout) + ", " + end + ")"
}

func beforeEnd(t time.Time, end *time.Time) bool {
	return end == nil || t.Before(*end)
}
