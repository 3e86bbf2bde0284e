package dates

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Layout is the canonical calendar-date format used for every Key.
const Layout = "2006-01-02"

var (
	// ErrInvalidRange is returned when range bounds do not parse or are inverted.
	ErrInvalidRange = errors.New("invalid date range")
)

// Key identifies one calendar day as an ISO YYYY-MM-DD string.
type Key string

// FromTime returns the Key for the calendar day of t in t's location.
func FromTime(t time.Time) Key {
	return Key(t.Format(Layout))
}

// Time parses k as midnight UTC of its day.
func (k Key) Time() (time.Time, error) {
	return time.Parse(Layout, string(k))
}

func (k Key) String() string {
	return string(k)
}

// Present marks membership in a Set.
type Present struct{}

// Set is an unordered collection of days. A day is in the set iff its key is present.
type Set map[Key]Present

// NewSet builds a Set from keys.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = Present{}
	}
	return s
}

// Has reports whether k is in the set. A nil set is empty.
func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of days in the set.
func (s Set) Len() int {
	return len(s)
}

// Clone returns an independent copy of s; cloning a nil set yields an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = Present{}
	}
	return out
}

// Union returns a new set holding every day of s and other.
func (s Set) Union(other Set) Set {
	out := s.Clone()
	for k := range other {
		out[k] = Present{}
	}
	return out
}

// Sorted returns the keys in ascending calendar order.
func (s Set) Sorted() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Generate expands the inclusive range [start, end] into the set of every day in it.
func Generate(start, end Key) (Set, error) {
	from, err := start.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: start %q: %v", ErrInvalidRange, start, err)
	}
	to, err := end.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: end %q: %v", ErrInvalidRange, end, err)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start, end)
	}

	days := int(to.Sub(from).Hours()/24) + 1
	set := make(Set, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		set[FromTime(d)] = Present{}
	}
	return set, nil
}
