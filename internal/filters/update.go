package filters

import "time"

// Mode identifies which temporal field group is populated.
type Mode string

// Temporal filter modes.
const (
	ModeNone   Mode = "none"
	ModeQuick  Mode = "quick"
	ModeRange  Mode = "range"
	ModeCustom Mode = "custom"
)

var (
	quickKeys  = []Key{KeyYear, KeyMonth, KeyDay}
	rangeKeys  = []Key{KeyRangeDays}
	customKeys = []Key{KeyStartDate, KeyEndDate}
)

// ModeOf returns the temporal mode a key belongs to. week and channel have no mode.
func ModeOf(key Key) Mode {
	switch key {
	case KeyYear, KeyMonth, KeyDay:
		return ModeQuick
	case KeyRangeDays:
		return ModeRange
	case KeyStartDate, KeyEndDate:
		return ModeCustom
	}
	return ModeNone
}

// Update returns current with key set to value. Setting a temporal key clears the
// other two modes; a nil value removes only key. current is never modified.
func Update(current DateFilters, key Key, value any) (DateFilters, error) {
	next := current.Clone()
	if err := next.set(key, value); err != nil {
		return current, err
	}
	if value == nil {
		return next, nil
	}
	switch ModeOf(key) {
	case ModeQuick:
		next.clear(rangeKeys...)
		next.clear(customKeys...)
	case ModeRange:
		next.clear(quickKeys...)
		next.clear(customKeys...)
	case ModeCustom:
		next.clear(quickKeys...)
		next.clear(rangeKeys...)
	}
	return next, nil
}

// ClearAll resets every filter.
func ClearAll() DateFilters {
	return DateFilters{}
}

// ClearOne removes key without touching any other field.
func ClearOne(current DateFilters, key Key) DateFilters {
	next := current.Clone()
	next.unset(key)
	return next
}

// WithoutChannel drops the channel, keeping the temporal selection.
func WithoutChannel(current DateFilters) DateFilters {
	return ClearOne(current, KeyChannel)
}

// Mode reports the populated temporal mode. When persisted state violates
// exclusivity the first populated group in range, custom, quick order wins.
func (f DateFilters) Mode() Mode {
	switch {
	case f.hasAny(rangeKeys...):
		return ModeRange
	case f.hasAny(customKeys...):
		return ModeCustom
	case f.hasAny(quickKeys...):
		return ModeQuick
	}
	return ModeNone
}

// ThisYear selects the calendar year of now, dropping month and day.
func ThisYear(current DateFilters, now time.Time) DateFilters {
	next := current.Clone()
	next.clear(rangeKeys...)
	next.clear(customKeys...)
	next.clear(KeyMonth, KeyDay)
	next.Year = Int(now.Year())
	return next
}

// ThisMonth selects the calendar month of now, dropping day.
func ThisMonth(current DateFilters, now time.Time) DateFilters {
	next := current.Clone()
	next.clear(rangeKeys...)
	next.clear(customKeys...)
	next.clear(KeyDay)
	next.Year = Int(now.Year())
	next.Month = Int(int(now.Month()))
	return next
}

// LastDays selects a rolling window of n days.
func LastDays(current DateFilters, n int) DateFilters {
	next, _ := Update(current, KeyRangeDays, n)
	return next
}

func (f *DateFilters) clear(keys ...Key) {
	for _, key := range keys {
		f.unset(key)
	}
}

func (f DateFilters) hasAny(keys ...Key) bool {
	for _, key := range keys {
		if f.Has(key) {
			return true
		}
	}
	return false
}
