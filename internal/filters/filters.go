// Package filters models the composite date and channel filter shared by every dashboard.
package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key names a single DateFilters field using its wire name.
type Key string

// Filter keys in declaration order. The order drives query serialisation.
const (
	KeyYear      Key = "year"
	KeyMonth     Key = "month"
	KeyWeek      Key = "week"
	KeyDay       Key = "day"
	KeyRangeDays Key = "range_days"
	KeyStartDate Key = "start_date"
	KeyEndDate   Key = "end_date"
	KeyChannel   Key = "channel"
)

// Keys lists every filter key in declaration order.
var Keys = []Key{KeyYear, KeyMonth, KeyWeek, KeyDay, KeyRangeDays, KeyStartDate, KeyEndDate, KeyChannel}

// Channel values accepted by the backend.
const (
	ChannelCash         = "Cash"
	ChannelPOS          = "POS"
	ChannelMobile       = "Mobile"
	ChannelBankTransfer = "Bank Transfer"
)

// Channels lists the selectable transaction channels.
var Channels = []string{ChannelCash, ChannelPOS, ChannelMobile, ChannelBankTransfer}

var (
	// ErrUnknownKey is returned when a key is not part of DateFilters.
	ErrUnknownKey = errors.New("filters: unknown key")
	// ErrInvalidValue is returned when a value cannot be stored under the key.
	ErrInvalidValue = errors.New("filters: invalid value")
)

// DateFilters selects the reporting window and channel. The zero value means all time.
// Fields are pointers so that "unset" is distinct from zero.
type DateFilters struct {
	Year      *int    `json:"year,omitempty" validate:"omitempty,min=1900,max=9999"`
	Month     *int    `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	Week      *int    `json:"week,omitempty" validate:"omitempty,min=1,max=53"`
	Day       *int    `json:"day,omitempty" validate:"omitempty,min=1,max=31"`
	RangeDays *int    `json:"range_days,omitempty" validate:"omitempty,min=1,max=365"`
	StartDate *string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Channel   *string `json:"channel,omitempty" validate:"omitempty,oneof=Cash POS Mobile 'Bank Transfer'"`
}

// IsNumeric reports whether the key stores an integer.
func (k Key) IsNumeric() bool {
	switch k {
	case KeyYear, KeyMonth, KeyWeek, KeyDay, KeyRangeDays:
		return true
	}
	return false
}

// Valid reports whether k is a known filter key.
func (k Key) Valid() bool {
	for _, known := range Keys {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKey converts a wire name to a Key.
func ParseKey(raw string) (Key, error) {
	key := Key(strings.TrimSpace(raw))
	if !key.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, raw)
	}
	return key, nil
}

// IsEmpty reports whether no field is set.
func (f DateFilters) IsEmpty() bool {
	for _, key := range Keys {
		if f.Has(key) {
			return false
		}
	}
	return true
}

// Has reports whether key is set.
func (f DateFilters) Has(key Key) bool {
	_, ok := f.Get(key)
	return ok
}

// Get returns the value stored under key as an int or string.
func (f DateFilters) Get(key Key) (any, bool) {
	if key.IsNumeric() {
		ptr := f.intField(key)
		if ptr == nil {
			return nil, false
		}
		return *ptr, true
	}
	ptr := f.stringField(key)
	if ptr == nil {
		return nil, false
	}
	return *ptr, true
}

// Clone returns a deep copy so callers can never share pointers between versions.
func (f DateFilters) Clone() DateFilters {
	return DateFilters{
		Year:      cloneInt(f.Year),
		Month:     cloneInt(f.Month),
		Week:      cloneInt(f.Week),
		Day:       cloneInt(f.Day),
		RangeDays: cloneInt(f.RangeDays),
		StartDate: cloneString(f.StartDate),
		EndDate:   cloneString(f.EndDate),
		Channel:   cloneString(f.Channel),
	}
}

// Equal compares two filter sets field by field.
func (f DateFilters) Equal(other DateFilters) bool {
	for _, key := range Keys {
		a, okA := f.Get(key)
		b, okB := other.Get(key)
		if okA != okB || a != b {
			return false
		}
	}
	return true
}

func (f *DateFilters) intField(key Key) *int {
	switch key {
	case KeyYear:
		return f.Year
	case KeyMonth:
		return f.Month
	case KeyWeek:
		return f.Week
	case KeyDay:
		return f.Day
	case KeyRangeDays:
		return f.RangeDays
	}
	return nil
}

func (f *DateFilters) stringField(key Key) *string {
	switch key {
	case KeyStartDate:
		return f.StartDate
	case KeyEndDate:
		return f.EndDate
	case KeyChannel:
		return f.Channel
	}
	return nil
}

func (f *DateFilters) setInt(key Key, v *int) {
	switch key {
	case KeyYear:
		f.Year = v
	case KeyMonth:
		f.Month = v
	case KeyWeek:
		f.Week = v
	case KeyDay:
		f.Day = v
	case KeyRangeDays:
		f.RangeDays = v
	}
}

func (f *DateFilters) setString(key Key, v *string) {
	switch key {
	case KeyStartDate:
		f.StartDate = v
	case KeyEndDate:
		f.EndDate = v
	case KeyChannel:
		f.Channel = v
	}
}

func (f *DateFilters) unset(key Key) {
	if key.IsNumeric() {
		f.setInt(key, nil)
		return
	}
	f.setString(key, nil)
}

// set stores value under key. A nil value unsets the key.
func (f *DateFilters) set(key Key, value any) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if value == nil {
		f.unset(key)
		return nil
	}
	if key.IsNumeric() {
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
		f.setInt(key, &n)
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidValue, key, value)
	}
	f.setString(key, &s)
	return nil
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

// Int returns a pointer to v, for building filters in literals.
func Int(v int) *int { return &v }

// String returns a pointer to v, for building filters in literals.
func String(v string) *string { return &v }

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
