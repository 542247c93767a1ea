// Package query serialises filters and panel options into backend query parameters.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rpay/rpay-insights/internal/filters"
)

// Parameter names that are not filter keys.
const (
	ParamGranularity = "granularity"
	ParamTopMode     = "top_mode"
	ParamTopLimit    = "top_limit"
	ParamMode        = "mode"
	ParamLimit       = "limit"
)

// Granularities lists the values understood by the trend endpoints.
var Granularities = []string{"daily", "weekly", "monthly", "yearly"}

// ValidGranularity reports whether g is empty or a known granularity.
func ValidGranularity(g string) bool {
	if g == "" {
		return true
	}
	for _, known := range Granularities {
		if g == known {
			return true
		}
	}
	return false
}

// Options carries the non-filter parameters of a panel request. Zero values are omitted.
type Options struct {
	Granularity string
	TopMode     string
	TopLimit    int
}

// Pair is a single key/value parameter.
type Pair struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. Order is insertion order so the same inputs
// always encode to the same string.
type Params []Pair

// Build serialises options then filters in declaration order. Unset and empty values are
// skipped; values are not range checked.
func Build(opts Options, f filters.DateFilters) Params {
	params := make(Params, 0, len(filters.Keys)+3)
	params = params.add(ParamGranularity, opts.Granularity)
	params = params.add(ParamTopMode, opts.TopMode)
	if opts.TopLimit != 0 {
		params = params.add(ParamTopLimit, strconv.Itoa(opts.TopLimit))
	}
	return params.appendFilters(f)
}

// TopEntities builds the parameters of a top-N endpoint, which names its options
// mode and limit.
func TopEntities(mode string, limit int, f filters.DateFilters) Params {
	params := make(Params, 0, len(filters.Keys)+2)
	params = params.add(ParamMode, mode)
	if limit != 0 {
		params = params.add(ParamLimit, strconv.Itoa(limit))
	}
	return params.appendFilters(f)
}

// Filters builds parameters from filters alone.
func Filters(f filters.DateFilters) Params {
	return Params(nil).appendFilters(f)
}

func (p Params) appendFilters(f filters.DateFilters) Params {
	for _, key := range filters.Keys {
		value, ok := f.Get(key)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case int:
			p = p.add(string(key), strconv.Itoa(v))
		case string:
			p = p.add(string(key), v)
		}
	}
	return p
}

func (p Params) add(key, value string) Params {
	if value == "" {
		return p
	}
	return append(p, Pair{Key: key, Value: value})
}

// With returns a copy of p with an extra pair appended. Empty values are skipped.
func (p Params) With(key, value string) Params {
	out := make(Params, len(p), len(p)+1)
	copy(out, p)
	return out.add(key, value)
}

// Get returns the first value stored under key.
func (p Params) Get(key string) (string, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

// Encode renders p in insertion order. The result doubles as a cache key.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, pair := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.Value))
	}
	return b.String()
}

// Values converts p to url.Values.
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))
	for _, pair := range p {
		values.Add(pair.Key, pair.Value)
	}
	return values
}

// Parse reads options and filters back from a query. Unknown keys are ignored. Numeric
// filter keys must hold integers.
func Parse(values url.Values) (Options, filters.DateFilters, error) {
	var opts Options
	opts.Granularity = strings.TrimSpace(values.Get(ParamGranularity))
	opts.TopMode = strings.TrimSpace(values.Get(ParamTopMode))
	if raw := strings.TrimSpace(values.Get(ParamTopLimit)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Options{}, filters.DateFilters{}, fmt.Errorf("query: %s: %w", ParamTopLimit, err)
		}
		opts.TopLimit = n
	}

	f, err := ParseFilters(values)
	if err != nil {
		return Options{}, filters.DateFilters{}, err
	}
	return opts, f, nil
}

// ParseFilters reads only the filter keys of a query. Values are stored as given, so
// parsing never triggers mode clearing.
func ParseFilters(values url.Values) (filters.DateFilters, error) {
	var f filters.DateFilters
	for _, key := range filters.Keys {
		raw := strings.TrimSpace(values.Get(string(key)))
		if raw == "" {
			continue
		}
		var value any = raw
		if key.IsNumeric() {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return filters.DateFilters{}, fmt.Errorf("query: %s: %w", key, filters.ErrInvalidValue)
			}
			value = n
		}
		f = assign(f, key, value)
	}
	return f, nil
}

// assign stores value without the cross-mode clearing of filters.Update, so a query
// reproduces exactly the filters that produced it.
func assign(f filters.DateFilters, key filters.Key, value any) filters.DateFilters {
	switch v := value.(type) {
	case int:
		switch key {
		case filters.KeyYear:
			f.Year = filters.Int(v)
		case filters.KeyMonth:
			f.Month = filters.Int(v)
		case filters.KeyWeek:
			f.Week = filters.Int(v)
		case filters.KeyDay:
			f.Day = filters.Int(v)
		case filters.KeyRangeDays:
			f.RangeDays = filters.Int(v)
		}
	case string:
		switch key {
		case filters.KeyStartDate:
			f.StartDate = filters.String(v)
		case filters.KeyEndDate:
			f.EndDate = filters.String(v)
		case filters.KeyChannel:
			f.Channel = filters.String(v)
		}
	}
	return f
}
