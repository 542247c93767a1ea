// Package heatmap scales activity matrices into coloured, paginated views.
package heatmap

// Bucket is a colour intensity class.
type Bucket string

// Intensity buckets.
const (
	Low    Bucket = "low"
	Medium Bucket = "medium"
	High   Bucket = "high"
)

const (
	lowThreshold    = 0.33
	mediumThreshold = 0.66
)

// Scale holds the min and max of the non-zero values a view is coloured against.
type Scale struct {
	Min   float64
	Max   float64
	valid bool
}

// Range returns the min and max of the non-zero values. ok is false when there are none.
func Range(values []float64) (lo, hi float64, ok bool) {
	for _, v := range values {
		if v == 0 {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, ok
}

// NewScale builds a Scale over values. Zeros are ignored.
func NewScale(values []float64) Scale {
	lo, hi, ok := Range(values)
	return Scale{Min: lo, Max: hi, valid: ok}
}

// Bucket classifies value. Zero is always low. When every non-zero value is equal the
// result is high, so single-value views still register as hot.
func (s Scale) Bucket(value float64) Bucket {
	if value == 0 {
		return Low
	}
	if !s.valid || s.Max == s.Min {
		return High
	}
	intensity := (value - s.Min) / (s.Max - s.Min)
	switch {
	case intensity < lowThreshold:
		return Low
	case intensity < mediumThreshold:
		return Medium
	}
	return High
}

// ColorFor classifies value against the non-zero values currently in view.
func ColorFor(value float64, nonZero []float64) Bucket {
	return NewScale(nonZero).Bucket(value)
}
