// Package normalize reshapes analytics backend payloads into view models. Functions
// here never fail on missing or malformed optional fields; they degrade to empty values.
package normalize

import "encoding/json"

// GraphPoints holds parallel label and value arrays.
type GraphPoints struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// GraphPayload is the backend shape of a trend chart.
type GraphPayload struct {
	Metric string       `json:"metric"`
	Data   *GraphPoints `json:"data"`
}

// Point is one labelled value of a series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// GraphSeries is an ordered chart series.
type GraphSeries []Point

// ToGraphSeries zips labels with values. Mismatched arrays yield min(len) points.
func ToGraphSeries(payload GraphPayload) GraphSeries {
	if payload.Data == nil || len(payload.Data.Labels) == 0 {
		return GraphSeries{}
	}
	n := len(payload.Data.Labels)
	if len(payload.Data.Values) < n {
		n = len(payload.Data.Values)
	}
	series := make(GraphSeries, 0, n)
	for i := 0; i < n; i++ {
		series = append(series, Point{Label: payload.Data.Labels[i], Value: payload.Data.Values[i]})
	}
	return series
}

// rawGraph tolerates labels and values of any JSON type.
type rawGraph struct {
	Metric string `json:"metric"`
	Data   *struct {
		Labels []any `json:"labels"`
		Values []any `json:"values"`
	} `json:"data"`
}

// DecodeGraph decodes a raw body and normalises it. Non-numeric values read as zero
// and numeric strings are parsed, so one malformed element keeps the rest of the series.
func DecodeGraph(raw []byte) GraphSeries {
	var body rawGraph
	if err := json.Unmarshal(raw, &body); err != nil || body.Data == nil {
		return GraphSeries{}
	}
	points := &GraphPoints{
		Labels: make([]string, len(body.Data.Labels)),
		Values: make([]float64, len(body.Data.Values)),
	}
	for i, label := range body.Data.Labels {
		points.Labels[i] = text(label)
	}
	for i, value := range body.Data.Values {
		points.Values[i] = number(value)
	}
	return ToGraphSeries(GraphPayload{Metric: body.Metric, Data: points})
}

// Labels returns the series labels.
func (s GraphSeries) Labels() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Label
	}
	return out
}

// Values returns the series values.
func (s GraphSeries) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}
