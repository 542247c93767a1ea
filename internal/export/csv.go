// Package export renders dashboard panels as CSV and tracks the state of agent export
// downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rpay/rpay-insights/internal/normalize"
)

// WriteHeatmapCSV writes one line per entity with a column per period.
func WriteHeatmapCSV(w io.Writer, matrix normalize.HeatmapMatrix) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := append([]string{"Key", "Label"}, matrix.Periods...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range matrix.Rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Key, row.Label)
		for _, period := range matrix.Periods {
			record = append(record, formatFloat(row.Value(period)))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTableCSV writes table rows under the table's column order.
func WriteTableCSV(w io.Writer, table normalize.Table) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	columns := table.Columns
	if len(columns) == 0 {
		columns = normalize.Columns(table.Rows)
	}
	if err := writer.Write(columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatCell(row[column])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSeriesCSV writes a trend chart as label/value pairs.
func WriteSeriesCSV(w io.Writer, metric string, series normalize.GraphSeries) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if metric == "" {
		metric = "Value"
	}
	if err := writer.Write([]string{"Period", metric}); err != nil {
		return err
	}
	for _, point := range series {
		if err := writer.Write([]string{point.Label, formatFloat(point.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatFloat(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
