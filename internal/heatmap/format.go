package heatmap

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/rpay/rpay-insights/internal/normalize"
)

// CurrencySymbol prefixes monetary cells.
const CurrencySymbol = "₵"

// Formatter renders cell values with grouping separators. A Formatter is not safe for
// concurrent use.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns an English-locale formatter.
func NewFormatter() *Formatter {
	return &Formatter{printer: message.NewPrinter(language.English)}
}

// Number renders v with grouping and at most two fraction digits.
func (f *Formatter) Number(v float64) string {
	return f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Value renders v for mode: money for volume and average, a plain count otherwise.
func (f *Formatter) Value(mode normalize.HeatmapMode, v float64) string {
	if mode == normalize.HeatmapCount {
		return f.Number(v)
	}
	return CurrencySymbol + f.Number(v)
}

// Cell renders v for display inside the grid. Zero cells show a dash.
func (f *Formatter) Cell(mode normalize.HeatmapMode, v float64) string {
	if v == 0 {
		return "-"
	}
	return f.Value(mode, v)
}
