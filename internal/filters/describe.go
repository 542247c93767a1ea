package filters

import (
	"fmt"
	"strings"
	"time"
)

// Badge is one removable entry in the active-filter summary bar. Clearing Key
// removes the badge.
type Badge struct {
	Key   Key    `json:"key"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// Describe renders a one-line summary of the filters for dashboard subtitles.
func (f DateFilters) Describe() string {
	if f.IsEmpty() {
		return "All time"
	}

	var parts []string
	switch {
	case f.Year != nil && f.Month != nil:
		parts = append(parts, fmt.Sprintf("%s %d", monthName(*f.Month), *f.Year))
	case f.Year != nil:
		parts = append(parts, fmt.Sprintf("Year %d", *f.Year))
	case f.Month != nil:
		parts = append(parts, fmt.Sprintf("%s (all years)", monthName(*f.Month)))
	}

	if f.RangeDays != nil {
		parts = append(parts, fmt.Sprintf("Last %d days", *f.RangeDays))
	}

	if label := customLabel(f); label != "" {
		parts = append(parts, label)
	}

	if f.Week != nil {
		parts = append(parts, fmt.Sprintf("Week %d", *f.Week))
	}
	if f.Day != nil {
		parts = append(parts, dayLabel(f))
	}
	if f.Channel != nil {
		parts = append(parts, "Channel: "+*f.Channel)
	}

	if len(parts) == 0 {
		return "Filtered period"
	}
	return strings.Join(parts, ", ")
}

// Badges lists the active filters the way the summary bar shows them. Range wins
// over custom, custom over quick.
func (f DateFilters) Badges() []Badge {
	badges := make([]Badge, 0, 4)
	switch {
	case f.RangeDays != nil:
		badges = append(badges, Badge{Key: KeyRangeDays, Label: fmt.Sprintf("Last %d days", *f.RangeDays), Kind: string(ModeRange)})
	case f.StartDate != nil:
		badges = append(badges, Badge{Key: KeyStartDate, Label: customLabel(f), Kind: string(ModeCustom)})
	case f.EndDate != nil:
		badges = append(badges, Badge{Key: KeyEndDate, Label: customLabel(f), Kind: string(ModeCustom)})
	case f.Year != nil && f.Month != nil:
		badges = append(badges, Badge{Key: KeyYear, Label: fmt.Sprintf("%s %d", monthName(*f.Month), *f.Year), Kind: string(ModeQuick)})
	case f.Year != nil:
		badges = append(badges, Badge{Key: KeyYear, Label: fmt.Sprintf("Year %d", *f.Year), Kind: string(ModeQuick)})
	case f.Month != nil:
		badges = append(badges, Badge{Key: KeyMonth, Label: fmt.Sprintf("%s (all years)", monthName(*f.Month)), Kind: string(ModeQuick)})
	}
	if f.Day != nil {
		badges = append(badges, Badge{Key: KeyDay, Label: dayLabel(f), Kind: string(ModeQuick)})
	}
	if f.Channel != nil {
		badges = append(badges, Badge{Key: KeyChannel, Label: "Channel: " + *f.Channel, Kind: "channel"})
	}
	return badges
}

func customLabel(f DateFilters) string {
	switch {
	case f.StartDate != nil && f.EndDate != nil:
		return fmt.Sprintf("%s to %s", *f.StartDate, *f.EndDate)
	case f.StartDate != nil:
		return "From " + *f.StartDate
	case f.EndDate != nil:
		return "Until " + *f.EndDate
	}
	return ""
}

// dayLabel distinguishes a day inside the selected year/month from the same
// day-of-month across every period.
func dayLabel(f DateFilters) string {
	if f.Year == nil && f.Month == nil {
		return fmt.Sprintf("Day %d of every month", *f.Day)
	}
	return fmt.Sprintf("Day %d", *f.Day)
}

func monthName(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("Month %d", month)
	}
	return time.Month(month).String()
}
