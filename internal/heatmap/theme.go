package heatmap

import "strings"

// Palette maps buckets to colours for one UI theme.
type Palette struct {
	Low    string `json:"low"`
	Medium string `json:"medium"`
	High   string `json:"high"`
	Text   string `json:"text"`
}

// Theme names.
const (
	ThemeLight          = "light"
	ThemeDark           = "dark"
	ThemeTransflowLight = "transflow-light"
	ThemeTransflowDark  = "transflow-dark"
)

var palettes = map[string]Palette{
	ThemeLight:          {Low: "#f1f5f9", Medium: "#3b82f6", High: "#1d4ed8", Text: "#0f172a"},
	ThemeDark:           {Low: "#1e293b", Medium: "#3b82f6", High: "#60a5fa", Text: "#f8fafc"},
	ThemeTransflowLight: {Low: "#f1f5f9", Medium: "#60a5fa", High: "#3b82f6", Text: "#0f172a"},
	ThemeTransflowDark:  {Low: "#1e293b", Medium: "#0369a1", High: "#60a5fa", Text: "#f8fafc"},
}

// ParseTheme normalises a theme name; unknown names fall back to light.
func ParseTheme(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := palettes[name]; ok {
		return name
	}
	return ThemeLight
}

// PaletteFor returns the palette of theme.
func PaletteFor(theme string) Palette {
	return palettes[ParseTheme(theme)]
}

// Color returns the background for b.
func (p Palette) Color(b Bucket) string {
	switch b {
	case Medium:
		return p.Medium
	case High:
		return p.High
	}
	return p.Low
}
