package filters

import "strings"

// Sanitize repairs filters loaded from persisted state. Only the highest-precedence
// temporal group survives and an unrecognised channel is dropped. Empty strings are
// treated as unset.
func (f DateFilters) Sanitize() DateFilters {
	next := f.Clone()
	for _, key := range []Key{KeyStartDate, KeyEndDate, KeyChannel} {
		if ptr := next.stringField(key); ptr != nil && strings.TrimSpace(*ptr) == "" {
			next.unset(key)
		}
	}

	switch next.Mode() {
	case ModeRange:
		next.clear(customKeys...)
		next.clear(quickKeys...)
	case ModeCustom:
		next.clear(quickKeys...)
	}

	if next.Channel != nil && !knownChannel(*next.Channel) {
		next.Channel = nil
	}
	return next
}

func knownChannel(channel string) bool {
	for _, known := range Channels {
		if channel == known {
			return true
		}
	}
	return false
}
