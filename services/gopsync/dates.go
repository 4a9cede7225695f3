package gopsync

import (
	"strings"
	"time"
)

// date-only layouts the portal has been seen rendering
var fechaLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02/01/06",
}

// ParseFecha parses the free-text dates the portal renders. Strings
// carrying a time-of-day are truncated to their first 10 characters and
// read as ISO; everything else runs through the layout list. A date
// that parses with no layout yields ok=false, never an error, so a
// garbled cell can't abort a sync run.
func ParseFecha(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if strings.Contains(raw, ":") {
		if len(raw) < 10 {
			return time.Time{}, false
		}
		t, err := time.Parse("2006-01-02", raw[:10])
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	for _, layout := range fechaLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
