package recordingsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/classroom-lms/backend/internal/zoom"
)

// Window is an inclusive range of calendar dates passed to the recording source.
// From after To is not rejected; the source simply returns nothing.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) String() string {
	return w.From.Format(zoom.DateLayout) + ".." + w.To.Format(zoom.DateLayout)
}

// WindowEndingAt returns the last days days through now.
func WindowEndingAt(now time.Time, days int) Window {
	if days < 0 {
		days = 0
	}
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// ParseWindow builds a window from optional YYYY-MM-DD bounds. A missing To means today;
// a missing From means defaultDays before To.
func ParseWindow(from, to string, now time.Time, defaultDays int) (Window, error) {
	w := Window{To: now}
	if s := strings.TrimSpace(to); s != "" {
		t, err := time.Parse(zoom.DateLayout, s)
		if err != nil {
			return Window{}, fmt.Errorf("invalid to date %q: expected YYYY-MM-DD", s)
		}
		w.To = t
	}
	if s := strings.TrimSpace(from); s != "" {
		t, err := time.Parse(zoom.DateLayout, s)
		if err != nil {
			return Window{}, fmt.Errorf("invalid from date %q: expected YYYY-MM-DD", s)
		}
		w.From = t
	} else {
		w.From = WindowEndingAt(w.To, defaultDays).From
	}
	return w, nil
}
