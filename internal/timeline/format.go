package timeline

import (
	"fmt"
	"math"
	"time"
)

// FormatAge renders how long ago a tweet was posted the way the official
// apps do: "now", "5m", "3h", then a date.
func FormatAge(then, now time.Time) string {
	age := now.Sub(then)

	if age <= time.Minute {
		return "now"
	}
	if age <= time.Hour {
		return fmt.Sprintf("%dm", int(math.Ceil(age.Minutes())))
	}
	if age <= 24*time.Hour {
		return fmt.Sprintf("%dh", int(math.Floor(age.Hours())))
	}

	then = then.In(now.Location())
	if then.Year() != now.Year() {
		return then.Format("01 02 2006")
	}
	return then.Format("Jan 02")
}

// FormatCount abbreviates retweet and like counts ("1.2M", "3.4K")
func FormatCount(count int) string {
	switch {
	case count > 1_000_000:
		return fmt.Sprintf("%.1fM", float64(count)/1_000_000)
	case count > 1_000:
		return fmt.Sprintf("%.1fK", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}
