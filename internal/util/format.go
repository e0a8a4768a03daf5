package util //nolint:revive // package name util hosts shared formatting helpers used by the CLI

import "time"

// FormatRemaining renders the time left until a deadline for display.
// Returns "—" once the deadline has passed. Under a minute it keeps whole
// seconds, otherwise whole minutes.
func FormatRemaining(d time.Duration) string {
	switch {
	case d <= 0:
		return "—"
	case d < time.Minute:
		return d.Truncate(time.Second).String()
	default:
		return d.Truncate(time.Minute).String()
	}
}
