package messaging

import (
	"fmt"
	"strings"
	"time"
)

// Formatter renders call system messages. Each method returns the message
// text; multi-line text is split on newlines before sending.
type Formatter interface {
	Started(at time.Time) string
	Ended(at time.Time, duration time.Duration) string
	Missed() string
}

// DefaultFormatter renders English messages. Times are shown as 24-hour
// HH:MM in Location, or local time when Location is nil.
type DefaultFormatter struct {
	Location *time.Location
}

// Started renders the call-started notice.
func (f DefaultFormatter) Started(at time.Time) string {
	return fmt.Sprintf("call started at %s", f.clock(at))
}

// Ended renders the call-ended notice.
func (f DefaultFormatter) Ended(at time.Time, duration time.Duration) string {
	return fmt.Sprintf("Call ended at %s. Duration: %s", f.clock(at), FormatDuration(duration))
}

// Missed renders the missed-call notice.
func (f DefaultFormatter) Missed() string {
	return "Missed call"
}

func (f DefaultFormatter) clock(at time.Time) string {
	if f.Location != nil {
		at = at.In(f.Location)
	}
	return at.Format("15:04")
}

// FormatDuration renders a call duration: fractional seconds under a
// minute ("12.34 seconds"), whole zero-padded minutes otherwise ("05min").
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2f seconds", d.Seconds())
	}
	return fmt.Sprintf("%02dmin", int(d/time.Minute))
}

// Lines splits message text into the lines a Sender expects.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}
