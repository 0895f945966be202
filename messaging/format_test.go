package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0.00 seconds"},
		{"fractional", 12340 * time.Millisecond, "12.34 seconds"},
		{"just under a minute", 59990 * time.Millisecond, "59.99 seconds"},
		{"one minute", time.Minute, "01min"},
		{"minutes truncate", 5*time.Minute + 59*time.Second, "05min"},
		{"over an hour", 75 * time.Minute, "75min"},
		{"negative clamps", -time.Second, "0.00 seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}

func TestDefaultFormatter(t *testing.T) {
	f := DefaultFormatter{Location: time.UTC}
	at := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

	assert.Equal(t, "call started at 09:05", f.Started(at))
	assert.Equal(t, "Call ended at 09:05. Duration: 03min", f.Ended(at, 3*time.Minute))
	assert.Equal(t, "Missed call", f.Missed())
}

func TestDefaultFormatterLocation(t *testing.T) {
	f := DefaultFormatter{Location: time.FixedZone("UTC+2", 2*60*60)}
	at := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "call started at 01:30", f.Started(at))
}

func TestLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Lines("a\nb"))
	assert.Equal(t, []string{"Missed call"}, Lines("Missed call"))
}
