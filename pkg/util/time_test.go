package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0:00"},
		{"seconds only", 42 * time.Second, "0:42"},
		{"minutes", 5*time.Minute + 3*time.Second, "5:03"},
		{"just under an hour", 59*time.Minute + 59*time.Second, "59:59"},
		{"exactly an hour", time.Hour, "1:00:00"},
		{"over an hour", time.Hour + 23*time.Minute + 7*time.Second, "1:23:07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.d))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:01:30", FormatDuration(90*time.Second))
	assert.Equal(t, "02:00:05", FormatDuration(2*time.Hour+5*time.Second))
}
