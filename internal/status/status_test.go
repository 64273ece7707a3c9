package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRelativeSynced(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"zero", 0, "synced just now"},
		{"under five seconds", 4 * time.Second, "synced just now"},
		{"five seconds", 5 * time.Second, "synced 5s ago"},
		{"fifty-nine seconds", 59 * time.Second, "synced 59s ago"},
		{"exactly one minute", 60 * time.Second, "synced 1m ago"},
		{"ninety seconds floors", 90 * time.Second, "synced 1m ago"},
		{"fifty-nine minutes", 59 * time.Minute, "synced 59m ago"},
		{"exactly one hour", 60 * time.Minute, "synced 1h ago"},
		{"twenty-three hours", 23 * time.Hour, "synced 23h ago"},
		{"one day", 24 * time.Hour, "synced 1d ago"},
		{"two and a half days floors", 60 * time.Hour, "synced 2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Synced(base.Add(-tt.ago))
			assert.Equal(t, tt.want, FormatRelative(s, base))
		})
	}
}

func TestFormatRelativeOtherKinds(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "idle", FormatRelative(Idle(), now))
	assert.Equal(t, "syncing", FormatRelative(Syncing(), now))
	assert.Equal(t, "offline", FormatRelative(Offline(), now))
	assert.Equal(t, "error: no route to host", FormatRelative(Error("no route to host"), now))
	assert.Equal(t, "error", FormatRelative(Error(""), now))
}
