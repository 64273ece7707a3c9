// Package status holds the engine-wide synchronization state machine and a
// broadcast publisher that UI layers subscribe to.
package status

import (
	"fmt"
	"time"
)

// Kind enumerates the states of the sync state machine.
type Kind string

const (
	KindIdle    Kind = "idle"
	KindSyncing Kind = "syncing"
	KindSynced  Kind = "synced"
	KindOffline Kind = "offline"
	KindError   Kind = "error"
)

// Status is a tagged variant: LastSync is meaningful only for KindSynced,
// Message only for KindError.
type Status struct {
	Kind     Kind      `json:"kind"`
	LastSync time.Time `json:"last_sync,omitzero"`
	Message  string    `json:"message,omitempty"`
}

func Idle() Status    { return Status{Kind: KindIdle} }
func Syncing() Status { return Status{Kind: KindSyncing} }
func Offline() Status { return Status{Kind: KindOffline} }

// Synced reports a successful sync completed at lastSync.
func Synced(lastSync time.Time) Status {
	return Status{Kind: KindSynced, LastSync: lastSync.UTC()}
}

// Error reports a non-network sync failure.
func Error(message string) Status {
	return Status{Kind: KindError, Message: message}
}

// FormatRelative renders a status for display, with the synced variant shown
// as a relative time ("just now", "Ns ago", "Nm ago", "Nh ago", "Nd ago").
// Boundaries floor-divide: exactly 60s is "1m ago", exactly 60m is "1h ago".
func FormatRelative(s Status, now time.Time) string {
	switch s.Kind {
	case KindSynced:
		return "synced " + relative(now.Sub(s.LastSync))
	case KindError:
		if s.Message != "" {
			return "error: " + s.Message
		}
		return "error"
	default:
		return string(s.Kind)
	}
}

func relative(d time.Duration) string {
	switch {
	case d < 5*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours())/24)
	}
}
