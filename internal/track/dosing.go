package track

import (
	"errors"
	"time"

	"github.com/kalambet/doselog/internal/storage"
)

// ErrScheduleComplete means now is past the last phase of the schedule.
var ErrScheduleComplete = errors.New("schedule complete")

// CurrentPhase walks the ordered phases from the schedule's start and
// returns the one covering now. Before the start it returns the first
// phase; past the last phase it returns ErrScheduleComplete.
func CurrentPhase(schedule storage.Schedule, phases []storage.SchedulePhase, now time.Time) (storage.SchedulePhase, error) {
	if len(phases) == 0 {
		return storage.SchedulePhase{}, errors.New("schedule has no phases")
	}
	if now.Before(schedule.StartedAt) {
		return phases[0], nil
	}

	elapsed := int(now.Sub(schedule.StartedAt).Hours() / 24)
	for _, p := range phases {
		if elapsed < p.DurationDays {
			return p, nil
		}
		elapsed -= p.DurationDays
	}
	return storage.SchedulePhase{}, ErrScheduleComplete
}

// NextDose gives the next due time for a phase's dose, spacing injections
// everyDays apart from the last one. With no prior injection the dose is
// due immediately.
func NextDose(phase storage.SchedulePhase, lastInjection *storage.Injection, everyDays int, now time.Time) (time.Time, float64) {
	if everyDays <= 0 {
		everyDays = 7
	}
	if lastInjection == nil {
		return now, phase.DoseMg
	}
	due := lastInjection.InjectedAt.AddDate(0, 0, everyDays)
	if due.Before(now) {
		due = now
	}
	return due, phase.DoseMg
}
