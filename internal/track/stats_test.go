package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/doselog/internal/storage"
)

func day(d int) time.Time {
	return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestComputeWeightStatsEmpty(t *testing.T) {
	stats := ComputeWeightStats(nil)
	assert.Equal(t, 0, stats.Count)
	assert.Zero(t, stats.TrendKgWeek)
}

func TestComputeWeightStatsSingleEntry(t *testing.T) {
	stats := ComputeWeightStats([]storage.WeightEntry{
		{RecordedAt: day(0), WeightKg: 90},
	})
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 90.0, stats.LatestKg)
	assert.Zero(t, stats.TrendKgWeek, "one point has no trend")
}

func TestWeightTrendLinearLoss(t *testing.T) {
	// exactly 0.5 kg lost per week over four weeks
	var entries []storage.WeightEntry
	for week := 0; week < 5; week++ {
		entries = append(entries, storage.WeightEntry{
			RecordedAt: day(7 * week),
			WeightKg:   90 - 0.5*float64(week),
		})
	}
	stats := ComputeWeightStats(entries)
	assert.InDelta(t, -0.5, stats.TrendKgWeek, 1e-9)
	assert.Equal(t, 88.0, stats.LatestKg)
	assert.Equal(t, 88.0, stats.MinKg)
	assert.Equal(t, 90.0, stats.MaxKg)
}

func TestWeightTrendOrderIndependent(t *testing.T) {
	entries := []storage.WeightEntry{
		{RecordedAt: day(14), WeightKg: 89},
		{RecordedAt: day(0), WeightKg: 90},
		{RecordedAt: day(7), WeightKg: 89.5},
	}
	stats := ComputeWeightStats(entries)
	assert.InDelta(t, -0.5, stats.TrendKgWeek, 1e-9)
	assert.Equal(t, 89.0, stats.LatestKg)
}

func TestMovingAverageWindow(t *testing.T) {
	entries := []storage.WeightEntry{
		{RecordedAt: day(0), WeightKg: 90},
		{RecordedAt: day(1), WeightKg: 92},
		{RecordedAt: day(10), WeightKg: 80}, // outside the 7-day window of day 1
	}
	stats := ComputeWeightStats(entries)
	require.Len(t, stats.MovingAvg, 3)

	assert.Equal(t, AvgPoint{Date: "2025-06-01", AvgKg: 90, NSamples: 1}, stats.MovingAvg[0])
	assert.Equal(t, AvgPoint{Date: "2025-06-02", AvgKg: 91, NSamples: 2}, stats.MovingAvg[1])
	assert.Equal(t, AvgPoint{Date: "2025-06-11", AvgKg: 80, NSamples: 1}, stats.MovingAvg[2])
}

func TestComputeInjectionStats(t *testing.T) {
	injections := []storage.Injection{
		{InjectedAt: day(0), Medication: "semaglutide", DoseMg: 0.25},
		{InjectedAt: day(7), Medication: "semaglutide", DoseMg: 0.25},
		{InjectedAt: day(14), Medication: "semaglutide", DoseMg: 0.5},
	}
	now := day(14)
	stats := ComputeInjectionStats(injections, now)

	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 1.0, stats.TotalDoseMg, 1e-9)
	assert.Equal(t, day(14), stats.LastInjected)
	// 3 injections over a 14-day span = 1.5 per week
	assert.InDelta(t, 1.5, stats.PerWeek, 1e-9)
	assert.Equal(t, 3, stats.ByWeekday[day(0).Weekday().String()])
}

func TestInjectionStatsShortHistoryClampsSpan(t *testing.T) {
	injections := []storage.Injection{
		{InjectedAt: day(0), DoseMg: 1},
		{InjectedAt: day(0).Add(time.Hour), DoseMg: 1},
	}
	stats := ComputeInjectionStats(injections, day(0).Add(2*time.Hour))
	// span clamps to one week, so rate stays sane
	assert.InDelta(t, 2.0, stats.PerWeek, 1e-9)
}
