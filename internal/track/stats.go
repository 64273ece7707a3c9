package track

import (
	"sort"
	"time"

	"github.com/kalambet/doselog/internal/storage"
)

// WeightStats summarizes a user's weight series.
type WeightStats struct {
	Count       int        `json:"count"`
	LatestKg    float64    `json:"latest_kg"`
	LatestAt    time.Time  `json:"latest_at"`
	MinKg       float64    `json:"min_kg"`
	MaxKg       float64    `json:"max_kg"`
	TrendKgWeek float64    `json:"trend_kg_per_week"`
	MovingAvg   []AvgPoint `json:"moving_avg"`
}

// AvgPoint is one sample of the 7-day moving average.
type AvgPoint struct {
	Date     string  `json:"date"` // YYYY-MM-DD
	AvgKg    float64 `json:"avg_kg"`
	NSamples int     `json:"n_samples"`
}

// ComputeWeightStats is pure: callers fetch the entries however they like.
// Order of the input does not matter.
func ComputeWeightStats(entries []storage.WeightEntry) WeightStats {
	if len(entries) == 0 {
		return WeightStats{}
	}

	sorted := make([]storage.WeightEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	stats := WeightStats{
		Count:    len(sorted),
		LatestKg: sorted[len(sorted)-1].WeightKg,
		LatestAt: sorted[len(sorted)-1].RecordedAt,
		MinKg:    sorted[0].WeightKg,
		MaxKg:    sorted[0].WeightKg,
	}
	for _, e := range sorted {
		if e.WeightKg < stats.MinKg {
			stats.MinKg = e.WeightKg
		}
		if e.WeightKg > stats.MaxKg {
			stats.MaxKg = e.WeightKg
		}
	}
	stats.TrendKgWeek = weightTrend(sorted)
	stats.MovingAvg = movingAverage(sorted, 7)
	return stats
}

// weightTrend fits a least-squares line over (days since first entry,
// weight) and reports the slope in kg per week. Fewer than two points, or
// all points at the same instant, give zero.
func weightTrend(sorted []storage.WeightEntry) float64 {
	if len(sorted) < 2 {
		return 0
	}
	t0 := sorted[0].RecordedAt
	var sumX, sumY, sumXY, sumXX float64
	for _, e := range sorted {
		x := e.RecordedAt.Sub(t0).Hours() / 24
		y := e.WeightKg
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	n := float64(len(sorted))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	perDay := (n*sumXY - sumX*sumY) / denom
	return perDay * 7
}

// movingAverage produces one point per calendar day with at least one
// entry, averaging over the trailing window of days.
func movingAverage(sorted []storage.WeightEntry, windowDays int) []AvgPoint {
	type daySum struct {
		sum float64
		n   int
	}
	byDay := make(map[string]*daySum)
	var days []string
	for _, e := range sorted {
		day := e.RecordedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &daySum{}
			byDay[day] = d
			days = append(days, day)
		}
		d.sum += e.WeightKg
		d.n++
	}

	var points []AvgPoint
	for _, day := range days {
		end, _ := time.Parse("2006-01-02", day)
		start := end.AddDate(0, 0, -(windowDays - 1))

		var sum float64
		var n int
		for other, d := range byDay {
			t, _ := time.Parse("2006-01-02", other)
			if !t.Before(start) && !t.After(end) {
				sum += d.sum
				n += d.n
			}
		}
		points = append(points, AvgPoint{Date: day, AvgKg: sum / float64(n), NSamples: n})
	}
	return points
}

// InjectionStats summarizes a user's injection history.
type InjectionStats struct {
	Count        int            `json:"count"`
	PerWeek      float64        `json:"per_week"`
	TotalDoseMg  float64        `json:"total_dose_mg"`
	LastInjected time.Time      `json:"last_injected"`
	ByWeekday    map[string]int `json:"by_weekday"`
}

// ComputeInjectionStats is pure; order of the input does not matter.
func ComputeInjectionStats(injections []storage.Injection, now time.Time) InjectionStats {
	stats := InjectionStats{ByWeekday: make(map[string]int)}
	if len(injections) == 0 {
		return stats
	}

	first := injections[0].InjectedAt
	for _, in := range injections {
		stats.Count++
		stats.TotalDoseMg += in.DoseMg
		if in.InjectedAt.Before(first) {
			first = in.InjectedAt
		}
		if in.InjectedAt.After(stats.LastInjected) {
			stats.LastInjected = in.InjectedAt
		}
		stats.ByWeekday[in.InjectedAt.UTC().Weekday().String()]++
	}

	span := now.Sub(first)
	if span < 7*24*time.Hour {
		span = 7 * 24 * time.Hour
	}
	stats.PerWeek = float64(stats.Count) / (span.Hours() / (7 * 24))
	return stats
}
