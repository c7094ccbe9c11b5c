package forecast

import (
	"sort"
	"time"
)

// DistinctLocations returns the location names present in records, sorted.
func DistinctLocations(records []Record) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Location]; ok {
			continue
		}
		seen[r.Location] = struct{}{}
		names = append(names, r.Location)
	}
	sort.Strings(names)
	return names
}

// LatestByLocation returns the newest forecast date for each location.
func LatestByLocation(records []Record) []LatestForecast {
	latest := make(map[string]time.Time)
	for _, r := range records {
		if cur, ok := latest[r.Location]; !ok || r.Date.After(cur) {
			latest[r.Location] = r.Date
		}
	}

	out := make([]LatestForecast, 0, len(latest))
	for loc, ts := range latest {
		out = append(out, LatestForecast{Location: loc, LatestDate: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// AverageOfLatest averages field over each location's last n forecast days.
// Locations are returned in name order.
func AverageOfLatest(records []Record, field Field, n int) []LocationAverage {
	byLocation := groupByLocation(records)

	out := make([]LocationAverage, 0, len(byLocation))
	for loc, rows := range byLocation {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })
		if n > 0 && len(rows) > n {
			rows = rows[:n]
		}
		out = append(out, LocationAverage{Location: loc, Average: mean(rows, field)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// TopByAverage ranks locations by the mean of field, highest first, and keeps n.
// Ties are broken by name.
func TopByAverage(records []Record, field Field, n int) []LocationAverage {
	byLocation := groupByLocation(records)

	out := make([]LocationAverage, 0, len(byLocation))
	for loc, rows := range byLocation {
		out = append(out, LocationAverage{Location: loc, Average: mean(rows, field)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Average != out[j].Average {
			return out[i].Average > out[j].Average
		}
		return out[i].Location < out[j].Location
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func groupByLocation(records []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, r := range records {
		groups[r.Location] = append(groups[r.Location], r)
	}
	return groups
}

func mean(rows []Record, field Field) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += r.Value(field)
	}
	return sum / float64(len(rows))
}
