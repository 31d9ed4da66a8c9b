package visualize

import (
	"sort"
	"time"

	"github.com/fhirtab/fhirtab/internal/flatten"
)

// userSeries is one user's daily QuantityValue sums.
type userSeries struct {
	userID string
	totals map[time.Time]float64
}

// aggregate filters the frame's rows by date range and user list, then
// sums QuantityValue grouped by (UserId, EffectiveDateTime). Rows with
// a missing date are dropped, matching a group-by over missing keys.
// Returned series follow the order users first appear in; userIDs nil
// means every distinct user present.
func aggregate(frame *flatten.Frame, start, end *time.Time, userIDs []string) []userSeries {
	table := frame.Table()

	var wanted map[string]bool
	if len(userIDs) > 0 {
		wanted = make(map[string]bool, len(userIDs))
		for _, id := range userIDs {
			wanted[id] = true
		}
	}

	index := make(map[string]int)
	var series []userSeries

	for row := 0; row < table.NumRows(); row++ {
		cell, _ := table.Cell(row, flatten.ColUserID)
		uid, ok := cell.(string)
		if !ok || (wanted != nil && !wanted[uid]) {
			continue
		}

		cell, _ = table.Cell(row, flatten.ColEffectiveDateTime)
		day, ok := cell.(time.Time)
		if !ok {
			continue
		}
		if start != nil && day.Before(*start) {
			continue
		}
		if end != nil && day.After(*end) {
			continue
		}

		cell, _ = table.Cell(row, flatten.ColQuantityValue)
		value, ok := asFloat(cell)
		if !ok {
			continue
		}

		i, seen := index[uid]
		if !seen {
			i = len(series)
			index[uid] = i
			series = append(series, userSeries{userID: uid, totals: make(map[time.Time]float64)})
		}
		series[i].totals[day] += value
	}

	return series
}

// seriesDates returns the sorted union of dates across the given series.
func seriesDates(series []userSeries) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, s := range series {
		for d := range s.totals {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
