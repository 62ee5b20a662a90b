package ingest

import "time"

// AnnualAfter returns true if a sync is needed for an annual dataset
// that releases after the given month. Syncs once per year after the release month.
func AnnualAfter(now time.Time, lastSync *time.Time, releaseMonth time.Month) bool {
	if lastSync == nil {
		return true
	}
	releaseDate := time.Date(now.Year(), releaseMonth, 1, 0, 0, 0, 0, time.UTC)
	return now.After(releaseDate) && lastSync.Before(releaseDate)
}

// MonthlySchedule returns true if a sync is needed for a monthly dataset.
func MonthlySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return lastSync.Before(thisMonth)
}

// WeeklySchedule returns true if a sync is needed for a weekly dataset.
func WeeklySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	// Find the start of the current ISO week (Monday).
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := time.Date(now.Year(), now.Month(), now.Day()-(weekday-1), 0, 0, 0, 0, time.UTC)
	return lastSync.Before(weekStart)
}

// DailySchedule returns true if a sync is needed for a daily dataset.
func DailySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return lastSync.Before(today)
}
