package tools

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PeriodPoint is a weekday (0 = Sunday) and an "HHMM" time.
type PeriodPoint struct {
	Day  int    `json:"day"`
	Time string `json:"time"`
}

type Period struct {
	Open  PeriodPoint  `json:"open"`
	Close *PeriodPoint `json:"close,omitempty"`
}

type HoursStatus struct {
	IsClosed bool
	// NextOpenClose is the "HHMM" of the next change, nil when unknown.
	NextOpenClose *string
	NextDay       int
}

const missingCloseTime = 2359

// Status reports whether a place with the given weekly periods is open at
// now, which must already be in the place's local time. Periods are scanned
// in (day, open time) order and the first match wins.
func Status(periods []Period, now time.Time) HoursStatus {
	currentDay := int(now.Weekday())
	currentTime := now.Hour()*100 + now.Minute()
	status := HoursStatus{IsClosed: true, NextDay: currentDay}

	sorted := append([]Period(nil), periods...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Open.Day != sorted[j].Open.Day {
			return sorted[i].Open.Day < sorted[j].Open.Day
		}
		return hhmm(sorted[i].Open.Time) < hhmm(sorted[j].Open.Time)
	})

	for _, period := range sorted {
		openTime := hhmm(period.Open.Time)
		closeTime := missingCloseTime
		if period.Close != nil {
			closeTime = hhmm(period.Close.Time)
		}
		day := period.Open.Day

		if closeTime < openTime {
			if currentDay == day && currentTime < closeTime {
				status.IsClosed = false
				status.NextOpenClose = closeLabel(period)
				return status
			}
			if currentDay == day && currentTime >= openTime {
				status.IsClosed = false
				status.NextOpenClose = closeLabel(period)
				status.NextDay = (day + 1) % 7
				return status
			}
		} else if currentDay == day && currentTime >= openTime && currentTime < closeTime {
			status.IsClosed = false
			status.NextOpenClose = closeLabel(period)
			return status
		}

		if day > currentDay || (day == currentDay && openTime > currentTime) {
			next := period.Open.Time
			status.NextOpenClose = &next
			status.NextDay = day
			return status
		}
	}
	return status
}

func closeLabel(period Period) *string {
	if period.Close == nil {
		label := strconv.Itoa(missingCloseTime)
		return &label
	}
	label := period.Close.Time
	return &label
}

// hhmm parses the leading digits of an "HHMM" string; junk reads as 0.
func hhmm(value string) int {
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(value[:end])
	if err != nil {
		return 0
	}
	return n
}

// flexFloat accepts JSON numbers and numeric strings. TripAdvisor sends
// both.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

var _ json.Unmarshaler = (*flexFloat)(nil)
