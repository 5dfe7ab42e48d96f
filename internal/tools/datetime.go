package tools

import (
	"context"
	"encoding/json"
)

type DateTimeResult struct {
	Timestamp int64             `json:"timestamp"`
	ISO       string            `json:"iso"`
	Timezone  string            `json:"timezone"`
	Formatted DateTimeFormatted `json:"formatted"`
}

type DateTimeFormatted struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	DateShort string `json:"dateShort"`
	TimeShort string `json:"timeShort"`
}

func datetimeTool() Definition {
	return Definition{
		Name:        "datetime",
		Description: "Get the current date and time in the user's timezone",
		Schema:      Schema{},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			return CurrentDateTime(rc), nil
		},
	}
}

// CurrentDateTime formats the request instant in the caller's timezone.
func CurrentDateTime(rc RequestContext) DateTimeResult {
	loc := rc.location()
	now := requestNow(rc).In(loc)
	return DateTimeResult{
		Timestamp: now.UnixMilli(),
		ISO:       now.Format("2006-01-02T15:04:05.000Z07:00"),
		Timezone:  loc.String(),
		Formatted: DateTimeFormatted{
			Date:      now.Format("Monday, January 2, 2006"),
			Time:      now.Format("03:04:05 PM"),
			DateShort: now.Format("Jan 2, 2006"),
			TimeShort: now.Format("03:04 PM"),
		},
	}
}
