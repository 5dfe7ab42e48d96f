package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentDateTime(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	instant := time.Date(2024, 3, 5, 6, 7, 8, 9_000_000, time.UTC)

	out := CurrentDateTime(RequestContext{Location: tokyo, Now: instant})
	require.Equal(t, instant.UnixMilli(), out.Timestamp)
	require.Equal(t, "2024-03-05T15:07:08.009+09:00", out.ISO)
	require.Equal(t, "Asia/Tokyo", out.Timezone)
	require.Equal(t, "Tuesday, March 5, 2024", out.Formatted.Date)
	require.Equal(t, "03:07:08 PM", out.Formatted.Time)
	require.Equal(t, "Mar 5, 2024", out.Formatted.DateShort)
	require.Equal(t, "03:07 PM", out.Formatted.TimeShort)
}

func TestDatetimeToolDefaultsToUTC(t *testing.T) {
	def := datetimeTool()
	out, err := def.Execute(context.Background(), RequestContext{Now: time.Unix(0, 0)}, nil)
	require.NoError(t, err)
	result := out.(DateTimeResult)
	require.Equal(t, "UTC", result.Timezone)
	require.Equal(t, "1970-01-01T00:00:00.000Z", result.ISO)
}
