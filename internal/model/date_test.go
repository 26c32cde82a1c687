package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_UsesLocation(t *testing.T) {
	instant := time.Date(2024, 6, 3, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-06-03", DateOf(instant, nil).String())

	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "2024-06-04", DateOf(instant, tokyo).String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d)

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)

	_, err = ParseDate("not-a-date")
	assert.Error(t, err)
}

func TestDate_Arithmetic(t *testing.T) {
	start := MustParseDate("2024-01-01")

	assert.Equal(t, 0, start.DaysSince(start))
	assert.Equal(t, 60, MustParseDate("2024-03-01").DaysSince(start))
	assert.Equal(t, -1, MustParseDate("2023-12-31").DaysSince(start))
	assert.Equal(t, "2024-03-01", start.AddDays(60).String())
	assert.True(t, MustParseDate("2023-12-31").Before(start))
	assert.False(t, start.Before(start))
}

func TestDate_DaysSinceDistantDates(t *testing.T) {
	anchor := MustParseDate("1700-01-01")
	day := MustParseDate("2026-01-01")

	assert.Equal(t, 119069, day.DaysSince(anchor))
	assert.Equal(t, 119070, day.AddDays(1).DaysSince(anchor))
	assert.Equal(t, -119069, anchor.DaysSince(day))
	assert.Equal(t, 192118, day.DaysSince(MustParseDate("1500-01-01")))
}

func TestDate_Calendar(t *testing.T) {
	assert.Equal(t, time.Monday, MustParseDate("2024-06-03").Weekday())
	assert.Equal(t, 29, MustParseDate("2024-02-10").DaysInMonth())
	assert.Equal(t, 28, MustParseDate("2023-02-10").DaysInMonth())
	assert.Equal(t, 30, MustParseDate("2024-04-01").DaysInMonth())
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		On Date `json:"on"`
	}

	data, err := json.Marshal(wrapper{On: MustParseDate("2024-06-03")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2024-06-03"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, MustParseDate("2024-06-03"), w.On)
}
