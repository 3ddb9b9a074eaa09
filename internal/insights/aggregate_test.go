package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func intp(n int) *int {
	return &n
}

func timeframe(t *testing.T, start, end string) Timeframe {
	t.Helper()
	return Timeframe{
		Start: ts(t, start),
		End:   ts(t, end),
	}
}

func categoryPoints(points []Point, category string) []Point {
	var out []Point
	for _, p := range points {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

func TestAggregateScenario(t *testing.T) {
	rows := EventRows{
		Sessions: []Row{
			{CreatedAt: ts(t, "2024-03-01T08:00:00+01:00")},
			{CreatedAt: ts(t, "2024-03-02T08:00:00+01:00"), Count: intp(4)},
		},
	}
	tf := timeframe(t, "2024-03-01T00:00:00Z", "2024-03-03T00:00:00Z")

	res := Aggregate(rows, tf)

	sessions := categoryPoints(res.ByDate.Points, CategorySessions)
	require.Len(t, sessions, 2)
	assert.Equal(t, Point{Bucket: "2024-03-01", Category: CategorySessions, Count: 1, RunningTotal: 1}, sessions[0])
	assert.Equal(t, Point{Bucket: "2024-03-02", Category: CategorySessions, Count: 4, RunningTotal: 5}, sessions[1])

	assert.Empty(t, categoryPoints(res.ByDate.Points, CategoryQuestions))
	assert.Empty(t, categoryPoints(res.ByDate.Points, CategoryAssistants))

	assert.Equal(t, 5, res.ByDate.Max[CategorySessions])
	assert.Equal(t, "2024-03-01", res.EarliestDate)
}

func TestRunningTotalCorrectness(t *testing.T) {
	rows := EventRows{
		Sessions: []Row{
			{CreatedAt: ts(t, "2024-01-02T12:00:00Z"), Count: intp(2)},
			{CreatedAt: ts(t, "2024-01-01T09:00:00Z"), Count: intp(3)},
		},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-03T00:00:00Z"))

	sessions := categoryPoints(res.ByDate.Points, CategorySessions)
	require.Len(t, sessions, 2)
	assert.Equal(t, "2024-01-01", sessions[0].Bucket)
	assert.Equal(t, 3, sessions[0].RunningTotal)
	assert.Equal(t, "2024-01-02", sessions[1].Bucket)
	assert.Equal(t, 5, sessions[1].RunningTotal)
}

func TestRunningTotalsIndependentPerCategory(t *testing.T) {
	rows := EventRows{
		Sessions:  []Row{{CreatedAt: ts(t, "2024-01-01T10:00:00Z"), Count: intp(3)}},
		Questions: []Row{{CreatedAt: ts(t, "2024-01-01T10:00:00Z"), Count: intp(7)}},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))

	sessions := categoryPoints(res.ByDate.Points, CategorySessions)
	questions := categoryPoints(res.ByDate.Points, CategoryQuestions)
	require.Len(t, sessions, 1)
	require.Len(t, questions, 1)
	assert.Equal(t, 3, sessions[0].RunningTotal)
	assert.Equal(t, 7, questions[0].RunningTotal)
}

func TestDefaultCountIsOne(t *testing.T) {
	rows := EventRows{
		Sessions: []Row{{CreatedAt: ts(t, "2024-01-01T10:00:00Z")}},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))

	sessions := categoryPoints(res.ByDate.Points, CategorySessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Count)

	// Monday 2024-01-01 lands in weekday bucket 0 with the same single count.
	weekday := categoryPoints(res.ByWeekday.Points, CategorySessions)
	require.Len(t, weekday, 1)
	assert.Equal(t, "0", weekday[0].Bucket)
	assert.Equal(t, 1, weekday[0].Count)

	hour := categoryPoints(res.ByHour.Points, CategorySessions)
	require.Len(t, hour, 1)
	assert.Equal(t, "10", hour[0].Bucket)
	assert.Equal(t, 1, hour[0].Count)
}

func TestYAxisFloor(t *testing.T) {
	res := Aggregate(EventRows{}, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))

	for _, cat := range Categories {
		assert.Equal(t, 5, res.ByDate.Max[cat])
		assert.Equal(t, 5, res.ByWeekday.Max[cat])
		assert.Equal(t, 5, res.ByHour.Max[cat])
	}
	assert.Empty(t, res.ByDate.Points)
	assert.Empty(t, res.EarliestDate)
}

func TestYAxisRoundsUpToMultipleOfFive(t *testing.T) {
	rows := EventRows{
		Assistants: []Row{{CreatedAt: ts(t, "2024-01-01T10:00:00Z"), Count: intp(11)}},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))

	assert.Equal(t, 15, res.ByDate.Max[CategoryAssistants])
	assert.Equal(t, 5, res.ByDate.Max[CategorySessions], "empty categories keep the floor")
}

func TestAggregateIdempotent(t *testing.T) {
	rows := EventRows{
		Sessions: []Row{
			{CreatedAt: ts(t, "2024-01-01T10:00:00Z"), Count: intp(3)},
			{CreatedAt: ts(t, "2024-01-02T11:00:00Z")},
		},
		Questions: []Row{{CreatedAt: ts(t, "2024-01-01T23:30:00Z")}},
	}
	tf := timeframe(t, "2024-01-01T00:00:00Z", "2024-01-03T00:00:00Z")

	first := Aggregate(rows, tf)
	second := Aggregate(rows, tf)

	assert.Equal(t, first, second)
}

func TestRowsWithoutTimestampSkipped(t *testing.T) {
	rows := EventRows{
		Sessions: []Row{
			{},
			{CreatedAt: ts(t, "2024-01-01T10:00:00Z")},
		},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))

	sessions := categoryPoints(res.ByDate.Points, CategorySessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Count)
}

func TestBucketingRespectsLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:30 UTC on Jan 1 is already Jan 2 in Berlin.
	rows := EventRows{
		Sessions: []Row{{CreatedAt: ts(t, "2024-01-01T23:30:00Z")}},
	}
	tf := Timeframe{
		Start:    ts(t, "2024-01-01T00:00:00Z"),
		End:      ts(t, "2024-01-03T00:00:00Z"),
		Location: berlin,
	}

	res := Aggregate(rows, tf)

	sessions := categoryPoints(res.ByDate.Points, CategorySessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "2024-01-02", sessions[0].Bucket)
	assert.Equal(t, "2024-01-02", res.EarliestDate)

	hour := categoryPoints(res.ByHour.Points, CategorySessions)
	require.Len(t, hour, 1)
	assert.Equal(t, "0", hour[0].Bucket)
}

func TestWeekdayConvention(t *testing.T) {
	// 2024-01-07 is a Sunday; ISO convention puts it in bucket 6.
	rows := EventRows{
		Sessions: []Row{{CreatedAt: ts(t, "2024-01-07T12:00:00Z")}},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-08T00:00:00Z"))

	weekday := categoryPoints(res.ByWeekday.Points, CategorySessions)
	require.Len(t, weekday, 1)
	assert.Equal(t, "6", weekday[0].Bucket)
}

func TestNumericBucketOrdering(t *testing.T) {
	rows := EventRows{
		Sessions: []Row{
			{CreatedAt: ts(t, "2024-01-01T02:00:00Z")},
			{CreatedAt: ts(t, "2024-01-01T10:00:00Z")},
			{CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
		},
	}

	res := Aggregate(rows, timeframe(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))

	hours := categoryPoints(res.ByHour.Points, CategorySessions)
	require.Len(t, hours, 3)
	assert.Equal(t, "2", hours[0].Bucket)
	assert.Equal(t, "9", hours[1].Bucket, "hour buckets sort numerically, not lexicographically")
	assert.Equal(t, "10", hours[2].Bucket)
}

func TestEarliestDateAcrossCategories(t *testing.T) {
	rows := EventRows{
		Sessions:   []Row{{CreatedAt: ts(t, "2024-02-10T10:00:00Z")}},
		Questions:  []Row{{CreatedAt: ts(t, "2024-01-05T10:00:00Z")}},
		Assistants: []Row{{CreatedAt: ts(t, "2024-03-01T10:00:00Z")}},
	}

	// The backend returned rows before the requested window start; the
	// earliest date must come from the data, not the request.
	res := Aggregate(rows, timeframe(t, "2024-02-01T00:00:00Z", "2024-03-02T00:00:00Z"))

	assert.Equal(t, "2024-01-05", res.EarliestDate)
}
