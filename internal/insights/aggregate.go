// Package insights turns raw timestamped usage events into chart-ready
// datasets bucketed by calendar date, weekday and hour of day, with running
// totals and fixed Y-axis maxima.
package insights

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/ldelacroix/conveyor/internal/metrics"
)

const (
	CategorySessions   = "sessions"
	CategoryAssistants = "assistants"
	CategoryQuestions  = "questions"
)

// Categories lists every event category in its fixed display order. All of
// them appear in the output even when absent from the input.
var Categories = []string{CategorySessions, CategoryAssistants, CategoryQuestions}

// Row is one raw event as returned by the backend. A nil Count contributes
// exactly 1; rows without a timestamp are skipped.
type Row struct {
	CreatedAt time.Time `json:"created_at"`
	Count     *int      `json:"count,omitempty"`
}

// EventRows holds the raw rows per category. Categories missing from the
// backend payload decode to empty slices, which aggregate to empty buckets
// rather than an error.
type EventRows struct {
	Sessions   []Row `json:"sessions"`
	Assistants []Row `json:"assistants"`
	Questions  []Row `json:"questions"`
}

func (e EventRows) byCategory() map[string][]Row {
	return map[string][]Row{
		CategorySessions:   e.Sessions,
		CategoryAssistants: e.Assistants,
		CategoryQuestions:  e.Questions,
	}
}

// Timeframe is the requested display window. Bucketing happens in Location,
// UTC when nil. The backend may return rows from before Start, which is why
// EarliestDate is computed from the data rather than from the request.
type Timeframe struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// Point is one flattened bucket entry. RunningTotal is only populated for
// the date dimension; it is the sum of Count over all of the category's
// buckets up to and including this one, in ascending key order.
type Point struct {
	Bucket       string `json:"bucket"`
	Category     string `json:"category"`
	Count        int    `json:"count"`
	RunningTotal int    `json:"running_total,omitempty"`
}

// Dataset is one chart dimension: sorted points plus a per-category Y-axis
// maximum, rounded up to the nearest multiple of 5 with a floor of 5.
type Dataset struct {
	Points []Point        `json:"points"`
	Max    map[string]int `json:"max"`
}

// Result carries the three aggregated dimensions and the earliest date for
// which any category has real data.
type Result struct {
	ByDate       Dataset `json:"by_date"`
	ByWeekday    Dataset `json:"by_weekday"`
	ByHour       Dataset `json:"by_hour"`
	EarliestDate string  `json:"earliest_date,omitempty"`
}

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type buckets struct {
	date    map[string]int
	weekday map[string]int
	hour    map[string]int
}

// Aggregate buckets the rows of every category by date, weekday and hour in
// a single pass per category. It is a pure function: identical inputs yield
// identical outputs and no state survives the call.
//
// Weekday buckets use the ISO-8601 convention, Monday=0 through Sunday=6.
func Aggregate(rows EventRows, tf Timeframe) Result {
	start := time.Now()
	defer func() { metrics.RecordAggregation(time.Since(start)) }()

	loc := tf.Location
	if loc == nil {
		loc = time.UTC
	}

	per := make(map[string]buckets, len(Categories))
	byCat := rows.byCategory()
	for _, cat := range Categories {
		b := buckets{
			date:    make(map[string]int),
			weekday: make(map[string]int),
			hour:    make(map[string]int),
		}
		for _, r := range byCat[cat] {
			if r.CreatedAt.IsZero() {
				continue
			}
			n := 1
			if r.Count != nil {
				n = *r.Count
			}
			t := r.CreatedAt.In(loc)
			b.date[t.Format("2006-01-02")] += n
			b.weekday[strconv.Itoa(isoWeekday(t))] += n
			b.hour[strconv.Itoa(t.Hour())] += n
		}
		per[cat] = b
	}

	res := Result{
		ByDate:    flattenDates(per),
		ByWeekday: flattenNumeric(per, func(b buckets) map[string]int { return b.weekday }),
		ByHour:    flattenNumeric(per, func(b buckets) map[string]int { return b.hour }),
	}
	res.EarliestDate = earliestDate(per, func(b buckets) map[string]int { return b.date })

	return res
}

// isoWeekday maps time.Weekday (Sunday=0) onto Monday=0 .. Sunday=6.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func flattenDates(per map[string]buckets) Dataset {
	ds := Dataset{Points: []Point{}, Max: axisMaxima(per, func(b buckets) map[string]int { return b.date })}

	keys := collectKeys(per, func(b buckets) map[string]int { return b.date })
	sort.Strings(keys)

	totals := make(map[string]int, len(Categories))
	for _, key := range keys {
		for _, cat := range Categories {
			count, ok := per[cat].date[key]
			if !ok {
				continue
			}
			totals[cat] += count
			ds.Points = append(ds.Points, Point{
				Bucket:       key,
				Category:     cat,
				Count:        count,
				RunningTotal: totals[cat],
			})
		}
	}

	return ds
}

func flattenNumeric(per map[string]buckets, pick func(buckets) map[string]int) Dataset {
	ds := Dataset{Points: []Point{}, Max: axisMaxima(per, pick)}

	keys := collectKeys(per, pick)
	sort.Slice(keys, func(i, k int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[k])
		return a < b
	})

	for _, key := range keys {
		for _, cat := range Categories {
			count, ok := pick(per[cat])[key]
			if !ok {
				continue
			}
			ds.Points = append(ds.Points, Point{Bucket: key, Category: cat, Count: count})
		}
	}

	return ds
}

func collectKeys(per map[string]buckets, pick func(buckets) map[string]int) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, cat := range Categories {
		for key := range pick(per[cat]) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	return keys
}

// axisMaxima computes a fixed Y-axis scale per category: the largest bucket
// count rounded up to the next multiple of 5. An empty category still gets
// the floor of 5 so the chart never degenerates to a zero-height axis.
func axisMaxima(per map[string]buckets, pick func(buckets) map[string]int) map[string]int {
	maxima := make(map[string]int, len(Categories))
	for _, cat := range Categories {
		max := 0
		for _, count := range pick(per[cat]) {
			if count > max {
				max = count
			}
		}
		scaled := (max + 4) / 5 * 5
		if scaled < 5 {
			scaled = 5
		}
		maxima[cat] = scaled
	}

	return maxima
}

// earliestDate finds the true minimum date across every category's date
// buckets. Only date-shaped keys participate; numeric weekday or hour keys
// can never leak in.
func earliestDate(per map[string]buckets, pick func(buckets) map[string]int) string {
	earliest := ""
	for _, cat := range Categories {
		for key := range pick(per[cat]) {
			if !dateKeyPattern.MatchString(key) {
				continue
			}
			if earliest == "" || key < earliest {
				earliest = key
			}
		}
	}

	return earliest
}
