package domain

import "sort"

// statusRank is the display priority of each status, most urgent first.
// Done tasks always sink to the bottom regardless of their order value.
var statusRank = map[Status]int{
	StatusWorking: 0,
	StatusPlanned: 1,
	StatusThought: 2,
	StatusDone:    3,
}

// OrderForDisplay returns a new slice sorted for presentation: partitioned by
// status priority (working, planned, thought, done), then by order ascending
// within each partition. The sort is stable, so tasks sharing a status and
// order keep their input order. The input slice is never mutated.
func OrderForDisplay(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := statusRank[out[i].Status], statusRank[out[j].Status]; ri != rj {
			return ri < rj
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// StatusCounts holds per-status task counts plus the overall total.
type StatusCounts struct {
	Thought int `json:"thought"`
	Planned int `json:"planned"`
	Working int `json:"working"`
	Done    int `json:"done"`
	Total   int `json:"total"`
}

func (c *StatusCounts) add(s Status) {
	switch s {
	case StatusThought:
		c.Thought++
	case StatusPlanned:
		c.Planned++
	case StatusWorking:
		c.Working++
	case StatusDone:
		c.Done++
	}
	c.Total++
}

// CountByStatus tallies tasks per status in one linear pass. The store
// adapter guarantees every task carries a canonical status, so there is no
// error case here.
func CountByStatus(tasks []Task) StatusCounts {
	var counts StatusCounts
	for _, t := range tasks {
		counts.add(t.Status)
	}
	return counts
}

// DailyBucket is one calendar day's worth of status counts, carrying both a
// chart label and the sortable day key.
type DailyBucket struct {
	Label string `json:"label"`
	Date  string `json:"date"`
	StatusCounts
}

// AggregateByDay buckets tasks per calendar day across [start, end] inclusive.
// Every day in the range gets a bucket, pre-seeded with zero counts, so charts
// never have missing categories. Buckets are ordered ascending by date
// regardless of input order; tasks dated outside the range are ignored.
func AggregateByDay(tasks []Task, start, end Day) []DailyBucket {
	if end.Before(start) {
		start, end = end, start
	}
	n := DaysBetween(start, end) + 1
	buckets := make([]DailyBucket, n)
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		day := start.AddDays(i)
		buckets[i] = DailyBucket{Label: day.Label(), Date: day.Key()}
		index[day.Key()] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.Date]; ok {
			buckets[i].add(t.Status)
		}
	}
	return buckets
}

// DayRatio is the completion percentage for one day.
type DayRatio struct {
	Label       string  `json:"label"`
	Date        string  `json:"date"`
	DonePercent float64 `json:"donePercent"`
}

// DoneRatios projects daily buckets onto completion percentages. Days with no
// tasks report zero.
func DoneRatios(buckets []DailyBucket) []DayRatio {
	ratios := make([]DayRatio, len(buckets))
	for i, b := range buckets {
		r := DayRatio{Label: b.Label, Date: b.Date}
		if b.Total > 0 {
			r.DonePercent = float64(b.Done) / float64(b.Total) * 100
		}
		ratios[i] = r
	}
	return ratios
}
