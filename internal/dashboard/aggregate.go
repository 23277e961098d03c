package dashboard

import (
	"time"

	"github.com/gosuda/pulse/internal/domain"
)

// DefaultDisplayLimit caps the overdue and urgent lists.
const DefaultDisplayLimit = 5

type Counts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// Total returns the number of classified tasks.
func (c Counts) Total() int {
	return c.Pending + c.InProgress + c.Completed
}

// ChartEntry is one slice of a pie or bar chart.
type ChartEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Summary is the dashboard view over a set of tasks.
type Summary struct {
	Counts         Counts                  `json:"counts"`
	PriorityCounts map[domain.Priority]int `json:"priority_counts"`
	Overdue        []*domain.Task          `json:"overdue"`
	OverdueTotal   int                     `json:"overdue_total"`
	Urgent         []*domain.Task          `json:"urgent"`
	UrgentTotal    int                     `json:"urgent_total"`
	StatusChart    []ChartEntry            `json:"status_chart"`
	PriorityChart  []ChartEntry            `json:"priority_chart"`
	GeneratedAt    time.Time               `json:"generated_at"`
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Overdue reports whether a task's due date falls before the start of now's day.
// A task due at any time today is not overdue.
func Overdue(task *domain.Task, now time.Time) bool {
	if task.DueDate == nil {
		return false
	}
	return task.DueDate.Before(StartOfDay(now))
}

// Aggregate classifies every task with the role map and derives the summary.
// Overdue and urgent lists only consider non-completed tasks, keep input
// order and are cut at limit; a non-positive limit uses DefaultDisplayLimit.
// Projects missing from roles classify every task as pending.
func Aggregate(tasks []*domain.Task, roles domain.RoleMap, now time.Time, limit int) *Summary {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}

	s := &Summary{
		PriorityCounts: make(map[domain.Priority]int, len(domain.Priorities)),
		Overdue:        make([]*domain.Task, 0, limit),
		Urgent:         make([]*domain.Task, 0, limit),
		GeneratedAt:    now,
	}

	for _, t := range tasks {
		if t == nil {
			continue
		}

		bucket := Classify(t, roles[t.ProjectID])
		switch bucket {
		case domain.BucketCompleted:
			s.Counts.Completed++
			continue
		case domain.BucketInProgress:
			s.Counts.InProgress++
		case domain.BucketPending:
			s.Counts.Pending++
		}

		s.PriorityCounts[t.Priority]++

		if Overdue(t, now) {
			s.OverdueTotal++
			if len(s.Overdue) < limit {
				s.Overdue = append(s.Overdue, t)
			}
		}
		if t.Priority.Pressing() {
			s.UrgentTotal++
			if len(s.Urgent) < limit {
				s.Urgent = append(s.Urgent, t)
			}
		}
	}

	s.StatusChart = statusChart(s.Counts)
	s.PriorityChart = priorityChart(s.PriorityCounts)

	return s
}

func statusChart(c Counts) []ChartEntry {
	entries := []ChartEntry{
		{Key: string(domain.BucketPending), Label: domain.BucketPending.Label(), Value: c.Pending},
		{Key: string(domain.BucketInProgress), Label: domain.BucketInProgress.Label(), Value: c.InProgress},
		{Key: string(domain.BucketCompleted), Label: domain.BucketCompleted.Label(), Value: c.Completed},
	}
	return nonZero(entries)
}

func priorityChart(counts map[domain.Priority]int) []ChartEntry {
	entries := make([]ChartEntry, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		entries = append(entries, ChartEntry{Key: string(p), Label: p.Label(), Value: counts[p]})
	}
	return nonZero(entries)
}

func nonZero(entries []ChartEntry) []ChartEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Value != 0 {
			out = append(out, e)
		}
	}
	return out
}
