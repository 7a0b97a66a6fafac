package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Status summarises how a source fared in a cycle.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial" // some postings stored, but the source or the store failed
	StatusFailed  Status = "failed"
)

// SourceReport is the outcome of one source in one cycle.
type SourceReport struct {
	Source   string
	Status   Status
	Scraped  int
	Inserted int
	Updated  int
	Rejected int // failed validation
	Failed   int // store errors
	Duration time.Duration
	Err      string
}

// Report is the outcome of one cycle. Sources keep registry order.
type Report struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Sources   []SourceReport
}

// Totals sums the counters of every source.
func (r *Report) Totals() SourceReport {
	t := SourceReport{Source: "TOTAL", Duration: r.Duration, Status: StatusOK}
	for _, s := range r.Sources {
		t.Scraped += s.Scraped
		t.Inserted += s.Inserted
		t.Updated += s.Updated
		t.Rejected += s.Rejected
		t.Failed += s.Failed
	}
	if n := r.FailedSources(); n == len(r.Sources) && n > 0 {
		t.Status = StatusFailed
	} else if n > 0 {
		t.Status = StatusPartial
	}
	return t
}

// FailedSources counts sources that did not finish ok.
func (r *Report) FailedSources() int {
	n := 0
	for _, s := range r.Sources {
		if s.Status != StatusOK {
			n++
		}
	}
	return n
}

var tableHeader = []string{"SOURCE", "STATUS", "SCRAPED", "INSERTED", "UPDATED", "REJECTED", "FAILED", "DURATION", "ERROR"}

const maxErrWidth = 60

// Table renders the report as an aligned text table, one row per source and
// a total row. Widths are measured in terminal cells.
func (r *Report) Table() string {
	rows := [][]string{tableHeader}
	for _, s := range r.Sources {
		rows = append(rows, row(s))
	}
	rows = append(rows, row(r.Totals()))

	widths := make([]int, len(tableHeader))
	for _, cells := range rows {
		for i, c := range cells {
			if w := runewidth.StringWidth(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for _, cells := range rows {
		var line strings.Builder
		for i, c := range cells {
			if i < len(cells)-1 {
				c = runewidth.FillRight(c, widths[i]) + "  "
			}
			line.WriteString(c)
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func row(s SourceReport) []string {
	return []string{
		s.Source,
		string(s.Status),
		fmt.Sprint(s.Scraped),
		fmt.Sprint(s.Inserted),
		fmt.Sprint(s.Updated),
		fmt.Sprint(s.Rejected),
		fmt.Sprint(s.Failed),
		s.Duration.Round(time.Millisecond).String(),
		runewidth.Truncate(s.Err, maxErrWidth, "…"),
	}
}
