package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connecta/ingest-service/internal/events"
	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/model"
	"connecta/ingest-service/internal/orchestrator"
	"connecta/ingest-service/internal/ratelimit"
	"connecta/ingest-service/internal/scraper"
	"connecta/ingest-service/internal/store"
)

type fakeScraper struct {
	name     string
	postings []model.RawPosting
	err      error
	block    bool // wait for ctx
	panics   bool
}

func (f *fakeScraper) Name() string { return f.name }

func (f *fakeScraper) Scrape(ctx context.Context) ([]model.RawPosting, error) {
	if f.panics {
		panic("selector table missing")
	}
	if f.block {
		<-ctx.Done()
		return nil, &scraper.TransportError{URL: "https://" + f.name, Err: ctx.Err()}
	}
	return f.postings, f.err
}

func postings(source string, n int) []model.RawPosting {
	out := make([]model.RawPosting, n)
	for i := range out {
		out[i] = model.RawPosting{
			Title:       fmt.Sprintf("Go Developer %d", i),
			Company:     "Acme",
			Description: "Build and operate backend services in Go.",
			URL:         fmt.Sprintf("https://%s.example/jobs/%d", source, i),
		}
	}
	return out
}

type downStore struct{ *store.Memory }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type heldLock struct{}

func (heldLock) Acquire(context.Context) (func(context.Context) error, error) {
	return nil, events.ErrLockHeld
}

type countingLock struct{ acquired, released int }

func (l *countingLock) Acquire(context.Context) (func(context.Context) error, error) {
	l.acquired++
	return func(context.Context) error { l.released++; return nil }, nil
}

func newOrchestrator(mem *store.Memory, lock orchestrator.Locker, scrapers ...scraper.Scraper) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{
		Scrapers:      scrapers,
		Queue:         ratelimit.New(2, 5*time.Millisecond),
		Ingester:      ingest.NewIngester(mem, nil, ingest.NewNormalizer(14*24*time.Hour)),
		Store:         mem,
		Lock:          lock,
		ScrapeTimeout: time.Second,
	})
}

func TestRunCycle_FailingSourceIsIsolated(t *testing.T) {
	mem := store.NewMemory()
	o := newOrchestrator(mem, nil,
		&fakeScraper{name: "broken", err: &scraper.TransportError{URL: "https://broken", StatusCode: 503, Err: scraper.ErrUnexpectedStatusCode}},
		&fakeScraper{name: "healthy", postings: postings("healthy", 3)},
		&fakeScraper{name: "panicky", panics: true},
	)

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Sources, 3)

	broken, healthy, panicky := report.Sources[0], report.Sources[1], report.Sources[2]
	assert.Equal(t, orchestrator.StatusFailed, broken.Status)
	assert.Contains(t, broken.Err, "503")

	assert.Equal(t, orchestrator.StatusOK, healthy.Status)
	assert.Equal(t, 3, healthy.Scraped)
	assert.Equal(t, 3, healthy.Inserted)

	assert.Equal(t, orchestrator.StatusFailed, panicky.Status)
	assert.Contains(t, panicky.Err, "panicked")

	gigs, err := mem.List(context.Background(), model.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, gigs, 3)
	assert.Equal(t, 2, report.FailedSources())
}

func TestRunCycle_SecondCycleUpdatesInPlace(t *testing.T) {
	mem := store.NewMemory()
	o := newOrchestrator(mem, nil, &fakeScraper{name: "wwr", postings: postings("wwr", 4)})

	_, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Sources[0].Inserted)
	assert.Equal(t, 4, report.Sources[0].Updated)
	gigs, _ := mem.List(context.Background(), model.ListFilter{})
	assert.Len(t, gigs, 4)
}

func TestRunCycle_PartialAndRejected(t *testing.T) {
	mem := store.NewMemory()
	ps := postings("wwr", 2)
	ps = append(ps, model.RawPosting{Title: "No company", Description: "Long enough description here.", URL: "https://wwr.example/x"})

	o := newOrchestrator(mem, nil, &fakeScraper{
		name:     "wwr",
		postings: ps,
		err:      &scraper.ParseError{Source: "wwr", Err: errors.New("page 2 layout changed")},
	})

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	sr := report.Sources[0]
	assert.Equal(t, orchestrator.StatusPartial, sr.Status)
	assert.Equal(t, 3, sr.Scraped)
	assert.Equal(t, 2, sr.Inserted)
	assert.Equal(t, 1, sr.Rejected)
	assert.Contains(t, sr.Err, "layout changed")
}

func TestRunCycle_PerSourceTimeout(t *testing.T) {
	mem := store.NewMemory()
	o := orchestrator.New(orchestrator.Options{
		Scrapers:      []scraper.Scraper{&fakeScraper{name: "slow", block: true}, &fakeScraper{name: "fast", postings: postings("fast", 1)}},
		Queue:         ratelimit.New(2, 0),
		Ingester:      ingest.NewIngester(mem, nil, ingest.NewNormalizer(0)),
		Store:         mem,
		ScrapeTimeout: 30 * time.Millisecond,
	})

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusFailed, report.Sources[0].Status)
	assert.Contains(t, report.Sources[0].Err, "deadline exceeded")
	assert.Equal(t, orchestrator.StatusOK, report.Sources[1].Status)
}

func TestRunCycle_StoreDown(t *testing.T) {
	mem := store.NewMemory()
	o := orchestrator.New(orchestrator.Options{
		Scrapers: []scraper.Scraper{&fakeScraper{name: "wwr"}},
		Queue:    ratelimit.New(1, 0),
		Ingester: ingest.NewIngester(mem, nil, ingest.NewNormalizer(0)),
		Store:    downStore{mem},
	})

	_, err := o.RunCycle(context.Background())
	assert.ErrorContains(t, err, "store unavailable")
}

func TestRunCycle_Lock(t *testing.T) {
	mem := store.NewMemory()

	_, err := newOrchestrator(mem, heldLock{}, &fakeScraper{name: "wwr"}).RunCycle(context.Background())
	assert.ErrorIs(t, err, orchestrator.ErrCycleInProgress)

	lock := &countingLock{}
	_, err = newOrchestrator(mem, lock, &fakeScraper{name: "wwr"}).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}

func TestReport_Table(t *testing.T) {
	r := &orchestrator.Report{
		Duration: 1500 * time.Millisecond,
		Sources: []orchestrator.SourceReport{
			{Source: "weworkremotely", Status: orchestrator.StatusOK, Scraped: 12, Inserted: 10, Updated: 2, Duration: time.Second},
			{Source: "jobberman", Status: orchestrator.StatusFailed, Err: "fetch https://jobberman: status 503"},
		},
	}

	table := r.Table()
	lines := strings.Split(strings.TrimSuffix(table, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SOURCE"))
	assert.Contains(t, lines[1], "weworkremotely")
	assert.Contains(t, lines[2], "status 503")
	assert.True(t, strings.HasPrefix(lines[3], "TOTAL"))
	assert.Contains(t, lines[3], "partial")

	// Columns line up: STATUS starts at the same offset on every row.
	col := strings.Index(lines[0], "STATUS")
	assert.Equal(t, "ok", lines[1][col:col+2])
	assert.Equal(t, "failed", lines[2][col:col+6])
}
