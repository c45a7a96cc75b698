package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/article"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/download"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/notify"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/query"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/summarizer"
)

type fakeSearcher struct {
	hits  []article.RawHit
	err   error
	calls int
}

func (s *fakeSearcher) Search(_ context.Context, _ query.CategoryQuery, _ int) ([]article.RawHit, error) {
	s.calls++
	return s.hits, s.err
}

type fakeFetcher struct {
	drop   string
	called bool

	// cancel, when set, is invoked during Fetch to simulate an interrupt
	// arriving while downloads are in flight.
	cancel context.CancelFunc
}

func (f *fakeFetcher) Fetch(_ context.Context, records map[string]article.Record, _ *download.Store) []article.Drop {
	f.called = true
	if f.cancel != nil {
		f.cancel()
		return nil
	}
	if f.drop != "" {
		delete(records, f.drop)
		return []article.Drop{{ID: f.drop, Stage: "download", Reason: "http 404"}}
	}
	return nil
}

type fakeSummarizer struct {
	called bool
}

func (s *fakeSummarizer) Run(_ context.Context, records map[string]article.Record, _ *download.Store) (map[string]summarizer.Summary, []article.Drop) {
	s.called = true
	summaries := make(map[string]summarizer.Summary)
	for id := range records {
		summaries[id] = summarizer.Summary{ArticleID: id, Text: "summary of " + id}
	}
	return summaries, nil
}

type fakeChannel struct {
	name   string
	err    error
	digest *notify.Digest
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Deliver(_ context.Context, d *notify.Digest) error {
	c.digest = d
	return c.err
}

type memCursor struct {
	date  time.Time
	saved bool
}

func (c *memCursor) Load() (time.Time, error) { return c.date, nil }

func (c *memCursor) Save(date time.Time) error {
	c.date = date
	c.saved = true
	return nil
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testHits() []article.RawHit {
	return []article.RawHit{
		{
			Title:    "Sparse Attention at Scale",
			Updated:  date("2024-01-02"),
			Authors:  []string{"A. Author"},
			Link:     "http://arxiv.org/abs/2401.00001",
			Abstract: "We study sparse attention.",
		},
		{
			Title:    "An Older Paper",
			Updated:  date("2023-12-31"),
			Authors:  []string{"B. Author"},
			Link:     "http://arxiv.org/abs/2312.00001",
			Abstract: "Before the watermark.",
		},
	}
}

func newTestPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	if deps.Keywords == nil {
		deps.Keywords = query.Expression{{"sparse", "attention"}}
	}
	if deps.Categories == nil {
		deps.Categories = []string{"cs.LG"}
	}
	if deps.MaxResults == 0 {
		deps.MaxResults = 50
	}
	p := New(deps)
	p.newStore = func() (*download.Store, error) {
		return download.NewStoreAt(t.TempDir())
	}
	p.now = func() time.Time { return date("2024-01-03") }
	return p
}

func TestRunDeliversNewArticlesAndAdvancesCursor(t *testing.T) {
	cur := &memCursor{date: date("2024-01-01")}
	ch := &fakeChannel{name: "stdout"}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    &fakeFetcher{},
		Summarizer: &fakeSummarizer{},
		Channels:   []notify.Channel{ch},
		Cursor:     cur,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateDone {
		t.Errorf("state = %s, want %s", report.State, StateDone)
	}
	if report.Found != 1 {
		t.Errorf("found = %d, want 1 (older paper filtered by watermark)", report.Found)
	}
	if report.Notified != 1 {
		t.Errorf("notified = %d, want 1", report.Notified)
	}
	if ch.digest == nil {
		t.Fatal("channel never received a digest")
	}
	if len(ch.digest.Units) != 1 {
		t.Fatalf("digest units = %d, want 1", len(ch.digest.Units))
	}
	if !strings.Contains(ch.digest.Header(), "We found 1 new papers") {
		t.Errorf("header missing count: %q", ch.digest.Header())
	}
	if !cur.saved || !cur.date.Equal(date("2024-01-03")) {
		t.Errorf("cursor = %v (saved=%v), want run start 2024-01-03", cur.date, cur.saved)
	}
}

func TestRunWithNothingNewSkipsRemainingStages(t *testing.T) {
	cur := &memCursor{date: date("2024-02-01")}
	fetcher := &fakeFetcher{}
	summ := &fakeSummarizer{}
	ch := &fakeChannel{name: "stdout"}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    fetcher,
		Summarizer: summ,
		Channels:   []notify.Channel{ch},
		Cursor:     cur,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateDone || report.Found != 0 {
		t.Errorf("state = %s, found = %d, want done with 0", report.State, report.Found)
	}
	if fetcher.called || summ.called || ch.digest != nil {
		t.Error("downstream stages ran despite empty working set")
	}
	if cur.saved {
		t.Error("cursor advanced on an empty run")
	}
}

func TestRunSearchFailureIsFatal(t *testing.T) {
	cur := &memCursor{date: date("2024-01-01")}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{err: errors.New("503 slow down")},
		Fetcher:    &fakeFetcher{},
		Summarizer: &fakeSummarizer{},
		Channels:   []notify.Channel{&fakeChannel{name: "stdout"}},
		Cursor:     cur,
	})

	report, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected search failure to abort the run")
	}
	if report.State != StateFailed {
		t.Errorf("state = %s, want %s", report.State, StateFailed)
	}
	if cur.saved {
		t.Error("cursor advanced after a failed run")
	}
}

func TestRunDroppedArticleExcludedFromDigest(t *testing.T) {
	cur := &memCursor{date: date("2023-12-01")}
	ch := &fakeChannel{name: "stdout"}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    &fakeFetcher{drop: "an_older_paper"},
		Summarizer: &fakeSummarizer{},
		Channels:   []notify.Channel{ch},
		Cursor:     cur,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Found != 2 {
		t.Errorf("found = %d, want 2", report.Found)
	}
	if report.Downloaded != 1 {
		t.Errorf("downloaded = %d, want 1 after drop", report.Downloaded)
	}
	if len(report.Drops) != 1 || report.Drops[0].Stage != "download" {
		t.Errorf("drops = %+v, want one download drop", report.Drops)
	}
	if len(ch.digest.Units) != 1 || ch.digest.Units[0].ArticleID != "sparse_attention_at_scale" {
		t.Errorf("digest units = %+v, want only the surviving article", ch.digest.Units)
	}
	if !cur.saved {
		t.Error("per-article drops must not block the cursor advance")
	}
}

func TestRunAllChannelsFailedIsFatal(t *testing.T) {
	cur := &memCursor{date: date("2024-01-01")}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    &fakeFetcher{},
		Summarizer: &fakeSummarizer{},
		Channels: []notify.Channel{
			&fakeChannel{name: "email", err: errors.New("smtp down")},
			&fakeChannel{name: "telegram", err: errors.New("api down")},
		},
		Cursor: cur,
	})

	report, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error when every channel fails")
	}
	if report.State != StateFailed {
		t.Errorf("state = %s, want %s", report.State, StateFailed)
	}
	if cur.saved {
		t.Error("cursor advanced although nothing was delivered")
	}
}

func TestRunPartialDeliveryStillAdvancesCursor(t *testing.T) {
	cur := &memCursor{date: date("2024-01-01")}
	partial := &notify.DeliveryError{
		Channel:   "email",
		Delivered: 1,
		Failed:    []notify.RecipientError{{Recipient: "b@example.com", Err: errors.New("mailbox full")}},
	}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    &fakeFetcher{},
		Summarizer: &fakeSummarizer{},
		Channels:   []notify.Channel{&fakeChannel{name: "email", err: partial}},
		Cursor:     cur,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.PartialDeliveries) != 1 {
		t.Errorf("partial deliveries = %d, want 1", len(report.PartialDeliveries))
	}
	if !cur.saved {
		t.Error("cursor must advance when at least one recipient was reached")
	}
}

func TestRunCanceledContextIsFatal(t *testing.T) {
	cur := &memCursor{date: date("2024-01-01")}
	ch := &fakeChannel{name: "stdout"}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    &fakeFetcher{},
		Summarizer: &fakeSummarizer{},
		Channels:   []notify.Channel{ch},
		Cursor:     cur,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if report.State != StateFailed {
		t.Errorf("state = %s, want %s", report.State, StateFailed)
	}
	if ch.digest != nil {
		t.Error("no digest may be delivered on an interrupted run")
	}
	if cur.saved {
		t.Error("cursor advanced past undelivered work")
	}
}

func TestRunInterruptDuringDownloadHoldsCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cur := &memCursor{date: date("2024-01-01")}
	summ := &fakeSummarizer{}
	ch := &fakeChannel{name: "stdout"}
	p := newTestPipeline(t, Deps{
		Searcher:   &fakeSearcher{hits: testHits()},
		Fetcher:    &fakeFetcher{cancel: cancel},
		Summarizer: summ,
		Channels:   []notify.Channel{ch},
		Cursor:     cur,
	})

	report, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if report.State != StateFailed {
		t.Errorf("state = %s, want %s (cleanup must not mask the failure)", report.State, StateFailed)
	}
	if summ.called || ch.digest != nil {
		t.Error("later stages ran after the interrupt")
	}
	if cur.saved {
		t.Error("cursor advanced past undelivered work")
	}
}

func TestRunOneCategoryPerQuery(t *testing.T) {
	searcher := &fakeSearcher{hits: nil}
	p := newTestPipeline(t, Deps{
		Categories: []string{"cs.LG", "stat.ML", "cs.CL"},
		Searcher:   searcher,
		Fetcher:    &fakeFetcher{},
		Summarizer: &fakeSummarizer{},
		Channels:   []notify.Channel{&fakeChannel{name: "stdout"}},
		Cursor:     &memCursor{date: date("2024-01-01")},
	})

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if searcher.calls != 3 {
		t.Errorf("search calls = %d, want one per category", searcher.calls)
	}
}
