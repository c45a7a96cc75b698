// Package pipeline sequences one incremental run: search, download,
// summarize, notify, advance the watermark, clean up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/article"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/download"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/notify"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/query"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/summarizer"
)

// State names the stage the run is currently in.
type State string

const (
	StateIdle            State = "idle"
	StateSearching       State = "searching"
	StateDownloading     State = "downloading"
	StateSummarizing     State = "summarizing"
	StateNotifying       State = "notifying"
	StateAdvancingCursor State = "advancing_cursor"
	StateCleanup         State = "cleanup"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Searcher runs one compiled category query.
type Searcher interface {
	Search(ctx context.Context, cq query.CategoryQuery, maxResults int) ([]article.RawHit, error)
}

// Fetcher downloads artifacts for the working set, pruning failures.
type Fetcher interface {
	Fetch(ctx context.Context, records map[string]article.Record, store *download.Store) []article.Drop
}

// Summarizer produces one summary per surviving article.
type Summarizer interface {
	Run(ctx context.Context, records map[string]article.Record, store *download.Store) (map[string]summarizer.Summary, []article.Drop)
}

// CursorStore persists the watermark across runs.
type CursorStore interface {
	Load() (time.Time, error)
	Save(date time.Time) error
}

// Report is the user-visible outcome of one run.
type Report struct {
	State      State
	Found      int
	Downloaded int
	Summarized int
	Notified   int
	Drops      []article.Drop

	// PartialDeliveries lists channels that delivered some but not all of
	// their messages or recipients.
	PartialDeliveries []error
}

// Pipeline wires the stages together and owns the run-scoped state: the
// artifact store's lifetime and the cursor advancement policy.
type Pipeline struct {
	keywords    query.Expression
	categories  []string
	maxResults  int
	initialDate time.Time

	searcher   Searcher
	fetcher    Fetcher
	summarizer Summarizer
	channels   []notify.Channel
	cursor     CursorStore

	newStore func() (*download.Store, error)
	now      func() time.Time
	logger   *slog.Logger
}

type Deps struct {
	Keywords    query.Expression
	Categories  []string
	MaxResults  int
	InitialDate time.Time
	Searcher    Searcher
	Fetcher     Fetcher
	Summarizer  Summarizer
	Channels    []notify.Channel
	Cursor      CursorStore
	Logger      *slog.Logger
}

func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		keywords:    deps.Keywords,
		categories:  deps.Categories,
		maxResults:  deps.MaxResults,
		initialDate: deps.InitialDate,
		searcher:    deps.Searcher,
		fetcher:     deps.Fetcher,
		summarizer:  deps.Summarizer,
		channels:    deps.Channels,
		cursor:      deps.Cursor,
		newStore:    download.NewTempStore,
		now:         time.Now,
		logger:      logger,
	}
}

// Run executes the pipeline once. The watermark advances to the run's start
// date only after notification completed; any fatal error leaves it
// untouched so the next run retries the same window. Cancellation of ctx is
// fatal: an interrupted run must not advance the watermark past articles
// that were never delivered. Artifacts are removed unconditionally once
// downloading has begun.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{State: StateIdle}
	start := p.now()

	if err := interrupted(ctx, report); err != nil {
		return report, err
	}

	since, err := p.cursor.Load()
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	if since.IsZero() {
		since = p.initialDate
	}

	report.State = StateSearching
	p.logger.Info("searching", "since", since.Format("2006-01-02"), "categories", len(p.categories))

	var hits []article.RawHit
	for _, cq := range p.keywords.Encode(p.categories) {
		catHits, err := p.searcher.Search(ctx, cq, p.maxResults)
		if err != nil {
			report.State = StateFailed
			return report, fmt.Errorf("pipeline: search failed for category %s: %w", cq.Category, err)
		}
		hits = append(hits, catHits...)
	}

	records := article.Ingest(hits, since)
	report.Found = len(records)
	p.logger.Info("search finished", "hits", len(hits), "new_articles", len(records))

	if len(records) == 0 {
		// Nothing new: no artifacts, no cleanup, watermark stays put.
		report.State = StateDone
		return report, nil
	}

	if err := interrupted(ctx, report); err != nil {
		return report, err
	}

	store, err := p.newStore()
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	defer func() {
		// Artifacts are removed even when the run fails.
		if report.State != StateFailed {
			report.State = StateCleanup
		}
		if err := store.Cleanup(); err != nil {
			p.logger.Warn("artifact cleanup failed", "error", err)
		}
		if report.State == StateCleanup {
			report.State = StateDone
		}
	}()

	report.State = StateDownloading
	drops := p.fetcher.Fetch(ctx, records, store)
	report.Drops = append(report.Drops, drops...)
	report.Downloaded = len(records)
	p.logger.Info("download finished", "downloaded", report.Downloaded, "dropped", len(drops))

	if err := interrupted(ctx, report); err != nil {
		return report, err
	}

	report.State = StateSummarizing
	summaries, drops := p.summarizer.Run(ctx, records, store)
	report.Drops = append(report.Drops, drops...)
	report.Summarized = len(summaries)
	p.logger.Info("summarization finished", "summarized", report.Summarized, "dropped", len(drops))

	if err := interrupted(ctx, report); err != nil {
		return report, err
	}

	report.State = StateNotifying
	digest := notify.BuildDigest(records, summaries, p.keywords, since, start)
	delivered := 0
	var channelErrs []error
	for _, ch := range p.channels {
		err := ch.Deliver(ctx, digest)
		var de *notify.DeliveryError
		switch {
		case err == nil:
			delivered++
		case errors.As(err, &de) && de.Delivered > 0:
			// Some recipients got the digest; count the channel as
			// delivered but surface the partial failure.
			delivered++
			report.PartialDeliveries = append(report.PartialDeliveries, de)
			p.logger.Warn("partial delivery", "channel", ch.Name(), "error", de)
		default:
			channelErrs = append(channelErrs, fmt.Errorf("%s: %w", ch.Name(), err))
			p.logger.Error("channel delivery failed", "channel", ch.Name(), "error", err)
		}
	}
	if delivered == 0 && len(p.channels) > 0 {
		report.State = StateFailed
		return report, fmt.Errorf("pipeline: all channels failed: %v", errors.Join(channelErrs...))
	}
	report.Notified = len(digest.Units)

	if err := interrupted(ctx, report); err != nil {
		return report, err
	}

	report.State = StateAdvancingCursor
	if err := p.cursor.Save(start); err != nil {
		report.State = StateFailed
		return report, fmt.Errorf("pipeline: advance cursor: %w", err)
	}

	return report, nil
}

// interrupted marks the run failed when ctx has been canceled. Checked at
// every stage boundary so an interrupt never reaches the cursor advance.
func interrupted(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		report.State = StateFailed
		return fmt.Errorf("pipeline: run interrupted: %w", err)
	}
	return nil
}
