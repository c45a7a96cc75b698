// Package summarizer turns downloaded artifacts into one-paragraph summaries
// via a language-model backend.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/article"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/download"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/extract"
)

const stageName = "summarize"

// Summary is the generated text for one article.
type Summary struct {
	ArticleID string
	Text      string
}

// Backend is a single-turn language-model completion capability.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ExtractFunc extracts up to maxPages pages of text from an artifact file.
type ExtractFunc func(path string, maxPages int) (string, error)

// Summarizer produces one summary per downloaded article. Articles whose
// extraction or completion fails are dropped from the working set; such
// failures never abort the run.
type Summarizer struct {
	backend     Backend
	preferences []string
	maxPages    int
	workers     int
	extractText ExtractFunc
	logger      *slog.Logger
}

func New(backend Backend, preferences []string, maxPages, workers int, logger *slog.Logger) *Summarizer {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		backend:     backend,
		preferences: preferences,
		maxPages:    maxPages,
		workers:     workers,
		extractText: extract.Text,
		logger:      logger,
	}
}

// Run summarizes every article that has an artifact in the store. Order of
// processing is immaterial; summaries carry their article id. Failed articles
// are removed from records and reported as drops.
func (s *Summarizer) Run(ctx context.Context, records map[string]article.Record, store *download.Store) (map[string]Summary, []article.Drop) {
	prefix := buildPromptPrefix(s.preferences)

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}

	var (
		mu        sync.Mutex
		summaries = make(map[string]Summary, len(ids))
		drops     []article.Drop
		wg        sync.WaitGroup
		sem       = make(chan struct{}, s.workers)
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := s.summarizeOne(ctx, prefix, store.Path(id))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Cancellation is not an article failure: keep the record
				// so the caller sees an interrupted run, not a drop.
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("dropping article after failed summarization", "id", id, "error", err)
				drops = append(drops, article.Drop{ID: id, Stage: stageName, Reason: err.Error()})
				return
			}
			summaries[id] = Summary{ArticleID: id, Text: text}
		}(id)
	}
	wg.Wait()

	for _, d := range drops {
		delete(records, d.ID)
	}
	return summaries, drops
}

func (s *Summarizer) summarizeOne(ctx context.Context, prefix, path string) (string, error) {
	text, err := s.extractText(path, s.maxPages)
	if err != nil {
		return "", err
	}

	answer, err := s.backend.Complete(ctx, prefix+text)
	if err != nil {
		return "", fmt.Errorf("summarizer: completion failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("summarizer: backend returned empty summary")
	}
	return answer, nil
}

// buildPromptPrefix composes the shared instruction prefix: optional reader
// preferences followed by the fixed task description. The paper text is
// appended per article.
func buildPromptPrefix(preferences []string) string {
	var sb strings.Builder
	if len(preferences) > 0 {
		sb.WriteString("You are talking to a researcher with the following preferences:\n")
		for _, pref := range preferences {
			sb.WriteString("- ")
			sb.WriteString(pref)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("What is the main idea and novelty of the following paper?\n")
	sb.WriteString("Please resume in a brief and concise manner in one paragraph.\n")
	sb.WriteString("Do not repeat the title and the authors of the paper.\n")
	if len(preferences) > 0 {
		sb.WriteString("Keep in mind what might be interesting for the researcher regarding his preferences.\n")
	}
	return sb.String()
}
