// Package download fetches full-text PDFs for the articles in the working
// set. Transport failures never abort the run: the affected article is
// dropped and the rest proceed.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/article"
)

const stageName = "download"

// Downloader retrieves one artifact per article, sequentially, with a
// politeness delay between requests per arXiv's rate guidelines.
type Downloader struct {
	client *http.Client
	delay  time.Duration
	logger *slog.Logger
}

func New(delay time.Duration, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client: &http.Client{Timeout: 60 * time.Second},
		delay:  delay,
		logger: logger,
	}
}

// FullTextURL translates an abstract-page link into the corresponding
// full-text PDF link.
func FullTextURL(link string) string {
	return strings.Replace(link, "/abs/", "/pdf/", 1)
}

// Fetch downloads the artifact for every article not already in the store.
// Articles whose download fails are removed from records and reported as
// drops; the error never propagates.
func (d *Downloader) Fetch(ctx context.Context, records map[string]article.Record, store *Store) []article.Drop {
	var drops []article.Drop

	ordered := article.Sorted(records)
	for i, rec := range ordered {
		if store.Has(rec.ID) {
			continue
		}

		if err := d.fetchOne(ctx, rec, store); err != nil {
			// Cancellation is not an article failure: leave the working
			// set intact and let the caller abort the run.
			if ctx.Err() != nil {
				return drops
			}
			d.logger.Warn("dropping article after failed download", "id", rec.ID, "error", err)
			delete(records, rec.ID)
			drops = append(drops, article.Drop{ID: rec.ID, Stage: stageName, Reason: err.Error()})
		}

		if d.delay > 0 && i < len(ordered)-1 {
			select {
			case <-ctx.Done():
				return drops
			case <-time.After(d.delay):
			}
		}
	}
	return drops
}

func (d *Downloader) fetchOne(ctx context.Context, rec article.Record, store *Store) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, FullTextURL(rec.Link), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	path := store.Path(rec.ID)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close artifact: %w", err)
	}
	return nil
}
