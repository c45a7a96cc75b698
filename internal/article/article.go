// Package article holds the paper records flowing through the pipeline and
// the dedup/ingestion rules applied to raw search hits.
package article

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/cursor"
)

// RawHit is one entry as returned by the search API, before validation.
type RawHit struct {
	Title    string
	Updated  time.Time
	Authors  []string
	Link     string
	Abstract string
}

// Record is a validated, deduplicated paper. ID is derived from the title and
// serves as the dedup key; the same paper returned by several category
// queries collapses to one record.
type Record struct {
	ID        string
	Title     string
	Authors   []string
	Abstract  string
	Link      string
	Published time.Time
}

// Drop records an article removed from the working set by one pipeline
// stage, with the reason it was removed.
type Drop struct {
	ID     string
	Stage  string
	Reason string
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeTitle lower-cases the title and collapses whitespace and
// punctuation runs into single underscores.
func NormalizeTitle(title string) string {
	id := nonWord.ReplaceAllString(strings.ToLower(title), "_")
	return strings.Trim(id, "_")
}

// Ingest merges raw hits into a map keyed by normalized title. Hits updated
// before cursorDate are excluded; the boundary is inclusive, so a paper
// updated exactly on the watermark date is kept. Malformed hits (missing
// title, link or timestamp) are silently rejected at this boundary. On key
// collision the later hit wins.
func Ingest(hits []RawHit, cursorDate time.Time) map[string]Record {
	cursorDate = cursor.Truncate(cursorDate)
	records := make(map[string]Record)

	for _, hit := range hits {
		title := strings.Join(strings.Fields(hit.Title), " ")
		if title == "" || hit.Link == "" || hit.Updated.IsZero() {
			continue
		}
		if cursor.Truncate(hit.Updated).Before(cursorDate) {
			continue
		}

		id := NormalizeTitle(title)
		if id == "" {
			continue
		}
		records[id] = Record{
			ID:        id,
			Title:     title,
			Authors:   hit.Authors,
			Abstract:  strings.TrimSpace(hit.Abstract),
			Link:      hit.Link,
			Published: hit.Updated,
		}
	}
	return records
}

// Sorted returns the records ordered by ascending publication date. Ties
// break on ID so the order is deterministic.
func Sorted(records map[string]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Published.Equal(out[j].Published) {
			return out[i].ID < out[j].ID
		}
		return out[i].Published.Before(out[j].Published)
	})
	return out
}
