// Package notify renders the run's results into channel-ready messages and
// delivers them over the configured channels.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/article"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/cursor"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/query"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/summarizer"
)

// Unit is one rendered, channel-agnostic message body for a single article.
type Unit struct {
	ArticleID string
	Title     string
	Summary   string
	Authors   []string
	Published time.Time
	Link      string
}

// Digest is the full result set of one run: a header describing the search,
// followed by units in ascending publication-date order.
type Digest struct {
	Keywords query.Expression
	Since    time.Time
	Until    time.Time
	Units    []Unit
}

// Channel delivers a digest to one notification backend.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, digest *Digest) error
}

// glyphs the downstream renderers cannot display, normalized to ASCII.
var glyphReplacer = strings.NewReplacer(
	"\U0001d716", "epsilon",
)

func sanitizeGlyphs(s string) string {
	return glyphReplacer.Replace(s)
}

// BuildDigest pairs each surviving article with its summary and orders the
// units by ascending publication date. Articles without a summary are left
// out; they were dropped upstream.
func BuildDigest(records map[string]article.Record, summaries map[string]summarizer.Summary, keywords query.Expression, since, until time.Time) *Digest {
	units := make([]Unit, 0, len(summaries))
	for _, rec := range article.Sorted(records) {
		sum, ok := summaries[rec.ID]
		if !ok {
			continue
		}
		units = append(units, Unit{
			ArticleID: rec.ID,
			Title:     sanitizeGlyphs(rec.Title),
			Summary:   sanitizeGlyphs(sum.Text),
			Authors:   rec.Authors,
			Published: rec.Published,
			Link:      rec.Link,
		})
	}
	return &Digest{
		Keywords: keywords,
		Since:    since,
		Until:    until,
		Units:    units,
	}
}

// Header states how many papers were found, for which keyword groups, and
// over which time period. It precedes the per-article units on every channel.
func (d *Digest) Header() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "We found %d new papers regarding the following topics:\n", len(d.Units))
	for _, group := range d.Keywords {
		sb.WriteString("- ")
		sb.WriteString(strings.Join(group, ", "))
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "Time period: %s until %s",
		d.Since.Format(cursor.DateFormat), d.Until.Format(cursor.DateFormat))
	return sb.String()
}

// Markdown renders the whole digest as a Markdown document, used for the
// email attachment and for channels that accept Markdown directly.
func (d *Digest) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# New Papers for %s\n\n", d.Keywords.String())
	sb.WriteString(d.Header())
	sb.WriteString("\n")
	for _, u := range d.Units {
		fmt.Fprintf(&sb, "\n## %s\n\n", u.Title)
		sb.WriteString(u.Summary)
		sb.WriteString("\n\n")
		if len(u.Authors) > 0 {
			fmt.Fprintf(&sb, "Authors: %s  \n", strings.Join(u.Authors, ", "))
		}
		fmt.Fprintf(&sb, "Date: %s, Link: <%s>\n", u.Published.Format(cursor.DateFormat), u.Link)
	}
	return sb.String()
}
