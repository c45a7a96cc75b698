// Package arxiv talks to the arXiv export API.
package arxiv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/article"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/query"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/retry"
)

const defaultBaseURL = "http://export.arxiv.org/api/query"

// Client queries the arXiv search endpoint. The response is an Atom feed,
// parsed with gofeed.
type Client struct {
	client      *http.Client
	baseURL     string
	retryConfig retry.Config
}

func NewClient() *Client {
	return &Client{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     defaultBaseURL,
		retryConfig: retry.DefaultConfig(),
	}
}

// Search runs one compiled category query and returns the raw hits, newest
// first. Server errors and rate limiting are retried with backoff; any other
// failure is returned as-is.
func (c *Client) Search(ctx context.Context, cq query.CategoryQuery, maxResults int) ([]article.RawHit, error) {
	params := url.Values{}
	params.Set("search_query", cq.Query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "lastUpdatedDate")
	params.Set("sortOrder", "descending")

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	var body []byte
	err := retry.WithBackoff(ctx, c.retryConfig, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("arxiv: failed to create request: %w", err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("arxiv: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("arxiv: unexpected status %d", resp.StatusCode)
			if retry.HTTPStatusRetryable(resp.StatusCode) {
				return err
			}
			return retry.Permanent(err)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("arxiv: failed to read response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to parse feed for category %s: %w", cq.Category, err)
	}

	hits := make([]article.RawHit, 0, len(feed.Items))
	for _, item := range feed.Items {
		var updated time.Time
		if item.UpdatedParsed != nil {
			updated = *item.UpdatedParsed
		} else if item.PublishedParsed != nil {
			updated = *item.PublishedParsed
		}

		authors := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				authors = append(authors, name)
			}
		}

		hits = append(hits, article.RawHit{
			Title:    strings.TrimSpace(item.Title),
			Updated:  updated,
			Authors:  authors,
			Link:     item.Link,
			Abstract: strings.TrimSpace(item.Description),
		})
	}
	return hits, nil
}
