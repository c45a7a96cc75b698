package article

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Graph Neural Networks", "graph_neural_networks"},
		{"Attention: Is All - You Need?", "attention_is_all_you_need"},
		{"  Spaces\tand\nnewlines  ", "spaces_and_newlines"},
		{"ALL CAPS!", "all_caps"},
		{"$\\epsilon$-greedy exploration", "epsilon_greedy_exploration"},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIngestDeduplicatesByNormalizedTitle(t *testing.T) {
	hits := []RawHit{
		{Title: "Graph Neural Networks", Updated: date(2024, 1, 2), Link: "http://arxiv.org/abs/1", Abstract: "first"},
		{Title: "graph neural networks!", Updated: date(2024, 1, 3), Link: "http://arxiv.org/abs/2", Abstract: "second"},
	}
	records := Ingest(hits, date(2024, 1, 1))

	if len(records) != 1 {
		t.Fatalf("Expected 1 record after dedup, got %d", len(records))
	}
	r := records["graph_neural_networks"]
	if r.Abstract != "second" {
		t.Errorf("Expected last hit to win, got abstract %q", r.Abstract)
	}
	if r.Link != "http://arxiv.org/abs/2" {
		t.Errorf("Expected last hit's link, got %q", r.Link)
	}
}

func TestIngestDateBoundaryIsInclusive(t *testing.T) {
	cutoff := date(2024, 1, 1)
	hits := []RawHit{
		{Title: "On The Boundary", Updated: date(2024, 1, 1), Link: "http://arxiv.org/abs/1"},
		{Title: "One Day Before", Updated: date(2023, 12, 31), Link: "http://arxiv.org/abs/2"},
		{Title: "One Day After", Updated: date(2024, 1, 2), Link: "http://arxiv.org/abs/3"},
	}
	records := Ingest(hits, cutoff)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if _, ok := records["on_the_boundary"]; !ok {
		t.Error("Paper updated exactly on the cursor date must be included")
	}
	if _, ok := records["one_day_before"]; ok {
		t.Error("Paper updated before the cursor date must be excluded")
	}
}

func TestIngestRejectsMalformedHits(t *testing.T) {
	hits := []RawHit{
		{Title: "", Updated: date(2024, 1, 2), Link: "http://arxiv.org/abs/1"},
		{Title: "No Link", Updated: date(2024, 1, 2)},
		{Title: "No Timestamp", Link: "http://arxiv.org/abs/2"},
		{Title: "Fine", Updated: date(2024, 1, 2), Link: "http://arxiv.org/abs/3"},
	}
	records := Ingest(hits, date(2024, 1, 1))

	if len(records) != 1 {
		t.Fatalf("Expected only the well-formed hit, got %d records", len(records))
	}
	if _, ok := records["fine"]; !ok {
		t.Error("Expected the well-formed hit to survive ingestion")
	}
}

func TestIngestCollapsesTitleWhitespace(t *testing.T) {
	hits := []RawHit{
		{Title: "A Title\n  Split Over Lines", Updated: date(2024, 1, 2), Link: "http://arxiv.org/abs/1"},
	}
	records := Ingest(hits, date(2024, 1, 1))

	r, ok := records["a_title_split_over_lines"]
	if !ok {
		t.Fatal("Expected record with collapsed title")
	}
	if r.Title != "A Title Split Over Lines" {
		t.Errorf("Expected collapsed display title, got %q", r.Title)
	}
}

func TestSortedAscendingByDate(t *testing.T) {
	records := map[string]Record{
		"c": {ID: "c", Published: date(2024, 1, 3)},
		"a": {ID: "a", Published: date(2024, 1, 1)},
		"b": {ID: "b", Published: date(2024, 1, 2)},
	}
	sorted := Sorted(records)

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if sorted[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, sorted[i].ID)
		}
	}
}

func TestSortedBreaksTiesDeterministically(t *testing.T) {
	d := date(2024, 1, 1)
	records := map[string]Record{
		"b": {ID: "b", Published: d},
		"a": {ID: "a", Published: d},
	}
	sorted := Sorted(records)
	if sorted[0].ID != "a" || sorted[1].ID != "b" {
		t.Errorf("Expected tie-break on ID, got %s, %s", sorted[0].ID, sorted[1].ID)
	}
}
