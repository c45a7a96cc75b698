// Package cursor persists the date watermark separating already-processed
// papers from new ones.
package cursor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DateFormat is the on-disk calendar-date layout. The watermark carries no
// time component.
const DateFormat = "2006-01-02"

type state struct {
	LastDate string `json:"last_date"`
}

// Store reads and writes the watermark file. The file holds a single date;
// everything published before it has been seen by a previous run.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted watermark, or the zero time if no state file
// exists yet.
func (s *Store) Load() (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cursor: read %s: %w", s.path, err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return time.Time{}, fmt.Errorf("cursor: parse %s: %w", s.path, err)
	}

	d, err := time.ParseInLocation(DateFormat, st.LastDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("cursor: invalid last_date %q: %w", st.LastDate, err)
	}
	return d, nil
}

// Save persists the watermark atomically (write to temp file, then rename).
// Moving the watermark backwards is refused: the stored date must stay
// monotonic across runs.
func (s *Store) Save(date time.Time) error {
	date = Truncate(date)

	existing, err := s.Load()
	if err != nil {
		return err
	}
	if !existing.IsZero() && date.Before(existing) {
		return fmt.Errorf("cursor: refusing to move watermark backwards from %s to %s",
			existing.Format(DateFormat), date.Format(DateFormat))
	}

	data, err := json.MarshalIndent(state{LastDate: date.Format(DateFormat)}, "", "  ")
	if err != nil {
		return fmt.Errorf("cursor: marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("cursor: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cursor: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cursor: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cursor: rename temp file: %w", err)
	}
	return nil
}

// Truncate drops the time component, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
