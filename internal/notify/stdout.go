package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/cursor"
)

// StdoutChannel prints the digest to standard output. Useful for dry runs.
type StdoutChannel struct{}

func NewStdoutChannel() *StdoutChannel {
	return &StdoutChannel{}
}

func (c *StdoutChannel) Name() string { return "stdout" }

func (c *StdoutChannel) Deliver(_ context.Context, digest *Digest) error {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println(digest.Header())
	fmt.Println(strings.Repeat("=", 72))

	for _, u := range digest.Units {
		fmt.Println()
		fmt.Println(u.Title)
		fmt.Println(strings.Repeat("-", 72))
		fmt.Println(u.Summary)
		fmt.Println()
		if len(u.Authors) > 0 {
			fmt.Printf("Authors: %s\n", strings.Join(u.Authors, ", "))
		}
		fmt.Printf("Date: %s, Link: %s\n", u.Published.Format(cursor.DateFormat), u.Link)
	}
	return nil
}
