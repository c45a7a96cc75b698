package notify

import (
	"fmt"
	"strings"
)

// RecipientError is one recipient's failed delivery.
type RecipientError struct {
	Recipient string
	Err       error
}

// DeliveryError reports partial delivery on a channel: some recipients (or
// messages) got through, some did not. One recipient's failure never blocks
// the others; the caller decides whether zero successes makes the channel
// count as failed.
type DeliveryError struct {
	Channel   string
	Delivered int
	Failed    []RecipientError
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Recipient, f.Err))
	}
	return fmt.Sprintf("%s: delivered %d, failed %d (%s)",
		e.Channel, e.Delivered, len(e.Failed), strings.Join(parts, "; "))
}
