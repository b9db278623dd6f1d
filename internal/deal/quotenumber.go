package deal

import (
	"fmt"
	"time"
)

// QuoteNumber derives a human-readable quote identifier from the count of
// previously issued numbers and the current instant: Q{YY}{MM}-{seq:04d}.
// Year and month come from now rather than the deal's creation-intent time so
// retried creations cannot drift across a period boundary. The store must
// serialize the count read and number write; this only formats the candidate.
func QuoteNumber(existingCount int64, now time.Time) string {
	return fmt.Sprintf("Q%02d%02d-%04d", now.Year()%100, int(now.Month()), existingCount+1)
}
