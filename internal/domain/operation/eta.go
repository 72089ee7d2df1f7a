package operation

import (
	"fmt"
	"math"
	"time"
)

// ETA labels.
const (
	ETACalculating = "Calculating…"
	ETACompleted   = "Completed"
	ETAAlmostDone  = "Almost done"
)

// EstimateRemaining projects the time left for a job that took elapsed to
// reach percent, assuming linear progress. Remaining time at or below
// almostDone is reported as ETAAlmostDone.
func EstimateRemaining(elapsed time.Duration, percent int, almostDone time.Duration) string {
	switch {
	case percent <= 0:
		return ETACalculating
	case percent >= 100:
		return ETACompleted
	}

	total := elapsed.Seconds() * 100 / float64(percent)
	remaining := total - elapsed.Seconds()

	switch {
	case remaining <= almostDone.Seconds():
		return ETAAlmostDone
	case remaining > 60:
		return fmt.Sprintf("%d minutes", int(math.Round(remaining/60)))
	default:
		return fmt.Sprintf("%d seconds", int(math.Round(remaining)))
	}
}
