package ingestion

import (
	"time"

	"github.com/poiesic/recall/core"
)

// Monitor observes pipeline activity. Implementations must be
// thread-safe; callbacks are invoked from worker goroutines.
type Monitor interface {
	// EventAccepted fires when an event passes validation and is
	// durably enqueued.
	EventAccepted(job *core.Job)

	// JobSucceeded fires when a job completes. Lag is the time from
	// the source event to searchability.
	JobSucceeded(job *core.Job, lag time.Duration)

	// JobRetried fires when a job fails and is scheduled for another
	// attempt after delay.
	JobRetried(job *core.Job, err error, delay time.Duration)

	// JobParked fires when a job exhausts its attempts, or fails
	// permanently, and lands in the dead letter queue.
	JobParked(job *core.Job, err error)

	// QueueDepth reports the pending queue size, sampled each
	// dispatcher poll.
	QueueDepth(depth int)
}

// NoopMonitor ignores all observations. It is the default when no
// monitor is configured.
type NoopMonitor struct{}

func (NoopMonitor) EventAccepted(*core.Job)                            {}
func (NoopMonitor) JobSucceeded(*core.Job, time.Duration)              {}
func (NoopMonitor) JobRetried(*core.Job, error, time.Duration)         {}
func (NoopMonitor) JobParked(*core.Job, error)                         {}
func (NoopMonitor) QueueDepth(int)                                     {}

var _ Monitor = NoopMonitor{}
