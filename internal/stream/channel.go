// Package stream delivers run progress and the terminal result to a
// single consumer.
package stream

import (
	"time"

	"github.com/sells-group/lifeline/internal/model"
)

// Event names on the wire.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// DefaultKeepAlive is the interval between keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// Channel is the progress sink for one run. At most one of Complete or
// Fail takes effect; anything sent after it, or after Close, is dropped.
// Close must be safe to call more than once.
type Channel interface {
	Progress(stage, message string)
	Complete(p *model.CompletePayload)
	Fail(p model.ErrorPayload)
	Close()
}
