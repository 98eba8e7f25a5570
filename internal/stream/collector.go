package stream

import (
	"sync"

	"github.com/sells-group/lifeline/internal/model"
)

// Collector keeps events in memory for non-streaming callers.
type Collector struct {
	mu       sync.Mutex
	onEvent  func(stage, message string)
	progress []model.ProgressPayload
	complete *model.CompletePayload
	failure  *model.ErrorPayload
	terminal bool
	closed   bool
}

// NewCollector returns a Collector. onProgress, if non-nil, is called for
// each accepted progress event.
func NewCollector(onProgress func(stage, message string)) *Collector {
	return &Collector{onEvent: onProgress}
}

// Progress records a progress event.
func (c *Collector) Progress(stage, message string) {
	c.mu.Lock()
	if c.terminal || c.closed {
		c.mu.Unlock()
		return
	}
	c.progress = append(c.progress, model.ProgressPayload{Stage: stage, Message: message})
	fn := c.onEvent
	c.mu.Unlock()

	if fn != nil {
		fn(stage, message)
	}
}

// Complete records the terminal success payload.
func (c *Collector) Complete(p *model.CompletePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminal || c.closed {
		return
	}
	c.terminal = true
	c.complete = p
}

// Fail records the terminal error payload.
func (c *Collector) Fail(p model.ErrorPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminal || c.closed {
		return
	}
	c.terminal = true
	c.failure = &p
}

// Close marks the collector closed.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Result returns the terminal payloads. Exactly one is non-nil once a
// terminal event was recorded.
func (c *Collector) Result() (*model.CompletePayload, *model.ErrorPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete, c.failure
}

// Events returns a copy of the recorded progress events.
func (c *Collector) Events() []model.ProgressPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ProgressPayload, len(c.progress))
	copy(out, c.progress)
	return out
}
