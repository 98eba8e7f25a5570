package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/model"
)

var keepAliveFrame = []byte(": keep-alive\n\n")

// SSE writes events as server-sent events and emits a keep-alive comment
// on a fixed interval until the terminal event, Close, or a write failure.
type SSE struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	terminal bool
	closed   bool
	err      error
	cancel   context.CancelFunc

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// SSEOption configures an SSE channel.
type SSEOption func(*SSE)

// CancelOnWriteError calls cancel on the first failed write.
func CancelOnWriteError(cancel context.CancelFunc) SSEOption {
	return func(s *SSE) { s.cancel = cancel }
}

// NewSSE writes the event-stream response headers and starts the
// keep-alive loop. A non-positive interval disables keep-alive.
func NewSSE(w http.ResponseWriter, keepAlive time.Duration, opts ...SSEOption) *SSE {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSE{
		w:    w,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
		f.Flush()
	}

	if keepAlive > 0 {
		go s.keepAlive(keepAlive)
	} else {
		close(s.done)
	}
	return s
}

// Progress sends a progress event.
func (s *SSE) Progress(stage, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || s.closed {
		return
	}
	s.writeEvent(EventProgress, model.ProgressPayload{Stage: stage, Message: message})
}

// Complete sends the terminal success event.
func (s *SSE) Complete(p *model.CompletePayload) {
	s.terminate(EventComplete, p)
}

// Fail sends the terminal error event.
func (s *SSE) Fail(p model.ErrorPayload) {
	s.terminate(EventError, p)
}

// Close stops the keep-alive loop and waits for it to exit. Later events
// are dropped.
func (s *SSE) Close() {
	s.stopKeepAlive()
	<-s.done

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Err returns the first write error, which usually means the consumer
// disconnected.
func (s *SSE) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SSE) terminate(event string, payload any) {
	s.mu.Lock()
	if s.terminal || s.closed {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	s.writeEvent(event, payload)
	s.mu.Unlock()

	s.stopKeepAlive()
}

// writeEvent must be called with mu held.
func (s *SSE) writeEvent(event string, payload any) {
	if s.err != nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("stream: marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	s.write([]byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)))
}

// write must be called with mu held.
func (s *SSE) write(b []byte) {
	if _, err := s.w.Write(b); err != nil {
		s.err = err
		zap.L().Debug("stream: consumer write failed", zap.Error(err))
		if s.cancel != nil {
			s.cancel()
		}
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *SSE) keepAlive(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.terminal || s.closed || s.err != nil {
				s.mu.Unlock()
				return
			}
			s.write(keepAliveFrame)
			failed := s.err != nil
			s.mu.Unlock()
			if failed {
				return
			}
		}
	}
}

func (s *SSE) stopKeepAlive() {
	s.stopOnce.Do(func() { close(s.stop) })
}
