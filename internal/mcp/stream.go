package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/memvault/memvault/internal/repository"
)

// DefaultPaceInterval is the minimum delay between emitted frames when
// no interval is configured. It bounds burst rate against the transport
// without adding noticeable latency.
const DefaultPaceInterval = 10 * time.Millisecond

// StreamState is the terminal state of a driven stream.
type StreamState int

// Stream engine states.
const (
	StateIdle StreamState = iota
	StateStreaming
	StateDone
	StateAborted
)

// String returns the state name for logging.
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// StreamEngine drives a resource iterator to completion, framing each
// produced item as a wire event with inter-item pacing. A stream is
// single-threaded and single-pass: once aborted it is never resumed.
type StreamEngine struct {
	// Interval is the minimum pacing delay between frames. Zero or
	// negative falls back to DefaultPaceInterval.
	Interval time.Duration

	// Logger records terminal states server-side. Mid-stream failures
	// are intentionally not surfaced on the wire (truncation is silent),
	// so the log line is the only place the gap is observable.
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics
}

// Run pulls records from it, writes each as a framed event
// ("data: <json>" followed by a blank line) to w, and flushes after
// every frame. Pacing applies between consecutive frames only; once
// the sequence is exhausted the stream closes immediately. It returns
// StateDone when the sequence is exhausted and StateAborted when the
// iterator fails, the context is cancelled, or a write to the
// transport fails (consumer disconnected). In the aborted case the
// stream is closed without an error frame. The iterator is closed on
// every exit path.
func (e *StreamEngine) Run(ctx context.Context, w io.Writer, flush func(), it repository.Iterator) StreamState {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := e.Interval
	if interval <= 0 {
		interval = DefaultPaceInterval
	}

	defer func() { _ = it.Close() }()

	if e.Metrics != nil {
		e.Metrics.StreamsStarted.Inc()
	}

	state := StateStreaming
	frames := 0
	for {
		rec, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrDone) {
				state = StateDone
				break
			}
			logger.Debug("stream aborted: generator failure", "error", err, "frames", frames)
			state = StateAborted
			break
		}

		if frames > 0 && !pace(ctx, interval) {
			logger.Debug("stream aborted: context cancelled", "frames", frames)
			state = StateAborted
			break
		}

		if err := writeFrame(w, rec.WireMap()); err != nil {
			// Consumer disconnected or transport failed; truncation is
			// silent on the wire.
			logger.Debug("stream aborted: write failure", "error", err, "frames", frames)
			state = StateAborted
			break
		}
		if flush != nil {
			flush()
		}
		frames++
		if e.Metrics != nil {
			e.Metrics.FramesEmitted.Inc()
		}
	}

	if e.Metrics != nil {
		switch state {
		case StateDone:
			e.Metrics.StreamsDone.Inc()
		case StateAborted:
			e.Metrics.StreamsAborted.Inc()
		}
	}
	logger.Debug("stream finished", "state", state, "frames", frames)
	return state
}

// writeFrame emits one framed event: "data: <json>\n\n".
func writeFrame(w io.Writer, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mcp: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("mcp: write frame: %w", err)
	}
	return nil
}

// pace waits the minimum inter-frame interval, reporting false if the
// context was cancelled while waiting.
func pace(ctx context.Context, interval time.Duration) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
