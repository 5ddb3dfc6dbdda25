package pipeline

import "fmt"

// ProgressEvent is emitted while a unit moves through its stages.
type ProgressEvent struct {
	Unit    string
	Stage   Stage
	Status  ProgressStatus
	Message string
}

// ProgressStatus is the state of one stage within a unit.
type ProgressStatus string

const (
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	ch chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{ch: make(chan ProgressEvent, 64)}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full, the event is silently dropped.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	select {
	case pr.ch <- event:
	default:
		// Drop the event if the channel is full.
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressWorking:
		return fmt.Sprintf("  ● %s %s...", event.Unit, event.Stage)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s %s", event.Unit, event.Stage)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s %s: %s", event.Unit, event.Stage, event.Message)
	default:
		return fmt.Sprintf("  ? %s %s", event.Unit, event.Stage)
	}
}
