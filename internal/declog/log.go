package declog

import (
	"sync"

	"github.com/google/uuid"
)

// Log collects decision events. Producers append from the driver thread;
// a single writer goroutine drains the channel into the in-memory event
// list and every attached sink, so sink order always matches event order.
type Log struct {
	invocationID string
	silent       bool

	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	events   []Event
	seq      int
	errorCount int
	warnCount  int
	sinks    []Sink
}

// New creates a log draining into the given sinks. Silent suppresses
// the per-reference event block; inputs, conflicts and diagnostics
// always pass.
func New(silent bool, sinks ...Sink) *Log {
	return NewWithID(uuid.NewString(), silent, sinks...)
}

// NewWithID creates a log with a caller-chosen invocation ID, so sinks
// that need the ID at construction time can share it.
func NewWithID(id string, silent bool, sinks ...Sink) *Log {
	l := &Log{
		invocationID: id,
		silent:       silent,
		ch:           make(chan Event, 256),
		done:         make(chan struct{}),
		sinks:        sinks,
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

// InvocationID returns the unique ID stamped on this invocation's events.
func (l *Log) InvocationID() string { return l.invocationID }

func (l *Log) drain() {
	defer l.wg.Done()
	for ev := range l.ch {
		l.mu.Lock()
		ev.Seq = l.seq
		l.seq++
		l.events = append(l.events, ev)
		switch ev.Kind {
		case KindError:
			l.errorCount++
		case KindWarning:
			l.warnCount++
		}
		sinks := l.sinks
		l.mu.Unlock()
		for _, s := range sinks {
			// A failing sink must not break resolution.
			_ = s.Write(ev)
		}
	}
	close(l.done)
}

func (l *Log) emit(ev Event) {
	if l.silent && perReference(ev.Kind) {
		return
	}
	l.ch <- ev
}

// Close stops the writer goroutine, closes every sink and returns.
// The log must not be used afterwards.
func (l *Log) Close() error {
	close(l.ch)
	<-l.done
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Events returns the ordered events recorded so far. Callers should
// Close first to ensure the channel has drained.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// HasErrors reports whether any Error event was logged; the invocation's
// success flag is its negation.
func (l *Log) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errorCount > 0
}

// WarningCount returns the number of Warning events.
func (l *Log) WarningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnCount
}

// Input records one configuration input.
func (l *Log) Input(name, value string) {
	l.ch <- Event{Kind: KindInput, Name: name, Value: value}
}

// Primary opens a primary reference's block.
func (l *Log) Primary(ref string) {
	l.emit(Event{Kind: KindPrimaryOrDependency, Reference: ref, RefKind: "primary"})
}

// Dependency opens a dependency reference's block.
func (l *Log) Dependency(ref string) {
	l.emit(Event{Kind: KindPrimaryOrDependency, Reference: ref, RefKind: "dependency"})
}

// Considered records a candidate location and why it was rejected, or
// an empty reason for the location that went on to be selected.
func (l *Log) Considered(ref, location, reason string) {
	l.emit(Event{Kind: KindConsidered, Reference: ref, Location: location, Reason: reason})
}

// Resolved records the chosen location for a reference.
func (l *Log) Resolved(ref, location string) {
	l.emit(Event{Kind: KindResolved, Reference: ref, Location: location})
}

// Unification records a version remap applied to a reference.
func (l *Log) Unification(ref, oldVersion, newVersion, reason string) {
	l.emit(Event{Kind: KindUnification, Reference: ref, OldVersion: oldVersion, Version: newVersion, Reason: "UnificationBy" + reason})
}

// Conflict records a winner/loser pair.
func (l *Log) Conflict(winner, loser, reason string) {
	l.ch <- Event{Kind: KindConflict, Winner: winner, Loser: loser, Reason: reason}
}

// SuggestedRedirect records a redirect the user could add to resolve a
// conflict.
func (l *Log) SuggestedRedirect(partial, newVersion string) {
	l.ch <- Event{Kind: KindSuggestedRedirect, Partial: partial, Version: newVersion}
}

// CopyLocal records the copy-local decision for a reference.
func (l *Log) CopyLocal(ref, decision string) {
	l.emit(Event{Kind: KindCopyLocalDecision, Reference: ref, Reason: decision})
}

// Exclusion records a reference removed by the subset exclusion list.
func (l *Log) Exclusion(ref, subset string) {
	l.ch <- Event{Kind: KindExclusionApplied, Reference: ref, Subset: subset}
}

// Advisory records a non-fatal notice.
func (l *Log) Advisory(message string) {
	l.ch <- Event{Kind: KindAdvisory, Message: message}
}

// Warning records a warning diagnostic.
func (l *Log) Warning(code, message string) {
	l.ch <- Event{Kind: KindWarning, Code: code, Message: message}
}

// Error records an error diagnostic; any Error flips the invocation's
// success flag to false.
func (l *Log) Error(code, message string) {
	l.ch <- Event{Kind: KindError, Code: code, Message: message}
}
