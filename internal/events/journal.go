// Package events collects the human-readable log of a batch and forwards
// each entry to a progress sink as it happens.
package events

import (
	"fmt"
	"sync"
)

// Sink receives log lines and progress ticks.
type Sink interface {
	Log(line string)
	Progress(completed, total int)
}

// Emitter is the write side handed to each pipeline stage.
type Emitter interface {
	Emit(format string, args ...any)
}

// Journal is an append-only, concurrency-safe event log for one batch.
// Entries reach the sink in the order they were recorded.
type Journal struct {
	// send serialises record-and-forward; mu guards the fields below and is
	// never held while the sink runs.
	send      sync.Mutex
	mu        sync.Mutex
	lines     []string
	sink      Sink
	completed int
	total     int
}

// NewJournal creates a journal that mirrors entries to sink (may be nil).
func NewJournal(sink Sink) *Journal {
	return &Journal{sink: sink}
}

// Emit appends a formatted line.
func (j *Journal) Emit(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	j.send.Lock()
	defer j.send.Unlock()

	j.mu.Lock()
	j.lines = append(j.lines, line)
	sink := j.sink
	j.mu.Unlock()

	if sink != nil {
		sink.Log(line)
	}
}

// Start announces the number of units of work and reports (0,total).
func (j *Journal) Start(total int) {
	j.send.Lock()
	defer j.send.Unlock()

	j.mu.Lock()
	j.total = total
	j.completed = 0
	sink := j.sink
	j.mu.Unlock()

	if sink != nil {
		sink.Progress(0, total)
	}
}

// Tick marks one unit done and returns the new completed count.
func (j *Journal) Tick() int {
	j.send.Lock()
	defer j.send.Unlock()

	j.mu.Lock()
	j.completed++
	completed, total := j.completed, j.total
	sink := j.sink
	j.mu.Unlock()

	if sink != nil {
		sink.Progress(completed, total)
	}
	return completed
}

// Lines returns a snapshot of everything emitted so far.
func (j *Journal) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.lines...)
}

// Prefixed returns an emitter that tags each line, e.g. with an anonymous label.
func (j *Journal) Prefixed(prefix string) Emitter {
	return prefixed{journal: j, prefix: prefix}
}

type prefixed struct {
	journal *Journal
	prefix  string
}

func (p prefixed) Emit(format string, args ...any) {
	p.journal.Emit("%s", p.prefix+fmt.Sprintf(format, args...))
}

// Discard drops every line.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(string, ...any) {}
