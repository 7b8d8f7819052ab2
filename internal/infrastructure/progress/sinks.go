// Package progress provides destinations for batch log lines and
// completion ticks.
package progress

import (
	"log/slog"
	"sync"

	"GradePipeline/internal/ports"
)

// LogSink writes progress into a structured logger.
type LogSink struct {
	logger *slog.Logger
}

var _ ports.ProgressSink = (*LogSink)(nil)

// NewLogSink wraps a logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Log(line string) {
	s.logger.Info(line)
}

func (s *LogSink) Progress(completed, total int) {
	s.logger.Debug("progress", "completed", completed, "total", total)
}

// Recorder keeps everything in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
	ticks [][2]int
}

var _ ports.ProgressSink = (*Recorder)(nil)

func (r *Recorder) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *Recorder) Progress(completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, [2]int{completed, total})
}

// Lines returns recorded log lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Ticks returns recorded (completed, total) pairs.
func (r *Recorder) Ticks() [][2]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]int(nil), r.ticks...)
}

// Fanout forwards to several sinks, skipping nil ones.
type Fanout []ports.ProgressSink

var _ ports.ProgressSink = Fanout(nil)

// NewFanout drops nil sinks.
func NewFanout(sinks ...ports.ProgressSink) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) Log(line string) {
	for _, s := range f {
		s.Log(line)
	}
}

func (f Fanout) Progress(completed, total int) {
	for _, s := range f {
		s.Progress(completed, total)
	}
}
