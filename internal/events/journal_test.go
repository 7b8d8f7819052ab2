package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	lines    []string
	progress [][2]int
}

func (r *recordingSink) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingSink) Progress(completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{completed, total})
}

func TestJournalForwardsToSink(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	j := NewJournal(sink)
	j.Start(2)
	j.Emit("hello %d", 1)
	j.Prefixed("[user001] ").Emit("graded %s", "ok")
	j.Tick()
	j.Tick()

	assert.Equal(t, []string{"hello 1", "[user001] graded ok"}, j.Lines())
	assert.Equal(t, j.Lines(), sink.lines)
	assert.Equal(t, [][2]int{{0, 2}, {1, 2}, {2, 2}}, sink.progress)
}

func TestJournalConcurrentEmit(t *testing.T) {
	t.Parallel()

	j := NewJournal(nil)
	j.Start(50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Emit("line")
			j.Tick()
		}()
	}
	wg.Wait()

	require.Len(t, j.Lines(), 50)
}

func TestPrefixedKeepsPercentSigns(t *testing.T) {
	t.Parallel()

	j := NewJournal(nil)
	j.Prefixed("[100%] ").Emit("done")
	assert.Equal(t, []string{"[100%] done"}, j.Lines())
}

func TestJournalConcurrentTicksReachSinkInOrder(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	j := NewJournal(sink)
	j.Start(64)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Emit("working")
			j.Tick()
		}()
	}
	wg.Wait()

	require.Len(t, sink.progress, 65)
	for i, p := range sink.progress {
		assert.Equal(t, [2]int{i, 64}, p)
	}
	assert.Equal(t, j.Lines(), sink.lines)
}
