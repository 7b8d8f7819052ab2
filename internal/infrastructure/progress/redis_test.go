package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/logging"
)

var errOffline = errors.New("offline")

// captureHook records pipelined commands and stops them before any dial.
type captureHook struct {
	mu    sync.Mutex
	batch [][]redis.Cmder
}

func (h *captureHook) BeforeProcess(ctx context.Context, _ redis.Cmder) (context.Context, error) {
	return ctx, errOffline
}

func (h *captureHook) AfterProcess(context.Context, redis.Cmder) error { return nil }

func (h *captureHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batch = append(h.batch, cmds)
	return ctx, errOffline
}

func (h *captureHook) AfterProcessPipeline(context.Context, []redis.Cmder) error { return nil }

func TestRedisSinkPublishesAndAppendsToRunLog(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	hook := &captureHook{}
	client.AddHook(hook)

	pub := newPublisher(client, "gradepipe:progress", logging.Discard())
	sink := pub.Sink("run-1", "A1")
	sink.Log("user001: graded")
	sink.Progress(1, 2)

	require.Len(t, hook.batch, 2)
	var names []string
	for _, cmd := range hook.batch[0] {
		names = append(names, cmd.Name())
	}
	assert.Equal(t, []string{"multi", "publish", "rpush", "expire", "exec"}, names)

	publish, rpush := hook.batch[0][1].Args(), hook.batch[0][2].Args()
	assert.Equal(t, "gradepipe:progress", publish[1])
	assert.Equal(t, "gradepipe:progress:run-1", rpush[1])
	assert.Equal(t, publish[2], rpush[2])

	var ev Event
	require.NoError(t, json.Unmarshal(rpush[2].([]byte), &ev))
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "A1", ev.AssignmentID)
	assert.Equal(t, "log", ev.Kind)
	assert.Equal(t, "user001: graded", ev.Line)

	require.NoError(t, json.Unmarshal(hook.batch[1][2].Args()[2].([]byte), &ev))
	assert.Equal(t, "progress", ev.Kind)
	assert.Equal(t, 1, ev.Completed)
	assert.Equal(t, 2, ev.Total)
}
