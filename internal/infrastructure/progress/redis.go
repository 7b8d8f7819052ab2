package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"GradePipeline/internal/config"
	"GradePipeline/internal/ports"
)

const (
	publishTimeout = 2 * time.Second
	// logTTL bounds how long a run's replay list is kept.
	logTTL = 24 * time.Hour
)

// Event is the JSON message published for every log line or tick.
type Event struct {
	RunID        string    `json:"run_id"`
	AssignmentID string    `json:"assignment_id"`
	Kind         string    `json:"kind"`
	Line         string    `json:"line,omitempty"`
	Completed    int       `json:"completed,omitempty"`
	Total        int       `json:"total,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher owns a redis client and hands out per-run sinks. Every event is
// published on the channel and appended to the run's log list so late
// subscribers can replay it.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewPublisher connects and pings redis.
func NewPublisher(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return newPublisher(client, cfg.Channel, logger), nil
}

func newPublisher(client *redis.Client, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, channel: channel, logger: logger}
}

// LogKey is the list holding every event of a run.
func (p *Publisher) LogKey(runID string) string {
	return p.channel + ":" + runID
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Sink returns a progress sink tagged with the run.
func (p *Publisher) Sink(runID, assignmentID string) ports.ProgressSink {
	return &redisSink{publisher: p, runID: runID, assignmentID: assignmentID}
}

type redisSink struct {
	publisher    *Publisher
	runID        string
	assignmentID string
	warnOnce     sync.Once
}

func (s *redisSink) Log(line string) {
	s.publish(Event{Kind: "log", Line: line})
}

func (s *redisSink) Progress(completed, total int) {
	s.publish(Event{Kind: "progress", Completed: completed, Total: total})
}

func (s *redisSink) publish(ev Event) {
	ev.RunID, ev.AssignmentID, ev.At = s.runID, s.assignmentID, time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	key := s.publisher.LogKey(s.runID)
	_, err = s.publisher.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, s.publisher.channel, payload)
		pipe.RPush(ctx, key, payload)
		pipe.Expire(ctx, key, logTTL)
		return nil
	})
	if err != nil {
		s.warnOnce.Do(func() {
			s.publisher.logger.Warn("progress publish failed", "channel", s.publisher.channel, "error", err)
		})
	}
}
