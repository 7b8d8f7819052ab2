package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/config"
)

func TestNewNotifierRequiresCredentials(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewNotifier(config.TelegramConfig{BotToken: "tok"}))
	assert.Nil(t, NewNotifier(config.TelegramConfig{ChatID: "42"}))
	assert.NotNil(t, NewNotifier(config.TelegramConfig{BotToken: "tok", ChatID: "42"}))
}

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		path     string
		chatID   string
		received string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		path, chatID, received = r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "tok", ChatID: "42"}).WithBaseURL(srv.URL + "/")
	require.NoError(t, n.PublishDigest(context.Background(), "batch A1: 3 graded"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", chatID)
	assert.Equal(t, "batch A1: 3 graded", received)
}

func TestPublishDigestStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "tok", ChatID: "42"}).WithBaseURL(srv.URL)
	err := n.PublishDigest(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", 5000)
	got := []rune(truncate(long, maxMessageUnits))
	assert.Len(t, got, maxMessageUnits)
	assert.Equal(t, "short", truncate("short", maxMessageUnits))
}

func TestTruncateCountsUTF16Units(t *testing.T) {
	t.Parallel()

	// Each emoji is a surrogate pair: 3000 runes, 6000 code units.
	long := strings.Repeat("🎓", 3000)
	got := truncate(long, maxMessageUnits)
	assert.LessOrEqual(t, len(utf16.Encode([]rune(got))), maxMessageUnits)
	assert.Equal(t, 2047, strings.Count(got, "🎓"))
	assert.True(t, strings.HasSuffix(got, "…"))

	exact := strings.Repeat("🎓", 2048)
	assert.Equal(t, exact, truncate(exact, maxMessageUnits))
}
