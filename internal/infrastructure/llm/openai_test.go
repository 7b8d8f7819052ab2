package llm

import (
	"bytes"
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/config"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/prompts"
)

const validGrading = `{"rubric_scores": [{"criterion": "Clarity", "points": 9, "reason": "clear"}], "overall_feedback": "nice"}`

func testCatalogue(t *testing.T) *prompts.Catalogue {
	t.Helper()
	c, err := prompts.Default()
	require.NoError(t, err)
	return c
}

func testRubric() domain.Rubric {
	return domain.Rubric{{Criterion: "Clarity", MaxPoints: 10, Description: "Writing is clear"}}
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
	})
}

type pageRenderer struct{ pages int }

func (p pageRenderer) RenderPages(_ context.Context, _ string, _ int, dir string) ([]string, error) {
	out := make([]string, 0, p.pages)
	for i := 0; i < p.pages; i++ {
		path := filepath.Join(dir, "page-"+string(rune('1'+i))+".png")
		if err := imaging.Save(imaging.New(40, 20, color.White), path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

func TestOpenAIGraderTextPath(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "```json\n"+validGrading+"\n```")
	}))
	defer srv.Close()

	g := NewOpenAIGrader(config.GraderConfig{Endpoint: srv.URL, Model: "m", APIKey: "sk-test", MaxTokens: 500}, testCatalogue(t), nil, nil)
	result, err := g.Grade(context.Background(), "essay body", testRubric(), "")
	require.NoError(t, err)

	assert.False(t, result.Sentinel)
	assert.Equal(t, 9.0, result.Scores[0].Points)
	assert.Equal(t, "m", got["model"])
	assert.EqualValues(t, 500, got["max_tokens"])

	messages := got["messages"].([]any)
	user := messages[1].(map[string]any)["content"].(string)
	assert.Contains(t, user, "essay body")
	assert.Contains(t, user, "- Clarity (10 pts): Writing is clear")
}

func TestOpenAIGraderVisionFallsBackToText(t *testing.T) {
	t.Parallel()

	var calls, visionCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		user := body["messages"].([]any)[1].(map[string]any)
		if parts, ok := user["content"].([]any); ok {
			visionCalls.Add(1)
			assert.Len(t, parts, 3, "prompt plus two pages")
			http.Error(w, "vision unavailable", http.StatusBadGateway)
			return
		}
		chatReply(w, validGrading)
	}))
	defer srv.Close()

	cfg := config.GraderConfig{Endpoint: srv.URL, Model: "m", APIKey: "k", Vision: config.VisionConfig{Enabled: true, MaxPages: 2}}
	g := NewOpenAIGrader(cfg, testCatalogue(t), pageRenderer{pages: 3}, nil)

	result, err := g.Grade(context.Background(), "text", testRubric(), "/tmp/doc.pdf")
	require.NoError(t, err)
	assert.False(t, result.Sentinel)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, visionCalls.Load())
}

func TestOpenAIGraderVisionSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		chatReply(w, validGrading)
	}))
	defer srv.Close()

	cfg := config.GraderConfig{Endpoint: srv.URL, Model: "m", APIKey: "k", Vision: config.VisionConfig{Enabled: true, MaxWidth: 20}}
	g := NewOpenAIGrader(cfg, testCatalogue(t), pageRenderer{pages: 1}, nil)

	result, err := g.Grade(context.Background(), "", testRubric(), "/tmp/doc.pdf")
	require.NoError(t, err)
	assert.False(t, result.Sentinel)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAIGraderMalformedIsSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "Sorry, I can't help with that.")
	}))
	defer srv.Close()

	g := NewOpenAIGrader(config.GraderConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"}, testCatalogue(t), nil, nil)
	result, err := g.Grade(context.Background(), "text", testRubric(), "")
	require.NoError(t, err)
	assert.True(t, result.Sentinel)
	assert.Empty(t, result.Scores)
}

func TestOpenAIGraderTransportErrorIsReturned(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewOpenAIGrader(config.GraderConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"}, testCatalogue(t), nil, nil)
	_, err := g.Grade(context.Background(), "text", testRubric(), "")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestEncodePageDownscales(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, imaging.Save(imaging.New(200, 100, color.Black), path))

	data, err := EncodePage(path, 50)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}
