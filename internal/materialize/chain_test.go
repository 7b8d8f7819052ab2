package materialize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/domain"
)

func TestRunChainRecordsTypedOutcomes(t *testing.T) {
	t.Parallel()

	steps := []Step[int, string]{
		{Name: "skip", Run: func(context.Context, int) (string, error) { return "", ErrNotApplicable }},
		{Name: "fail", Run: func(context.Context, int) (string, error) { return "", errors.New("boom") }},
		{Name: "ok", Run: func(_ context.Context, n int) (string, error) { return "got", nil }},
		{Name: "never", Run: func(context.Context, int) (string, error) { panic("unreachable") }},
	}

	out, attempts, err := RunChain(context.Background(), 1, steps)
	require.NoError(t, err)
	assert.Equal(t, "got", out)
	require.Len(t, attempts, 3)
	assert.Equal(t, []Outcome{OutcomeSkip, OutcomeError, OutcomeSuccess},
		[]Outcome{attempts[0].Outcome, attempts[1].Outcome, attempts[2].Outcome})
}

func TestRunChainExhausted(t *testing.T) {
	t.Parallel()

	steps := []Step[int, int]{
		{Name: "a", Run: func(context.Context, int) (int, error) { return 0, errors.New("first") }},
		{Name: "b", Run: func(context.Context, int) (int, error) { return 0, ErrNotApplicable }},
	}
	_, attempts, err := RunChain(context.Background(), 0, steps)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "first")
	assert.Len(t, attempts, 2)
}

func TestRunChainHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	steps := []Step[int, int]{
		{Name: "cancel", Run: func(context.Context, int) (int, error) { cancel(); return 0, context.Canceled }},
		{Name: "next", Run: func(context.Context, int) (int, error) { return 1, nil }},
	}
	_, attempts, err := RunChain(ctx, 0, steps)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, attempts, 1)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatPDF, Classify(domainFile("Report.PDF")))
	assert.Equal(t, FormatDOCX, Classify(domainFile("essay.docx")))
	assert.Equal(t, FormatUnsupported, Classify(domainFile("photo.jpg")))

	cases := []struct {
		name        string
		contentType string
		want        Format
	}{
		{"download", "application/pdf", FormatPDF},
		{"download.bin", "Application/PDF; charset=binary", FormatPDF},
		{"essay", docxContentType, FormatDOCX},
		{"essay.pdf", docxContentType, FormatPDF},
		{"photo", "image/png", FormatUnsupported},
		{"notes", "", FormatUnsupported},
	}
	for _, tc := range cases {
		file := domain.FileRef{Filename: tc.name, ContentType: tc.contentType}
		assert.Equal(t, tc.want, Classify(file), "%s (%s)", tc.name, tc.contentType)
	}
}
