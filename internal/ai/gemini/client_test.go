package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeResponse struct {
	generate *genai.GenerateContentResponse
	embed    *genai.EmbedContentResponse
	err      error
}

type fakeModels struct {
	mu      sync.Mutex
	queue   []fakeResponse
	calls   int
	models  []string
	configs []*genai.GenerateContentConfig
}

func (f *fakeModels) next(model string) (fakeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, model)
	if len(f.queue) == 0 {
		return fakeResponse{}, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res, nil
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.configs = append(f.configs, config)
	f.mu.Unlock()

	res, err := f.next(model)
	if err != nil {
		return nil, err
	}
	return res.generate, res.err
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, _ []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	res, err := f.next(model)
	if err != nil {
		return nil, err
	}
	return res.embed, res.err
}

func stubWait(t *testing.T) {
	t.Helper()
	original := wait
	wait = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { wait = original })
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	stubWait(t)

	models := &fakeModels{queue: []fakeResponse{
		{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
		{generate: textResponse(`{"ok": true}`)},
	}}
	g := newGenerator(models, Options{Model: "gemini-pro", MaxRetries: 2}, zap.NewNop())

	output, err := g.GenerateJSON(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != `{"ok": true}` {
		t.Fatalf("unexpected output: %q", output)
	}

	if models.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.calls)
	}

	for _, cfg := range models.configs {
		if cfg == nil || cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "system" {
			t.Fatalf("expected system instruction to be set")
		}
		if cfg.ResponseMIMEType != "application/json" {
			t.Fatalf("unexpected mime type: %q", cfg.ResponseMIMEType)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	stubWait(t)

	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models := &fakeModels{queue: []fakeResponse{{err: tempErr}, {err: tempErr}}}
	g := newGenerator(models, Options{MaxRetries: 2}, zap.NewNop())

	if _, err := g.GenerateJSON(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if models.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.calls)
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{queue: []fakeResponse{{err: genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}}}}
	g := newGenerator(models, Options{MaxRetries: 3}, zap.NewNop())

	if _, err := g.GenerateJSON(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if models.calls != 1 {
		t.Fatalf("expected single call, got %d", models.calls)
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{queue: []fakeResponse{{err: genai.APIError{Code: http.StatusBadRequest}}}}
	g := newGenerator(models, Options{MaxRetries: 3}, zap.NewNop())

	if _, err := g.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error")
	}

	if models.calls != 1 {
		t.Fatalf("expected single call, got %d", models.calls)
	}
}

func TestGeneratorEmbed(t *testing.T) {
	models := &fakeModels{queue: []fakeResponse{{embed: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2, 0.3}}},
	}}}}
	g := newGenerator(models, Options{}, zap.NewNop())

	values, err := g.Embed(context.Background(), "cloud migration")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(values) != 3 || values[2] != 0.3 {
		t.Fatalf("unexpected embedding: %v", values)
	}

	if models.models[0] != defaultEmbeddingModel {
		t.Fatalf("expected default embedding model, got %q", models.models[0])
	}
}

func TestGeneratorEmbedRejectsEmptyResults(t *testing.T) {
	models := &fakeModels{queue: []fakeResponse{{embed: &genai.EmbedContentResponse{}}}}
	g := newGenerator(models, Options{}, zap.NewNop())

	if _, err := g.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty embedding")
	}

	if _, err := g.Embed(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestRetryDelay(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		attempt   int
		delay     time.Duration
		retryable bool
	}{
		{name: "plain error", err: errors.New("boom"), attempt: 1},
		{name: "server error", err: genai.APIError{Code: 500}, attempt: 3, delay: 4 * time.Second, retryable: true},
		{name: "short quota", err: genai.APIError{Code: 429, Message: "Please retry in 2.5s."}, attempt: 1, delay: 2500 * time.Millisecond, retryable: true},
		{name: "quota without delay", err: genai.APIError{Code: 429}, attempt: 2, delay: 2 * time.Second, retryable: true},
		{name: "not found", err: genai.APIError{Code: 404}, attempt: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delay, retryable := retryDelay(tc.err, tc.attempt)
			if retryable != tc.retryable || delay != tc.delay {
				t.Fatalf("expected (%v, %v), got (%v, %v)", tc.delay, tc.retryable, delay, retryable)
			}
		})
	}
}
