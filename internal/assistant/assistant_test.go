package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/store"
)

type fakeChat struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	status   int
}

func (f *fakeChat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
		return
	}
	fmt.Fprintf(w, `{"id":"c%d","object":"chat.completion","model":%q,
		"choices":[{"index":0,"message":{"role":"assistant","content":" answer %d "},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`, n, req.Model, n)
}

func newTestAssistant(t *testing.T, fake *fakeChat, maxHistory int) *Assistant {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test", BaseURL: srv.URL, Model: "test-model"},
		store.NewMemoryStore(maxHistory, time.Hour), nil)
}

func TestReplyKeepsConversation(t *testing.T) {
	fake := &fakeChat{}
	a := newTestAssistant(t, fake, 0)
	ctx := context.Background()

	first, err := a.Reply(ctx, "", "When should I sow wheat?", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.SessionID == "" || first.Text != "answer 1" {
		t.Fatalf("unexpected reply %+v", first)
	}

	second, err := a.Reply(ctx, first.SessionID, "And rice?", Options{MaxTokens: 512, Temperature: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected the same session, got %s and %s", first.SessionID, second.SessionID)
	}
	if second.Session.TotalTokens != 28 {
		t.Fatalf("expected cumulative usage 28, got %+v", second.Session)
	}

	req := fake.requests[1]
	if req.Model != "test-model" || req.MaxTokens != 512 {
		t.Fatalf("unexpected request %+v", req)
	}
	roles := []string{}
	for _, m := range req.Messages {
		roles = append(roles, m.Role)
	}
	want := []string{"system", "user", "assistant", "user"}
	if fmt.Sprint(roles) != fmt.Sprint(want) {
		t.Fatalf("roles %v, want %v", roles, want)
	}
	if req.Messages[0].Content != SystemPrompt || req.Messages[3].Content != "And rice?" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}

	conv, err := a.History(first.SessionID)
	if err != nil || len(conv.Messages) != 4 {
		t.Fatalf("expected 4 stored messages, got %d (%v)", len(conv.Messages), err)
	}
}

func TestReplyValidation(t *testing.T) {
	a := newTestAssistant(t, &fakeChat{}, 0)
	cases := []struct {
		name   string
		prompt string
		opts   Options
	}{
		{"empty prompt", "   ", DefaultOptions()},
		{"too few tokens", "hi", Options{MaxTokens: 31, Temperature: 0.7}},
		{"too many tokens", "hi", Options{MaxTokens: 1025, Temperature: 0.7}},
		{"too hot", "hi", Options{MaxTokens: 256, Temperature: 1.3}},
		{"negative temperature", "hi", Options{MaxTokens: 256, Temperature: -0.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.Reply(context.Background(), "", tc.prompt, tc.opts); !apperr.IsInput(err) {
				t.Fatalf("expected input error, got %v", err)
			}
		})
	}
}

func TestProviderFailures(t *testing.T) {
	unconfigured := New(Config{}, store.NewMemoryStore(0, 0), nil)
	if _, err := unconfigured.Reply(context.Background(), "", "hi", DefaultOptions()); !apperr.IsProvider(err) {
		t.Fatalf("expected provider error without key, got %v", err)
	}

	a := newTestAssistant(t, &fakeChat{status: http.StatusUnauthorized}, 0)
	_, err := a.Reply(context.Background(), "", "hi", DefaultOptions())
	if !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestUnknownSessionStartsFresh(t *testing.T) {
	a := newTestAssistant(t, &fakeChat{}, 0)
	r, err := a.Reply(context.Background(), "does-not-exist", "hi", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.SessionID == "does-not-exist" {
		t.Fatalf("expected a new session id")
	}
	if !a.Forget(r.SessionID) {
		t.Fatalf("expected forget to drop the session")
	}
	if _, err := a.History(r.SessionID); !apperr.IsInput(err) {
		t.Fatalf("expected input error for forgotten session, got %v", err)
	}
}

func TestFailedReplyDoesNotKeepNewSession(t *testing.T) {
	a := newTestAssistant(t, &fakeChat{status: http.StatusInternalServerError}, 0)
	if _, err := a.Reply(context.Background(), "", "hi", DefaultOptions()); !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if n := a.store.Len(); n != 0 {
		t.Fatalf("expected no stored conversations after a failed first turn, got %d", n)
	}
}

func TestFailedReplyKeepsExistingSession(t *testing.T) {
	fake := &fakeChat{}
	a := newTestAssistant(t, fake, 0)
	first, err := a.Reply(context.Background(), "", "hi", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.mu.Lock()
	fake.status = http.StatusInternalServerError
	fake.mu.Unlock()
	if _, err := a.Reply(context.Background(), first.SessionID, "again", DefaultOptions()); !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if conv, err := a.History(first.SessionID); err != nil || len(conv.Messages) != 2 {
		t.Fatalf("existing session should be untouched, got %+v (%v)", conv, err)
	}
}
