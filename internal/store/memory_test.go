package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(maxHistory int, maxAge time.Duration) (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(maxHistory, maxAge)
	s.now = c.now
	return s, c
}

func TestCreateAndAppend(t *testing.T) {
	s, _ := newTestStore(0, 0)
	c := s.Create()
	if _, err := uuid.Parse(c.ID); err != nil {
		t.Fatalf("expected uuid session id, got %q", c.ID)
	}

	got, err := s.Append(c.ID, Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Message{Role: RoleUser, Content: "hi"}, Message{Role: RoleAssistant, Content: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].At.IsZero() {
		t.Fatalf("unexpected conversation %+v", got)
	}
	got, _ = s.Append(c.ID, Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	if got.Usage.TotalTokens != 17 || got.Usage.PromptTokens != 11 {
		t.Fatalf("usage not accumulated: %+v", got.Usage)
	}
}

func TestHistoryCapKeepsNewest(t *testing.T) {
	s, _ := newTestStore(3, 0)
	c := s.Create()
	for _, txt := range []string{"1", "2", "3", "4", "5"} {
		if _, err := s.Append(c.ID, Usage{}, Message{Role: RoleUser, Content: txt}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.Get(c.ID)
	if len(got.Messages) != 3 || got.Messages[0].Content != "3" || got.Messages[2].Content != "5" {
		t.Fatalf("unexpected history %+v", got.Messages)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(0, 0)
	c := s.Create()
	_, _ = s.Append(c.ID, Usage{}, Message{Role: RoleUser, Content: "a"})
	got, _ := s.Get(c.ID)
	got.Messages[0].Content = "mutated"
	again, _ := s.Get(c.ID)
	if again.Messages[0].Content != "a" {
		t.Fatalf("store shares its message slice with callers")
	}
}

func TestPurgeIdle(t *testing.T) {
	s, clk := newTestStore(0, time.Hour)
	old := s.Create()
	clk.t = clk.t.Add(50 * time.Minute)
	fresh := s.Create()
	clk.t = clk.t.Add(20 * time.Minute)

	if n := s.PurgeIdle(); n != 1 {
		t.Fatalf("expected one purged conversation, got %d", n)
	}
	if _, err := s.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected idle conversation to be gone, got %v", err)
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Fatalf("fresh conversation purged: %v", err)
	}
}

func TestDeleteAndUnknown(t *testing.T) {
	s, _ := newTestStore(0, 0)
	c := s.Create()
	if !s.Delete(c.ID) || s.Delete(c.ID) {
		t.Fatalf("delete should report existence exactly once")
	}
	if _, err := s.Append(c.ID, Usage{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}
