// Package assistant answers free-form farming questions through a chat
// completion provider, keeping per-session history in a store.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/store"
)

const providerName = "openai"

// SystemPrompt is sent ahead of every conversation.
const SystemPrompt = "You are a helpful assistant that answers in clear, simple English."

// Option bounds and defaults.
const (
	MinMaxTokens       = 32
	MaxMaxTokens       = 1024
	DefaultMaxTokens   = 256
	MinTemperature     = 0.0
	MaxTemperature     = 1.2
	DefaultTemperature = 0.7
)

// Options tune a single completion.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// DefaultOptions returns the options used when a request leaves them unset.
func DefaultOptions() Options {
	return Options{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature}
}

// Validate checks o against the allowed ranges.
func (o Options) Validate() error {
	if o.MaxTokens < MinMaxTokens || o.MaxTokens > MaxMaxTokens {
		return apperr.Inputf("max_tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens)
	}
	if o.Temperature < MinTemperature || o.Temperature > MaxTemperature {
		return apperr.Inputf("temperature must be between %.1f and %.1f", MinTemperature, MaxTemperature)
	}
	return nil
}

// Config configures the chat provider.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the provider default
	Model   string
}

// UsageObserver records token consumption per completion.
type UsageObserver interface {
	ObserveTokens(usage store.Usage)
}

// Reply is the answer to one prompt.
type Reply struct {
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Usage     store.Usage `json:"usage"`
	Session   store.Usage `json:"session_usage"`
}

// Assistant sends conversations to the chat provider.
type Assistant struct {
	client *openai.Client
	model  string
	store  *store.MemoryStore
	obs    UsageObserver
}

// New creates an Assistant. A missing API key is reported on first use, not here.
func New(cfg Config, conversations *store.MemoryStore, obs UsageObserver) *Assistant {
	a := &Assistant{model: cfg.Model, store: conversations, obs: obs}
	if a.model == "" {
		a.model = openai.GPT4oMini
	}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		a.client = openai.NewClientWithConfig(oc)
	}
	return a
}

// Configured reports whether a provider key is present.
func (a *Assistant) Configured() bool { return a.client != nil }

// Reply sends prompt within session sessionID and records both turns.
// An empty or unknown session id starts a new conversation.
func (a *Assistant) Reply(ctx context.Context, sessionID, prompt string, opts Options) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, apperr.Input("prompt is required")
	}
	if err := opts.Validate(); err != nil {
		return Reply{}, err
	}
	if a.client == nil {
		return Reply{}, apperr.Providerf(providerName, "API key is not configured")
	}

	conv, fresh, err := a.session(sessionID)
	if err != nil {
		return Reply{}, err
	}
	discard := func() {
		if fresh {
			a.store.Delete(conv.ID)
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    buildMessages(conv.Messages, prompt),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		discard()
		return Reply{}, providerError(err)
	}
	if len(resp.Choices) == 0 {
		discard()
		return Reply{}, apperr.Providerf(providerName, "completion returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	usage := store.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	updated, err := a.store.Append(conv.ID, usage,
		store.Message{Role: store.RoleUser, Content: prompt},
		store.Message{Role: store.RoleAssistant, Content: text},
	)
	if err != nil {
		// deleted while the completion was in flight
		log.Printf("INFO: conversation %s vanished before reply was stored: %v", conv.ID, err)
		updated = conv
		updated.Usage = conv.Usage.Add(usage)
	}
	if a.obs != nil {
		a.obs.ObserveTokens(usage)
	}

	return Reply{SessionID: updated.ID, Text: text, Usage: usage, Session: updated.Usage}, nil
}

// History returns the stored conversation for sessionID.
func (a *Assistant) History(sessionID string) (store.Conversation, error) {
	conv, err := a.store.Get(sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Conversation{}, apperr.Inputf("unknown session %q", sessionID)
	}
	return conv, err
}

// Forget drops a conversation. It reports whether one existed.
func (a *Assistant) Forget(sessionID string) bool {
	return a.store.Delete(sessionID)
}

// session returns the conversation for id, or a newly created one with fresh set.
func (a *Assistant) session(id string) (conv store.Conversation, fresh bool, err error) {
	if id != "" {
		conv, err = a.store.Get(id)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Conversation{}, false, err
		}
		log.Printf("DEBUG: session %s not found, starting a new conversation", id)
	}
	return a.store.Create(), true, nil
}

func buildMessages(history []store.Message, prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == store.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Provider(providerName, fmt.Errorf("status %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	return apperr.Provider(providerName, err)
}
