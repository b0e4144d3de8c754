package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	maxAttempts = 3
	// maxHistoryMessages bounds the per-conversation transcript kept in
	// memory for model context (20 turns of user+assistant pairs).
	maxHistoryMessages = 40
)

// OpenAI implements Generator using the OpenAI chat completions API.
// It keeps a bounded per-conversation transcript so the model sees
// recent history; the transcript lives for the process lifetime.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessageParamUnion
}

// NewOpenAI creates a Generator backed by the OpenAI API.
func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   openai.ChatModel(model),
		history: make(map[string][]openai.ChatCompletionMessageParamUnion),
	}
}

// Generate sends one chat completion request, retrying briefly on rate
// limits and server errors.
func (o *OpenAI) Generate(ctx context.Context, systemContext, conversationRef, userMessage string) (*Reply, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, maxHistoryMessages+2)
	messages = append(messages, openai.SystemMessage(systemContext))
	messages = append(messages, o.snapshotHistory(conversationRef)...)
	messages = append(messages, openai.UserMessage(userMessage))

	completion, err := o.completeWithRetry(ctx, openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	text := completion.Choices[0].Message.Content
	o.appendHistory(conversationRef, userMessage, text)

	return &Reply{Text: text, Raw: completion}, nil
}

func (o *OpenAI) completeWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	backoff := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !isRateLimitError(err) && !isServerError(err) {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff[attempt]):
		}
	}
	return nil, fmt.Errorf("completion failed after %d attempts: %w", maxAttempts, lastErr)
}

func (o *OpenAI) snapshotHistory(conversationRef string) []openai.ChatCompletionMessageParamUnion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]openai.ChatCompletionMessageParamUnion(nil), o.history[conversationRef]...)
}

func (o *OpenAI) appendHistory(conversationRef, userMessage, assistantReply string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := append(o.history[conversationRef],
		openai.UserMessage(userMessage),
		openai.AssistantMessage(assistantReply),
	)
	if len(h) > maxHistoryMessages {
		h = h[len(h)-maxHistoryMessages:]
	}
	o.history[conversationRef] = h
}

// ForgetConversation drops the in-memory transcript for a conversation.
func (o *OpenAI) ForgetConversation(conversationRef string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.history, conversationRef)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
