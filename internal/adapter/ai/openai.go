package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements port.GenerativeProvider using the OpenAI chat
// completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI-backed generative provider. With an
// empty API key the provider reports unavailable and every call fails,
// which the fallback chain treats as "skip to the next provider".
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &OpenAIProvider{client: client, model: model}
}

// Name returns the provider identifier used in config and logs.
func (p *OpenAIProvider) Name() string { return "openai" }

// Available reports whether the provider is configured with credentials.
func (p *OpenAIProvider) Available() bool { return p.client != nil }

// Generate sends the prompt as a system/user message pair and returns the
// completion text.
func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, contextChunks []string) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("openai: API key not configured")
	}

	user := userPrompt
	if len(contextChunks) > 0 {
		user = fmt.Sprintf("Relevant context:\n%s\n\nQuestion: %s", strings.Join(contextChunks, "\n"), userPrompt)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.3,
		MaxTokens:   300,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
