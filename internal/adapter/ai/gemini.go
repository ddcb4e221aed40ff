package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider implements port.GenerativeProvider against the Google
// Gemini generateContent API.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini-backed generative provider.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{},
	}
}

// Name returns the provider identifier used in config and logs.
func (g *GeminiProvider) Name() string { return "gemini" }

// Available reports whether the provider is configured with credentials.
func (g *GeminiProvider) Available() bool { return g.apiKey != "" }

// Generate sends the prompt (with context chunks inlined) and returns the
// generated text.
func (g *GeminiProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, contextChunks []string) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("gemini: API key not configured")
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{
				{"text": buildPrompt(systemPrompt, userPrompt, contextChunks)},
			}},
		},
		// Low temperature for medical accuracy.
		"generationConfig": map[string]any{
			"temperature":     0.3,
			"topK":            40,
			"topP":            0.95,
			"maxOutputTokens": 300,
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("gemini create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("gemini decode: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: no candidates in response")
	}

	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}

// buildPrompt flattens the system prompt, retrieved context, and question
// into a single text block for APIs without a native system/user split.
func buildPrompt(systemPrompt, userPrompt string, contextChunks []string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if len(contextChunks) > 0 {
		b.WriteString("\n\nBased on this medical context:\n")
		for _, chunk := range contextChunks {
			b.WriteString(chunk)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(userPrompt)
	return b.String()
}
