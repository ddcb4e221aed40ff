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

const defaultHFBaseURL = "https://api-inference.huggingface.co/models"

// HFProvider implements port.GenerativeProvider against the Hugging Face
// Inference API.
type HFProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewHFProvider creates a Hugging Face-backed generative provider.
func NewHFProvider(apiKey, model string) *HFProvider {
	return &HFProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultHFBaseURL,
		httpClient: &http.Client{},
	}
}

// Name returns the provider identifier used in config and logs.
func (h *HFProvider) Name() string { return "huggingface" }

// Available reports whether the provider is configured with credentials.
func (h *HFProvider) Available() bool { return h.apiKey != "" }

// Generate sends the prompt and returns the generated text.
func (h *HFProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, contextChunks []string) (string, error) {
	if h.apiKey == "" {
		return "", fmt.Errorf("huggingface: API key not configured")
	}

	payload := map[string]any{
		"inputs": buildPrompt(systemPrompt, userPrompt, contextChunks),
		"parameters": map[string]any{
			"max_new_tokens":     150,
			"temperature":        0.7,
			"top_p":              0.9,
			"do_sample":          true,
			"return_full_text":   false,
			"repetition_penalty": 1.1,
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("huggingface marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+h.model, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("huggingface create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("huggingface API error (%d): %s", resp.StatusCode, string(body))
	}

	answer, err := parseHFResponse(body)
	if err != nil {
		return "", err
	}
	return answer, nil
}

// parseHFResponse handles both formats the inference API returns: a list
// of generations or a single object.
func parseHFResponse(body []byte) (string, error) {
	var list []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return cleanHFText(list[0].GeneratedText), nil
	}

	var single struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return cleanHFText(single.GeneratedText), nil
	}

	return "", fmt.Errorf("huggingface: unexpected response format: %s", string(body))
}

func cleanHFText(s string) string {
	s = strings.ReplaceAll(s, "</s>", "")
	s = strings.ReplaceAll(s, "<s>", "")
	return strings.TrimSpace(s)
}
