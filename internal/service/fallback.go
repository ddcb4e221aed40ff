package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/port"
)

// fallbackSystemPrompt keeps generated answers inside the care domain.
const fallbackSystemPrompt = `You are a healthcare assistant specializing in postpartum care and baby development.
Strictly stay within postpartum care, maternal health, lactation, infant care, nutrition, and mental health.
Do NOT generate or explain computer code, algorithms, or software development tasks; if asked, politely redirect to health topics.
Provide helpful, accurate, and empathetic answers. Always prioritize safety and recommend consulting healthcare providers for serious medical concerns.`

// junkAnswers are provider outputs treated as failures.
var junkAnswers = map[string]struct{}{
	"":             {},
	"none":         {},
	"unknown":      {},
	"error":        {},
	"i don't know": {},
}

// FallbackChain tries generative providers in a fixed priority order until
// one returns a usable answer. Each attempt gets its own timeout so a
// hanging provider cannot eat the whole request budget; a timed-out
// provider is skipped, not retried.
type FallbackChain struct {
	providers []port.GenerativeProvider
	timeout   time.Duration
}

// NewFallbackChain creates a chain that tries providers in argument order.
func NewFallbackChain(timeout time.Duration, providers ...port.GenerativeProvider) *FallbackChain {
	return &FallbackChain{providers: providers, timeout: timeout}
}

// ProviderNames returns the chain's provider identifiers in priority order.
func (f *FallbackChain) ProviderNames() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate asks each provider in turn, passing the retrieved entries as
// context. It returns the first validated answer, ErrAllProvidersExhausted
// when every provider fails, or the context error if the caller cancels.
func (f *FallbackChain) Generate(ctx context.Context, query string, retrieved []domain.KnowledgeEntry) (string, error) {
	chunks := serializeContext(retrieved)

	var failures []error
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		answer, err := p.Generate(callCtx, fallbackSystemPrompt, query, chunks)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// Caller cancelled mid-call; don't keep burning providers.
				return "", ctx.Err()
			}
			slog.Warn("fallback provider failed", "provider", p.Name(), "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		if err := validateAnswer(query, answer); err != nil {
			slog.Warn("fallback provider rejected", "provider", p.Name(), "reason", err)
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		slog.Info("fallback provider succeeded", "provider", p.Name())
		return strings.TrimSpace(answer), nil
	}

	return "", fmt.Errorf("%w: %v", port.ErrAllProvidersExhausted, errors.Join(failures...))
}

// validateAnswer rejects responses that are empty, junk, or an echo of
// the question. Such answers count as provider failures.
func validateAnswer(query, answer string) error {
	trimmed := strings.TrimSpace(answer)
	if _, junk := junkAnswers[strings.ToLower(trimmed)]; junk {
		return fmt.Errorf("%w: empty or junk answer", port.ErrInvalidResponse)
	}
	if strings.EqualFold(trimmed, strings.TrimSpace(query)) {
		return fmt.Errorf("%w: answer echoes the question", port.ErrInvalidResponse)
	}
	return nil
}

// serializeContext renders retrieved corpus entries as Q/A pairs for the
// generative prompt.
func serializeContext(entries []domain.KnowledgeEntry) []string {
	chunks := make([]string, len(entries))
	for i, e := range entries {
		chunks[i] = fmt.Sprintf("Q: %s\nA: %s", e.Question, e.Answer)
	}
	return chunks
}
