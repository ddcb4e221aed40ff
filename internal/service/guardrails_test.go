package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunara-health/lunara-api/internal/domain"
)

func TestGuardrailsHarmIntent(t *testing.T) {
	messages := []string{
		"I want to hurt myself",
		"sometimes I think about suicide",
		"I am going to end my life",
		// Harm directed at others must short-circuit too.
		"I want to hurt my baby",
		"sometimes I think about harming the baby",
		"I might beat him",
	}
	for _, msg := range messages {
		payload, triggered := CheckGuardrails(msg)
		require.True(t, triggered, "message %q should trigger safety guardrail", msg)
		assert.Equal(t, domain.SourceSafety, payload.Metadata.Source)
		assert.Equal(t, 1.0, payload.Metadata.Confidence)
		assert.Contains(t, payload.Answer, "emergency")
		assert.Empty(t, payload.SimilarQuestions)
	}
}

func TestGuardrailsCodeRequests(t *testing.T) {
	messages := []string{
		"write code for a fibonacci function",
		"give me a python script for web scraping",
		"how do I solve this leetcode problem",
	}
	for _, msg := range messages {
		payload, triggered := CheckGuardrails(msg)
		require.True(t, triggered, "message %q should trigger scope guardrail", msg)
		assert.Equal(t, domain.SourceGuardrails, payload.Metadata.Source)
	}
}

func TestGuardrailsPassThrough(t *testing.T) {
	messages := []string{
		"What are the signs of postpartum depression?",
		"my baby won't sleep at night",
		"is it normal to feel tired all the time",
	}
	for _, msg := range messages {
		_, triggered := CheckGuardrails(msg)
		assert.False(t, triggered, "message %q should pass through", msg)
	}
}

func TestSentiment(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantLabel string
	}{
		{"negative", "I feel sad and hopeless and tired", "negative"},
		{"positive", "feeling happy and grateful today, much better", "positive"},
		{"neutral no hits", "the baby fed at noon", "neutral"},
		{"mixed balances out", "sad but hopeful", "neutral"},
		{"empty", "", "neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := AnalyzeSentiment(tt.text)
			assert.Equal(t, tt.wantLabel, s.Label)
			assert.GreaterOrEqual(t, s.Score, -1.0)
			assert.LessOrEqual(t, s.Score, 1.0)
		})
	}
}

func TestSentimentIgnoresPunctuation(t *testing.T) {
	s := AnalyzeSentiment("I'm so sad, tired... and worried!")
	assert.Equal(t, "negative", s.Label)
	assert.Equal(t, -1.0, s.Score)
}
