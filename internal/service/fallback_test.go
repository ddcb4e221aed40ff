package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/port"
)

// fakeProvider scripts one provider in the chain.
type fakeProvider struct {
	name   string
	answer string
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, _, _ string, _ []string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

var chainContext = []domain.KnowledgeEntry{
	{QAPair: domain.QAPair{Question: "ctx question", Answer: "ctx answer"}},
}

func TestChainFirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "primary", answer: "from primary"}
	secondary := &fakeProvider{name: "secondary", answer: "from secondary"}
	chain := NewFallbackChain(time.Second, primary, secondary)

	answer, err := chain.Generate(context.Background(), "question", chainContext)
	require.NoError(t, err)
	assert.Equal(t, "from primary", answer)
	assert.Equal(t, int32(0), secondary.calls.Load())
}

func TestChainAdvancesOnError(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("boom")}
	secondary := &fakeProvider{name: "secondary", answer: "X"}
	chain := NewFallbackChain(time.Second, primary, secondary)

	answer, err := chain.Generate(context.Background(), "question", chainContext)
	require.NoError(t, err)
	assert.Equal(t, "X", answer)
}

func TestChainAdvancesOnTimeout(t *testing.T) {
	slow := &fakeProvider{name: "slow", answer: "too late", delay: 200 * time.Millisecond}
	fast := &fakeProvider{name: "fast", answer: "X"}
	chain := NewFallbackChain(20*time.Millisecond, slow, fast)

	answer, err := chain.Generate(context.Background(), "question", chainContext)
	require.NoError(t, err)
	assert.Equal(t, "X", answer)
	assert.Equal(t, int32(1), slow.calls.Load())
}

func TestChainRejectsInvalidAnswers(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"empty", "   "},
		{"junk none", "None"},
		{"junk unknown", "unknown"},
		{"echo of the question", "what should I eat?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := &fakeProvider{name: "bad", answer: tt.answer}
			good := &fakeProvider{name: "good", answer: "eat iron-rich foods"}
			chain := NewFallbackChain(time.Second, bad, good)

			answer, err := chain.Generate(context.Background(), "what should I eat?", chainContext)
			require.NoError(t, err)
			assert.Equal(t, "eat iron-rich foods", answer)
		})
	}
}

func TestChainExhaustion(t *testing.T) {
	p1 := &fakeProvider{name: "p1", err: errors.New("transport")}
	p2 := &fakeProvider{name: "p2", answer: ""}
	p3 := &fakeProvider{name: "p3", delay: 100 * time.Millisecond, answer: "late"}
	chain := NewFallbackChain(10*time.Millisecond, p1, p2, p3)

	_, err := chain.Generate(context.Background(), "question", chainContext)
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrAllProvidersExhausted)
	assert.Equal(t, int32(1), p1.calls.Load())
	assert.Equal(t, int32(1), p2.calls.Load())
	assert.Equal(t, int32(1), p3.calls.Load())
}

func TestChainNoProviders(t *testing.T) {
	chain := NewFallbackChain(time.Second)
	_, err := chain.Generate(context.Background(), "question", chainContext)
	assert.ErrorIs(t, err, port.ErrAllProvidersExhausted)
}

func TestChainCallerCancellation(t *testing.T) {
	slow := &fakeProvider{name: "slow", answer: "never", delay: time.Second}
	next := &fakeProvider{name: "next", answer: "also never"}
	chain := NewFallbackChain(5*time.Second, slow, next)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := chain.Generate(ctx, "question", chainContext)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The in-flight call is abandoned and no further provider is tried.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(0), next.calls.Load())
}

func TestChainContextSerialization(t *testing.T) {
	chunks := serializeContext(chainContext)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Q: ctx question\nA: ctx answer", chunks[0])
}
