package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lunara-health/lunara-api/internal/adapter/corpus"
	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/index"
	"github.com/lunara-health/lunara-api/internal/port"
)

// State is the orchestrator lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Options configures the chat pipeline.
type Options struct {
	CorpusPath          string
	ConfidenceThreshold float64
	TopK                int
	FallbackEnabled     bool
}

// ChatService orchestrates a chat turn: embed the query, retrieve from the
// knowledge index, route on confidence, optionally run the generative
// fallback chain, and compose the answer payload.
//
// Initialization policy: the first caller (explicit Initialize or a lazy
// HandleMessage) builds the corpus index while holding the build lock;
// concurrent Initialize calls block on that lock and then observe Ready.
// HandleMessage calls that land mid-build fail fast with ErrNotReady
// instead of queueing, keeping chat latency bounded.
type ChatService struct {
	embedder port.Embedder
	chain    *FallbackChain

	buildMu sync.Mutex // serializes corpus builds; duplicate inits collapse to a no-op

	mu              sync.RWMutex // guards everything below
	state           State
	idx             *index.Index
	corpusPath      string
	threshold       float64
	topK            int
	fallbackEnabled bool
}

// NewChatService creates the orchestrator in the Uninitialized state.
func NewChatService(embedder port.Embedder, chain *FallbackChain, opts Options) *ChatService {
	threshold := opts.ConfidenceThreshold
	if threshold < 0 || threshold > 1 {
		threshold = 0.6
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 3
	}
	return &ChatService{
		embedder:        embedder,
		chain:           chain,
		corpusPath:      opts.CorpusPath,
		threshold:       threshold,
		topK:            topK,
		fallbackEnabled: opts.FallbackEnabled,
	}
}

// State returns the current lifecycle state.
func (s *ChatService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Initialize builds the corpus index. Idempotent: once Ready it returns
// immediately, and concurrent callers all observe Ready after exactly one
// build. A Failed service retries the full build, so a transient failure
// (corpus briefly missing, embedder briefly down) clears on the next call.
func (s *ChatService) Initialize(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if s.State() == StateReady {
		slog.Info("assistant already initialized (skipping)")
		return nil
	}

	return s.build(ctx, nil)
}

// Rebuild re-embeds the corpus from disk and swaps the index in
// atomically. While a Ready service rebuilds, readers keep using the old
// index; a Failed or Uninitialized service goes through Initializing.
// The optional progress callback receives (embedded, total) updates.
func (s *ChatService) Rebuild(ctx context.Context, progress func(done, total int)) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.build(ctx, progress)
}

// build runs under buildMu.
func (s *ChatService) build(ctx context.Context, progress func(done, total int)) error {
	s.mu.Lock()
	wasReady := s.state == StateReady
	if !wasReady {
		s.state = StateInitializing
	}
	corpusPath := s.corpusPath
	s.mu.Unlock()

	slog.Info("building knowledge index", "corpus", corpusPath)

	pairs, err := corpus.Load(corpusPath)
	if err != nil {
		return s.failBuild(wasReady, fmt.Errorf("load corpus: %w", err))
	}
	if len(pairs) == 0 {
		return s.failBuild(wasReady, port.ErrCorpusEmpty)
	}

	idx, err := index.BuildWithProgress(ctx, s.embedder, pairs, progress)
	if err != nil {
		return s.failBuild(wasReady, fmt.Errorf("build index: %w", err))
	}

	s.mu.Lock()
	s.idx = idx
	s.state = StateReady
	s.mu.Unlock()

	slog.Info("knowledge index ready", "entries", idx.Size())
	return nil
}

// failBuild records a build failure. A rebuild on a Ready service keeps
// serving the old index instead of going dark.
func (s *ChatService) failBuild(wasReady bool, err error) error {
	s.mu.Lock()
	if !wasReady {
		s.state = StateFailed
	}
	s.mu.Unlock()
	slog.Error("knowledge index build failed", "error", err)
	return err
}

// HandleMessage runs one query through the full pipeline and returns the
// answer payload. Chat-content failures degrade into a valid payload; the
// only errors returned are readiness (ErrNotReady), rejected input
// (ErrEmptyQuery), and caller cancellation.
func (s *ChatService) HandleMessage(ctx context.Context, message string) (domain.AnswerPayload, error) {
	switch s.State() {
	case StateReady:
		// proceed
	case StateUninitialized:
		// Lazy init: the first message pays the build cost.
		if err := s.Initialize(ctx); err != nil {
			return domain.AnswerPayload{}, fmt.Errorf("%w: %v", port.ErrNotReady, err)
		}
	default:
		return domain.AnswerPayload{}, port.ErrNotReady
	}

	s.mu.RLock()
	idx := s.idx
	threshold := s.threshold
	topK := s.topK
	fallbackEnabled := s.fallbackEnabled
	s.mu.RUnlock()

	retrieval, err := idx.Query(ctx, message, topK)
	if err != nil {
		if errors.Is(err, port.ErrEmptyQuery) {
			return domain.AnswerPayload{}, err
		}
		if errors.Is(err, port.ErrIndexNotReady) {
			return domain.AnswerPayload{}, port.ErrNotReady
		}
		return domain.AnswerPayload{}, fmt.Errorf("retrieve: %w", err)
	}

	route, confidence := Decide(retrieval.TopScore, threshold)
	slog.Info("chat query routed",
		"route", route.String(),
		"confidence", confidence,
		"threshold", threshold,
		"best_match", retrieval.Matches[0].Entry.Question,
	)

	if route == RouteKnowledgeBase {
		return Compose(route, retrieval, confidence, "", nil), nil
	}

	if !fallbackEnabled {
		// Operator turned generation off; serve the best corpus match
		// even below threshold rather than apologize.
		return Compose(RouteKnowledgeBase, retrieval, confidence, "", nil), nil
	}

	entries := make([]domain.KnowledgeEntry, len(retrieval.Matches))
	for i, m := range retrieval.Matches {
		entries[i] = m.Entry
	}

	generated, genErr := s.chain.Generate(ctx, message, entries)
	if genErr != nil && ctx.Err() != nil {
		// Caller went away; there is nobody to apologize to.
		return domain.AnswerPayload{}, ctx.Err()
	}

	return Compose(route, retrieval, confidence, generated, genErr), nil
}

// Search runs retrieval only, without routing or generation. Used by the
// MCP tools to expose the raw knowledge base.
func (s *ChatService) Search(ctx context.Context, query string, k int) ([]domain.Match, error) {
	switch s.State() {
	case StateReady:
	case StateUninitialized:
		if err := s.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", port.ErrNotReady, err)
		}
	default:
		return nil, port.ErrNotReady
	}

	s.mu.RLock()
	idx := s.idx
	topK := s.topK
	s.mu.RUnlock()

	if k <= 0 {
		k = topK
	}
	retrieval, err := idx.Query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return retrieval.Matches, nil
}

// --- runtime settings ---

// Threshold returns the current confidence threshold.
func (s *ChatService) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold updates the confidence threshold; values outside [0,1] are
// rejected.
func (s *ChatService) SetThreshold(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("threshold %v out of range [0,1]", v)
	}
	s.mu.Lock()
	s.threshold = v
	s.mu.Unlock()
	return nil
}

// FallbackEnabled reports whether the generative fallback chain is active.
func (s *ChatService) FallbackEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallbackEnabled
}

// SetFallbackEnabled toggles the generative fallback chain.
func (s *ChatService) SetFallbackEnabled(enabled bool) {
	s.mu.Lock()
	s.fallbackEnabled = enabled
	s.mu.Unlock()
}

// CorpusSize returns the number of indexed Q&A pairs (0 before build).
func (s *ChatService) CorpusSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Size()
}

// ProviderNames returns the fallback chain's providers in priority order.
func (s *ChatService) ProviderNames() []string {
	return s.chain.ProviderNames()
}
