package port

import "context"

// Embedder maps free text to dense vectors. Implementations must use the
// same model for corpus build and query embedding, otherwise similarity
// scores are meaningless.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerativeProvider is one backend in the generative fallback chain.
// Implementations can target Gemini, OpenAI, Hugging Face, Ollama, or any
// compatible API.
type GenerativeProvider interface {
	// Name returns a short identifier used in config and logs.
	Name() string

	// Generate sends a prompt with optional context chunks and returns the
	// model's answer. Implementations must honor ctx cancellation so an
	// abandoned request does not run to completion.
	Generate(ctx context.Context, systemPrompt, userPrompt string, contextChunks []string) (string, error)
}
