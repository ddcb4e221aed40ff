package service

import (
	"github.com/lunara-health/lunara-api/internal/domain"
)

// apologyAnswer is returned when every generative provider failed. The
// user still gets a normal 200 answer, never an error page.
const apologyAnswer = "I'm sorry, I'm having trouble connecting to my AI service right now. Please try again in a few moments."

// generatedConfidence is reported for successful fallback answers; the
// retrieval confidence does not apply to generated text.
const generatedConfidence = 0.95

// Compose assembles the final answer payload from the route decision, the
// retrieval result, and the fallback outcome. Pure function of its inputs.
func Compose(route Route, retrieval domain.RetrievalResult, confidence float64, fallbackText string, fallbackErr error) domain.AnswerPayload {
	if route == RouteKnowledgeBase {
		top, _ := retrieval.Top()
		return domain.AnswerPayload{
			Answer: top.Entry.Answer,
			Metadata: domain.AnswerMetadata{
				Source:     domain.SourceRAG,
				Confidence: confidence,
			},
			// The best match IS the answer; only suggest the rest.
			SimilarQuestions: similarQuestions(retrieval.Matches, 1),
		}
	}

	if fallbackErr != nil {
		return domain.AnswerPayload{
			Answer: apologyAnswer,
			Metadata: domain.AnswerMetadata{
				Source:     domain.SourceFallback,
				Confidence: 0,
			},
			SimilarQuestions: similarQuestions(retrieval.Matches, 0),
		}
	}

	return domain.AnswerPayload{
		Answer: fallbackText,
		Metadata: domain.AnswerMetadata{
			Source:     domain.SourceFallback,
			Confidence: generatedConfidence,
		},
		SimilarQuestions: similarQuestions(retrieval.Matches, 0),
	}
}

func similarQuestions(matches []domain.Match, skip int) []domain.QAPair {
	pairs := make([]domain.QAPair, 0, len(matches))
	for i, m := range matches {
		if i < skip {
			continue
		}
		pairs = append(pairs, m.Entry.QAPair)
	}
	return pairs
}
