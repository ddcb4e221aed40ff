package service

import "math"

// Route selects how an answer is produced for a query.
type Route int

const (
	// RouteKnowledgeBase answers verbatim from the best corpus match.
	RouteKnowledgeBase Route = iota
	// RouteFallback sends the query through the generative fallback chain.
	RouteFallback
)

func (r Route) String() string {
	if r == RouteKnowledgeBase {
		return "knowledge_base"
	}
	return "fallback"
}

// Decide converts a retrieval top score into a route and a normalized
// confidence in [0,1]. Confidence is the raw cosine similarity
// floor-clamped at zero; with unit vectors it cannot exceed 1, so no
// further smoothing is applied.
//
// The threshold is an operator knob: lower values answer more queries
// straight from the curated corpus, higher values hand more queries to
// the generative fallback.
func Decide(topScore, threshold float64) (Route, float64) {
	confidence := math.Max(0, topScore)
	if confidence >= threshold {
		return RouteKnowledgeBase, confidence
	}
	return RouteFallback, confidence
}
