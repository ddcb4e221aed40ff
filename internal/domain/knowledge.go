package domain

// QAPair is one curated question/answer record from the knowledge corpus.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// KnowledgeEntry is a corpus record together with its L2-normalized
// question embedding. Entries are immutable once the index is built.
type KnowledgeEntry struct {
	QAPair
	Embedding []float32 `json:"-"`
}

// Match is a single retrieval hit with its cosine similarity score.
type Match struct {
	Entry KnowledgeEntry `json:"entry"`
	Score float64        `json:"score"`
}

// RetrievalResult holds the top-k nearest corpus entries for a query,
// ordered by descending similarity (ties keep corpus order).
type RetrievalResult struct {
	Matches  []Match `json:"matches"`
	TopScore float64 `json:"top_score"`
}

// Top returns the best match, or false when the result is empty.
func (r RetrievalResult) Top() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}
