package domain

import "time"

// Answer sources reported in response metadata.
const (
	SourceRAG        = "rag"
	SourceFallback   = "fallback"
	SourceSafety     = "safety"
	SourceGuardrails = "guardrails"
)

// AnswerMetadata describes how an answer was produced.
type AnswerMetadata struct {
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// AnswerPayload is the external chat contract. It is built once per
// request and never mutated afterwards.
type AnswerPayload struct {
	Answer           string         `json:"answer"`
	Metadata         AnswerMetadata `json:"metadata"`
	SimilarQuestions []QAPair       `json:"similar_questions"`
}

// Sentiment is a coarse polarity tag attached to stored user turns.
type Sentiment struct {
	Score float64 `json:"score"` // [-1, 1]
	Label string  `json:"label"` // positive | neutral | negative
}

// ChatMessage is one stored turn of a conversation.
type ChatMessage struct {
	ID        string     `json:"id"         db:"id"`
	ChatID    string     `json:"chat_id"    db:"chat_id"`
	Sender    string     `json:"sender"     db:"sender"` // user | bot
	Text      string     `json:"text"       db:"text"`
	Sentiment *Sentiment `json:"sentiment,omitempty" db:"-"`
	CreatedAt time.Time  `json:"timestamp"  db:"created_at"`
}

// ChatSession is a stored conversation between a user and the assistant.
type ChatSession struct {
	ID            string    `json:"id"              db:"id"`
	UserID        string    `json:"user_id"         db:"user_id"`
	CreatedAt     time.Time `json:"created_at"      db:"created_at"`
	LastMessageAt time.Time `json:"last_message_at" db:"last_message_at"`
	MessageCount  int       `json:"message_count"   db:"message_count"`
	Preview       string    `json:"preview"         db:"preview"`
}
