package service

import (
	"strings"

	"github.com/lunara-health/lunara-api/internal/domain"
)

// Safety answers returned without touching retrieval or generation.
const (
	deescalationAnswer = "I'm really sorry you're feeling this way. I can't help with harming anyone. " +
		"Please do not do this. If you or someone is in immediate danger, call your local emergency number right now. " +
		"You deserve support. Consider contacting a crisis hotline or a mental health professional immediately. " +
		"If you can, reach out to a trusted person or your doctor or midwife for help."

	scopeRefusalAnswer = "I'm here to help with postpartum recovery, infant care, lactation, nutrition, mental health, " +
		"and when to seek medical care. Please don't use this assistant for programming or software tasks. " +
		"Ask a health-related question instead."
)

// harmTerms matches broadly on purpose: "hurt", "harm" and "beat" catch
// harm directed at others ("hurt my baby") at the cost of occasional
// false positives, which is the right tradeoff for a safety screen.
var harmTerms = []string{
	"kill", "murder", "stab", "shoot", "poison", "attack",
	"hurt", "harm", "beat",
	"suicide", "end my life",
}

var codeTerms = []string{
	"c++", "golang", "javascript", "typescript", "python script", "java program",
	"#include", "int main(", "public static void main", "console.log(", "def ", "function ",
	"select *", "insert into", "create table", "<html", "npm install", "pip install",
	"write code", "generate code", "code for", "program for", "script for", "algorithm for",
	"build an app", "create a website", "leetcode", "hackerrank",
}

// CheckGuardrails screens a message before it enters the retrieval
// pipeline. It returns a short-circuit answer and true when the message
// signals harm intent (de-escalation with emergency guidance) or asks for
// programming help (scope refusal).
func CheckGuardrails(message string) (domain.AnswerPayload, bool) {
	m := strings.ToLower(message)

	if containsAny(m, harmTerms) {
		return domain.AnswerPayload{
			Answer: deescalationAnswer,
			Metadata: domain.AnswerMetadata{
				Source:     domain.SourceSafety,
				Confidence: 1.0,
			},
			SimilarQuestions: []domain.QAPair{},
		}, true
	}

	if containsAny(m, codeTerms) {
		return domain.AnswerPayload{
			Answer: scopeRefusalAnswer,
			Metadata: domain.AnswerMetadata{
				Source:     domain.SourceGuardrails,
				Confidence: 1.0,
			},
			SimilarQuestions: []domain.QAPair{},
		}, true
	}

	return domain.AnswerPayload{}, false
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
