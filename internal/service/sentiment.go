package service

import (
	"strings"

	"github.com/lunara-health/lunara-api/internal/domain"
)

// Keyword lexicon for coarse polarity tagging of user messages. Good
// enough for trend dashboards; clinical screening uses its own flow.
var negativeWords = map[string]struct{}{
	"sad": {}, "anxious": {}, "depressed": {}, "down": {}, "bad": {}, "terrible": {},
	"awful": {}, "cry": {}, "hopeless": {}, "tired": {}, "angry": {}, "worried": {},
	"scared": {}, "panic": {}, "overwhelmed": {}, "helpless": {}, "worthless": {},
	"lonely": {}, "guilty": {},
}

var positiveWords = map[string]struct{}{
	"happy": {}, "good": {}, "great": {}, "relieved": {}, "calm": {}, "hopeful": {},
	"okay": {}, "fine": {}, "better": {}, "improving": {}, "proud": {}, "grateful": {},
	"supported": {}, "encouraged": {}, "strong": {}, "confident": {}, "peaceful": {},
	"loved": {},
}

// AnalyzeSentiment scores text in [-1,1] from lexicon hits and labels it
// positive, neutral, or negative with cutoffs at +-0.05.
func AnalyzeSentiment(text string) domain.Sentiment {
	var pos, neg int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}

	var score float64
	if pos+neg > 0 {
		score = float64(pos-neg) / float64(pos+neg)
	}

	label := "neutral"
	switch {
	case score >= 0.05:
		label = "positive"
	case score <= -0.05:
		label = "negative"
	}

	return domain.Sentiment{Score: score, Label: label}
}
