// Package corpus loads the curated question/answer knowledge base from
// disk. The file is read once at startup (or on an explicit rebuild);
// authoring and curation of the corpus happens outside this service.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lunara-health/lunara-api/internal/domain"
)

// Load reads a JSON array of {question, answer} records. Records with a
// blank question or answer are dropped rather than indexed as noise.
func Load(path string) ([]domain.QAPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}

	var raw []domain.QAPair
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}

	pairs := make([]domain.QAPair, 0, len(raw))
	for _, p := range raw {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		if p.Question == "" || p.Answer == "" {
			continue
		}
		pairs = append(pairs, p)
	}

	return pairs, nil
}
