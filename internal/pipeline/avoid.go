package pipeline

import (
	"strings"

	"storyteller/internal/domain"
)

// DefaultFingerprintWindow is how many earlier stories feed the avoid list.
const DefaultFingerprintWindow = 5

// BuildAvoidList keeps fingerprints that carry both a setting and a conflict.
// Order and duplicates are preserved; the generator reads the list as hints.
func BuildAvoidList(fingerprints []domain.Fingerprint) []domain.AvoidPair {
	pairs := make([]domain.AvoidPair, 0, len(fingerprints))
	for _, fp := range fingerprints {
		if strings.TrimSpace(fp.Setting) == "" || strings.TrimSpace(fp.Conflict) == "" {
			continue
		}
		pairs = append(pairs, domain.AvoidPair{Setting: fp.Setting, Conflict: fp.Conflict})
	}
	return pairs
}
