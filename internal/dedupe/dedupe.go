package dedupe

import (
	"github.com/tolosaweb/agenda/backend/internal/models"
)

// Deduplicate collapses events sharing a fingerprint. The first occurrence in
// input order wins; later duplicates are dropped without field merging.
func Deduplicate(events []models.Event) []models.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]models.Event, 0, len(events))

	for _, ev := range events {
		fp := ev.Fingerprint()
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, ev)
	}

	return out
}
