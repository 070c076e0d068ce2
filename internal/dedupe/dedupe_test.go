package dedupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolosaweb/agenda/backend/internal/dedupe"
	"github.com/tolosaweb/agenda/backend/internal/models"
)

func TestDeduplicateCollapsesSameComposite(t *testing.T) {
	date := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Title: "Concert Jazz", Date: date, Location: "Toulouse", Source: "source-a"},
		{Title: "Concert Jazz", Date: date, Location: "Toulouse", Source: "source-b"},
	}

	out := dedupe.Deduplicate(events)
	require.Len(t, out, 1)
	require.Equal(t, "source-a", out[0].Source)
}

func TestDeduplicateNormalizesCaseAndSpacing(t *testing.T) {
	date := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Title: "Concert  Jazz", Date: date, Location: "TOULOUSE"},
		{Title: "concert jazz", Date: date.Add(2 * time.Hour), Location: "Toulouse"},
	}

	out := dedupe.Deduplicate(events)
	require.Len(t, out, 1)
}

func TestDeduplicateExplicitIDWins(t *testing.T) {
	date := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	events := []models.Event{
		{ID: "guid-1", Title: "Concert Jazz", Date: date, Location: "Toulouse"},
		{ID: "guid-1", Title: "Concert Jazz (updated)", Date: date, Location: "Toulouse"},
		{ID: "guid-2", Title: "Concert Jazz", Date: date, Location: "Toulouse"},
	}

	out := dedupe.Deduplicate(events)
	require.Len(t, out, 2)
	require.Equal(t, "guid-1", out[0].ID)
	require.Equal(t, "guid-2", out[1].ID)
}

func TestDeduplicatePreservesOrder(t *testing.T) {
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Title: "a", Date: date},
		{Title: "b", Date: date},
		{Title: "a", Date: date},
		{Title: "c", Date: date},
	}

	out := dedupe.Deduplicate(events)
	require.Len(t, out, 3)
	require.Equal(t, "a", out[0].Title)
	require.Equal(t, "b", out[1].Title)
	require.Equal(t, "c", out[2].Title)

	seen := make(map[string]struct{})
	for _, ev := range out {
		fp := ev.Fingerprint()
		_, dup := seen[fp]
		require.False(t, dup)
		seen[fp] = struct{}{}
	}
}

func TestDeduplicateEmpty(t *testing.T) {
	require.Empty(t, dedupe.Deduplicate(nil))
}
