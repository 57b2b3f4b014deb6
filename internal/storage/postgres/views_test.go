package postgres

import (
	"strings"
	"testing"
)

func TestPerformanceViewDefinitions(t *testing.T) {
	// Dashboard consumers query these views by name; renaming one is a
	// breaking change.
	want := map[string]string{
		"integration_performance_overview":       "integration_id",
		"workflow_schedule_performance_overview": "schedule_id",
	}

	byName := make(map[string]materializedView, len(performanceViews))
	for _, v := range performanceViews {
		byName[v.name] = v
	}

	for name, col := range want {
		v, ok := byName[name]
		if !ok {
			t.Errorf("view %s not defined", name)
			continue
		}
		if v.uniqueCol != col {
			t.Errorf("view %s unique column = %s, want %s", name, v.uniqueCol, col)
		}
	}

	// Every view needs a unique column for the concurrent refresh, and the
	// column must appear in its definition.
	for _, v := range performanceViews {
		if v.uniqueCol == "" {
			t.Errorf("view %s has no unique column", v.name)
		}
		if !strings.Contains(v.query, v.uniqueCol) {
			t.Errorf("view %s query does not produce column %s", v.name, v.uniqueCol)
		}
	}
}
