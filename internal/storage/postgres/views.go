package postgres

import (
	"fmt"

	"gorm.io/gorm"
)

// materializedView pairs a view definition with the unique column that
// REFRESH MATERIALIZED VIEW CONCURRENTLY requires an index on.
type materializedView struct {
	name      string
	uniqueCol string
	query     string
}

// Materialized performance views. Refreshed by the nightly maintenance batch,
// not on write, so reads off them are cheap but up to a day stale.
var performanceViews = []materializedView{
	{
		name:      "integration_performance_overview",
		uniqueCol: "integration_id",
		query: `
			SELECT
				i.id AS integration_id,
				i.user_id,
				i.service_name,
				i.display_name,
				i.enabled,
				COUNT(e.id) AS total_executions,
				COUNT(e.id) FILTER (WHERE e.status = 'completed') AS completed_executions,
				COUNT(e.id) FILTER (WHERE e.status = 'failed') AS failed_executions,
				COALESCE(AVG(e.duration_ms) FILTER (WHERE e.status = 'completed'), 0) AS avg_duration_ms,
				MAX(e.created_at) AS last_execution_at
			FROM integrations i
			LEFT JOIN integration_executions e ON e.integration_id = i.id
			WHERE i.deleted_at IS NULL
			GROUP BY i.id, i.user_id, i.service_name, i.display_name, i.enabled`,
	},
	{
		name:      "workflow_schedule_performance_overview",
		uniqueCol: "schedule_id",
		query: `
			SELECT
				s.id AS schedule_id,
				s.user_id,
				s.name,
				s.enabled,
				COUNT(se.id) AS total_firings,
				COUNT(se.id) FILTER (WHERE se.status = 'completed') AS completed_firings,
				COUNT(se.id) FILTER (WHERE se.status = 'failed') AS failed_firings,
				COALESCE(AVG(se.duration_ms), 0) AS avg_duration_ms,
				MAX(se.started_at) AS last_fired_at
			FROM workflow_schedules s
			LEFT JOIN schedule_executions se ON se.schedule_id = s.id
			WHERE s.deleted_at IS NULL
			GROUP BY s.id, s.user_id, s.name, s.enabled`,
	},
	{
		name:      "workflow_performance_summary",
		uniqueCol: "workflow_id",
		query: `
			SELECT
				w.id AS workflow_id,
				w.user_id,
				w.name,
				COUNT(e.id) AS total_executions,
				COUNT(e.id) FILTER (WHERE e.status = 'completed') AS completed_executions,
				COUNT(e.id) FILTER (WHERE e.status = 'failed') AS failed_executions,
				COALESCE(AVG(e.duration_ms) FILTER (WHERE e.status = 'completed'), 0) AS avg_duration_ms,
				MAX(e.created_at) AS last_execution_at
			FROM workflows w
			LEFT JOIN workflow_executions e ON e.workflow_id = w.id
			WHERE w.deleted_at IS NULL
			GROUP BY w.id, w.user_id, w.name`,
	},
}

func ensureViews(db *gorm.DB) error {
	for _, v := range performanceViews {
		stmt := fmt.Sprintf(`CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS %s`, v.name, v.query)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("creating view %s: %w", v.name, err)
		}
		// Unique index so the view can be refreshed CONCURRENTLY.
		idx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_unique ON %s (%s)`,
			v.name, v.name, v.uniqueCol)
		if err := db.Exec(idx).Error; err != nil {
			return fmt.Errorf("indexing view %s: %w", v.name, err)
		}
	}
	return nil
}
