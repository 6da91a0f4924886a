package indexdb

import (
	"context"
	"database/sql"
	"time"
)

// SummaryRow aggregates intentions of one kind that ended with one result.
type SummaryRow struct {
	Kind          string
	Result        string
	Count         int
	AvgDurationMs float64
}

// Summary groups intentions by kind and result. An empty runID covers all
// runs.
func (s *SQLiteIndex) Summary(ctx context.Context, runID string) ([]SummaryRow, error) {
	q := `SELECT kind, result, COUNT(*), AVG(duration_ms) FROM intentions`
	var args []any
	if runID != "" {
		q += ` WHERE run_id=?`
		args = append(args, runID)
	}
	q += ` GROUP BY kind, result ORDER BY kind, result`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Kind, &r.Result, &r.Count, &r.AvgDurationMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists recorded runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, agent_name, server_url, strategy, started_at, ended_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.AgentName, &r.ServerURL, &r.Strategy, &started, &ended); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended.Valid {
			r.EndedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
