package tasks

import (
	"context"
	"database/sql"
	"time"

	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/data/store"
	"dagger/internal/engine/graph"
)

// Directory answers task lookups from the tasks table that lives next to the
// component records.
type Directory struct {
	db      *sql.DB
	dialect store.Dialect
}

var _ ports.TaskDirectory = (*Directory)(nil)

func NewDirectory(db *sql.DB, dialect store.Dialect) *Directory {
	return &Directory{db: db, dialect: dialect}
}

// TasksExistAndBelongToTeam reports whether every id names a task of team.
// Duplicate ids are counted once.
func (d *Directory) TasksExistAndBelongToTeam(ctx context.Context, ids []graph.NodeID, team graph.TeamID) (bool, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return true, nil
	}
	args := make([]any, 0, len(unique)+1)
	args = append(args, team.String())
	for _, id := range unique {
		args = append(args, id.String())
	}

	query := d.dialect.Rebind(`SELECT COUNT(*) FROM tasks WHERE team_id = ? AND id IN (` + store.Placeholders(len(unique)) + `)`)
	var count int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, errors.CodeStorage, "count team tasks")
	}
	return count == len(unique), nil
}

// ResolveTasksByIDs returns the summaries of the tasks that exist, ordered by
// id. Unknown ids are skipped.
func (d *Directory) ResolveTasksByIDs(ctx context.Context, ids []graph.NodeID) ([]ports.TaskSummary, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(unique))
	for _, id := range unique {
		args = append(args, id.String())
	}

	query := d.dialect.Rebind(`SELECT id, team_id, title, status, created_at_ms FROM tasks WHERE id IN (` +
		store.Placeholders(len(unique)) + `) ORDER BY id`)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "resolve tasks")
	}
	defer rows.Close()

	out := make([]ports.TaskSummary, 0, len(unique))
	for rows.Next() {
		var (
			rawID, rawTeam, title, status string
			created                       int64
		)
		if err := rows.Scan(&rawID, &rawTeam, &title, &status, &created); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "scan task row")
		}
		id, err := graph.ParseNodeID(rawID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "corrupt task row")
		}
		team, err := graph.ParseTeamID(rawTeam)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "corrupt task row")
		}
		out = append(out, ports.TaskSummary{
			ID:        id,
			TeamID:    team,
			Title:     title,
			Status:    status,
			CreatedAt: time.UnixMilli(created).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "iterate task rows")
	}
	return out, nil
}

// Upsert stores or replaces a task row. The engine never writes tasks itself;
// this exists for seeding and the CLI.
func (d *Directory) Upsert(ctx context.Context, task ports.TaskSummary) error {
	created := task.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	status := task.Status
	if status == "" {
		status = "todo"
	}
	_, err := d.db.ExecContext(ctx, d.dialect.Rebind(`
INSERT INTO tasks (id, team_id, title, status, created_at_ms) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET team_id = excluded.team_id, title = excluded.title, status = excluded.status`),
		task.ID.String(), task.TeamID.String(), task.Title, status, created.UnixMilli())
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "upsert task")
	}
	return nil
}

func uniqueIDs(ids []graph.NodeID) []graph.NodeID {
	set := graph.NewNodeSet(ids...)
	return set.Sorted()
}
