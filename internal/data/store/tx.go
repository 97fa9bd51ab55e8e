package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"
)

const (
	selectComponents = `SELECT component_id, team_id, adjacency, created_at_ms, updated_at_ms FROM dag_components`
	edgeBatchSize    = 200
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type componentTx struct {
	tx      *sql.Tx
	dialect Dialect
	now     func() time.Time
}

var _ ports.ComponentTx = (*componentTx)(nil)

func (t *componentTx) FindByNodes(ctx context.Context, nodes []graph.NodeID) ([]graph.Component, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(nodes)*2)
	for _, id := range nodes {
		args = append(args, id.String())
	}
	args = append(args, args...)

	in := Placeholders(len(nodes))
	query := t.dialect.Rebind(selectComponents + `
WHERE component_id IN (
  SELECT component_id FROM dag_edges WHERE from_task_id IN (` + in + `) OR to_task_id IN (` + in + `)
)
ORDER BY created_at_ms ASC, component_id ASC`)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("find components by nodes", err)
	}
	return scanComponents(rows)
}

func (t *componentTx) Get(ctx context.Context, id graph.ComponentID) (graph.Component, error) {
	return getComponent(ctx, t.tx, t.dialect, id)
}

func (t *componentTx) Insert(ctx context.Context, c graph.Component) error {
	raw, err := graph.EncodeAdjacency(c.Adjacency)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "encode component")
	}
	now := t.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err = t.tx.ExecContext(ctx, t.dialect.Rebind(`
INSERT INTO dag_components (component_id, team_id, adjacency, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?)`),
		c.ID.String(), c.TeamID.String(), string(raw), c.CreatedAt.UnixMilli(), now.UnixMilli())
	if err != nil {
		return classify("insert component", err)
	}
	return t.insertEdges(ctx, c)
}

func (t *componentTx) Update(ctx context.Context, c graph.Component) error {
	raw, err := graph.EncodeAdjacency(c.Adjacency)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "encode component")
	}
	res, err := t.tx.ExecContext(ctx, t.dialect.Rebind(`
UPDATE dag_components SET adjacency = ?, updated_at_ms = ? WHERE component_id = ?`),
		string(raw), t.now().UnixMilli(), c.ID.String())
	if err != nil {
		return classify("update component", err)
	}
	if err := expectOneRow(res, c.ID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, t.dialect.Rebind(`DELETE FROM dag_edges WHERE component_id = ?`), c.ID.String()); err != nil {
		return classify("clear component edges", err)
	}
	return t.insertEdges(ctx, c)
}

func (t *componentTx) Delete(ctx context.Context, id graph.ComponentID) error {
	if _, err := t.tx.ExecContext(ctx, t.dialect.Rebind(`DELETE FROM dag_edges WHERE component_id = ?`), id.String()); err != nil {
		return classify("delete component edges", err)
	}
	res, err := t.tx.ExecContext(ctx, t.dialect.Rebind(`DELETE FROM dag_components WHERE component_id = ?`), id.String())
	if err != nil {
		return classify("delete component", err)
	}
	return expectOneRow(res, id)
}

// insertEdges mirrors the adjacency into dag_edges, which backs node lookups.
func (t *componentTx) insertEdges(ctx context.Context, c graph.Component) error {
	edges := c.Adjacency.Edges()
	for start := 0; start < len(edges); start += edgeBatchSize {
		end := start + edgeBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[start:end]

		values := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*4)
		for _, e := range batch {
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, c.ID.String(), c.TeamID.String(), e.From.String(), e.To.String())
		}
		query := t.dialect.Rebind(`INSERT INTO dag_edges (component_id, team_id, from_task_id, to_task_id) VALUES ` + strings.Join(values, ", "))
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return classify("insert component edges", err)
		}
	}
	return nil
}

func expectOneRow(res sql.Result, id graph.ComponentID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func notFound(id graph.ComponentID) error {
	return errors.AddContext(errors.New(errors.CodeComponentNotFound, "component not found"), errors.CtxComponent, id.String())
}

func getComponent(ctx context.Context, q queryer, dialect Dialect, id graph.ComponentID) (graph.Component, error) {
	row := q.QueryRowContext(ctx, dialect.Rebind(selectComponents+` WHERE component_id = ?`), id.String())
	c, err := scanComponent(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return graph.Component{}, notFound(id)
	}
	if err != nil {
		return graph.Component{}, classify("get component", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComponent(row scanner) (graph.Component, error) {
	var (
		rawID, rawTeam   string
		rawAdj           []byte
		created, updated int64
	)
	if err := row.Scan(&rawID, &rawTeam, &rawAdj, &created, &updated); err != nil {
		return graph.Component{}, err
	}

	id, err := graph.ParseComponentID(rawID)
	if err != nil {
		return graph.Component{}, errors.Wrap(err, errors.CodeStorage, "corrupt component row")
	}
	team, err := graph.ParseTeamID(rawTeam)
	if err != nil {
		return graph.Component{}, errors.Wrap(err, errors.CodeStorage, "corrupt component row")
	}
	adj, err := graph.DecodeAdjacency(rawAdj)
	if err != nil {
		return graph.Component{}, errors.Wrap(err, errors.CodeStorage, fmt.Sprintf("corrupt adjacency for component %s", rawID))
	}
	return graph.Component{
		ID:        id,
		TeamID:    team,
		Adjacency: adj,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}, nil
}

func scanComponents(rows *sql.Rows) ([]graph.Component, error) {
	defer rows.Close()
	out := make([]graph.Component, 0)
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, classify("scan component row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate component rows", err)
	}
	return out, nil
}
