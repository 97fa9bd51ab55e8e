package dag

import (
	"context"
	"log/slog"
	"time"

	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"
	"dagger/internal/shared/observability"

	"golang.org/x/sync/semaphore"
)

const DefaultLockTimeout = 5 * time.Second

// Mutator applies edge additions and removals to persisted component records.
// Every mutation holds the process-wide gate and runs in one repository
// transaction, so readers never see a half-merged or half-split forest.
type Mutator struct {
	repo        ports.ComponentRepository
	gate        *semaphore.Weighted
	lockTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Mutator)

// WithLockTimeout bounds how long a mutation waits for the gate. Zero or
// negative waits only as long as the caller's context allows.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Mutator) { m.lockTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mutator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMutator(repo ports.ComponentRepository, opts ...Option) *Mutator {
	m := &Mutator{
		repo:        repo,
		gate:        semaphore.NewWeighted(1),
		lockTimeout: DefaultLockTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddEdge inserts from -> to for team. Records already holding either endpoint
// are folded together with the new edge; two records merge into a fresh one,
// a single record keeps its id. An edge that would close a cycle is rejected
// and nothing is written. Adding an existing edge returns its component.
func (m *Mutator) AddEdge(ctx context.Context, team graph.TeamID, from, to graph.NodeID) (id graph.ComponentID, err error) {
	const op = "add_edge"
	start := time.Now()
	defer func() { m.observe(op, start, err) }()

	if err := validateAdd(team, from, to); err != nil {
		return graph.ComponentID{}, err
	}
	release, err := m.acquire(ctx, op)
	if err != nil {
		return graph.ComponentID{}, err
	}
	defer release()

	var merged []graph.ComponentID
	err = m.repo.WithinTx(ctx, func(tx ports.ComponentTx) error {
		found, err := tx.FindByNodes(ctx, []graph.NodeID{from, to})
		if err != nil {
			return err
		}
		if len(found) > 2 {
			return errors.Newf(errors.CodeStorage, "nodes %s and %s are spread over %d records", from, to, len(found))
		}

		adj := graph.NewAdjacency()
		for _, c := range found {
			if c.TeamID != team {
				return errors.AddContext(
					errors.Newf(errors.CodeValidationError, "task already belongs to a graph of team %s", c.TeamID),
					errors.CtxComponent, c.ID.String())
			}
			if c.Adjacency.HasEdge(from, to) {
				id = c.ID
				return nil
			}
			adj.Merge(c.Adjacency)
		}

		if path := graph.CyclePath(adj, from, to); path != nil {
			return cycleError(from, to, path)
		}
		adj.AddEdge(from, to)

		switch len(found) {
		case 0:
			c := graph.Component{ID: graph.NewComponentID(), TeamID: team, Adjacency: adj}
			id = c.ID
			return insertChecked(ctx, tx, c)
		case 1:
			c := found[0]
			c.Adjacency = adj
			id = c.ID
			if err := c.Validate(); err != nil {
				return errors.Wrap(err, errors.CodeInternal, "merged component breaks record invariants")
			}
			return tx.Update(ctx, c)
		default:
			for _, c := range found {
				if err := tx.Delete(ctx, c.ID); err != nil {
					return err
				}
				merged = append(merged, c.ID)
			}
			c := graph.Component{ID: graph.NewComponentID(), TeamID: team, Adjacency: adj}
			id = c.ID
			return insertChecked(ctx, tx, c)
		}
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeCycleRejected) {
			observability.CycleRejectionsTotal.Inc()
			m.logger.Warn("edge rejected", "from", from.String(), "to", to.String(), "error", err)
		}
		return graph.ComponentID{}, err
	}

	if len(merged) > 0 {
		observability.ComponentsMergedTotal.Inc()
		m.logger.Info("component merged", "component_id", id.String(), "merged", idStrings(merged), "team_id", team.String())
	}
	return id, nil
}

// RemoveEdge deletes from -> to from the component id. The remainder is
// re-partitioned: edge-less groups vanish, a single remaining group keeps
// the id, and two or more groups replace the record with fresh ones.
func (m *Mutator) RemoveEdge(ctx context.Context, id graph.ComponentID, from, to graph.NodeID) (res ports.RemoveResult, err error) {
	const op = "remove_edge"
	start := time.Now()
	defer func() { m.observe(op, start, err) }()

	if id.IsZero() || from.IsZero() || to.IsZero() {
		return ports.RemoveResult{}, errors.New(errors.CodeValidationError, "component id and both task ids are required")
	}
	release, err := m.acquire(ctx, op)
	if err != nil {
		return ports.RemoveResult{}, err
	}
	defer release()

	res = ports.RemoveResult{ComponentID: id}
	err = m.repo.WithinTx(ctx, func(tx ports.ComponentTx) error {
		c, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if !c.Adjacency.RemoveEdge(from, to) {
			return errors.AddContext(errors.AddContext(errors.AddContext(
				errors.New(errors.CodeEdgeNotFound, "edge is not part of the component"),
				errors.CtxComponent, id.String()),
				errors.CtxFrom, from.String()),
				errors.CtxTo, to.String())
		}

		parts := graph.SplitComponents(c.Adjacency)
		switch len(parts) {
		case 0:
			return tx.Delete(ctx, id)
		case 1:
			c.Adjacency = parts[0]
			if err := c.Validate(); err != nil {
				return errors.Wrap(err, errors.CodeInternal, "remaining component breaks record invariants")
			}
			res.Survived = true
			return tx.Update(ctx, c)
		default:
			if err := tx.Delete(ctx, id); err != nil {
				return err
			}
			for _, part := range parts {
				piece := graph.Component{ID: graph.NewComponentID(), TeamID: c.TeamID, Adjacency: part}
				if err := insertChecked(ctx, tx, piece); err != nil {
					return err
				}
				res.Created = append(res.Created, piece.ID)
			}
			return nil
		}
	})
	if err != nil {
		return ports.RemoveResult{}, err
	}

	if len(res.Created) > 0 {
		observability.ComponentsSplitTotal.Inc()
		m.logger.Info("component split", "component_id", id.String(), "created", idStrings(res.Created))
	} else if !res.Survived {
		m.logger.Info("component emptied", "component_id", id.String())
	}
	return res, nil
}

func (m *Mutator) acquire(ctx context.Context, op string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	waitCtx := ctx
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := m.gate.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.AddContext(
			errors.Newf(errors.CodeConflict, "timed out after %s waiting for the mutation lock", m.lockTimeout),
			errors.CtxOperation, op)
	}
	observability.LockWaitDuration.Observe(time.Since(start).Seconds())
	return func() { m.gate.Release(1) }, nil
}

func (m *Mutator) observe(op string, start time.Time, err error) {
	observability.MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := ""
	if err != nil {
		result = string(errors.CodeOf(err))
	}
	observability.MutationsTotal.WithLabelValues(op, observability.ResultLabel(result)).Inc()
	if err != nil && (errors.IsCode(err, errors.CodeStorage) || errors.IsCode(err, errors.CodeInternal)) {
		m.logger.Error("mutation failed", "operation", op, "error", err)
	}
}

func validateAdd(team graph.TeamID, from, to graph.NodeID) error {
	if team.IsZero() {
		return errors.New(errors.CodeValidationError, "team id is required")
	}
	if from.IsZero() || to.IsZero() {
		return errors.New(errors.CodeValidationError, "from and to task ids are required")
	}
	if from == to {
		return cycleError(from, to, []graph.NodeID{from, to})
	}
	return nil
}

func cycleError(from, to graph.NodeID, path []graph.NodeID) error {
	err := errors.AddContext(errors.AddContext(
		errors.New(errors.CodeCycleRejected, "edge would create a cycle"),
		errors.CtxFrom, from.String()),
		errors.CtxTo, to.String())
	return errors.AddContext(err, "cycle", nodeStrings(path))
}

func insertChecked(ctx context.Context, tx ports.ComponentTx, c graph.Component) error {
	if err := c.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "component breaks record invariants")
	}
	return tx.Insert(ctx, c)
}

func idStrings(ids []graph.ComponentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func nodeStrings(ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
