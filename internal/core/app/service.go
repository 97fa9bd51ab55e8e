package app

import (
	"context"
	"fmt"

	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"
	"dagger/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type graphService struct {
	app *App
}

var _ ports.GraphService = (*graphService)(nil)

func NewGraphService(app *App) ports.GraphService {
	return &graphService{app: app}
}

func (a *App) GraphService() ports.GraphService {
	return NewGraphService(a)
}

func (s *graphService) CreateFromEdge(ctx context.Context, team graph.TeamID, from, to graph.NodeID) (id graph.ComponentID, err error) {
	ctx, span := observability.Tracer.Start(ctx, "graphService.CreateFromEdge", trace.WithAttributes(
		attribute.String("team_id", team.String()),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	defer func() { endSpan(span, err) }()

	if err := s.validateTasks(ctx, team, []graph.NodeID{from, to}); err != nil {
		return graph.ComponentID{}, err
	}
	id, err = s.app.mutator.AddEdge(ctx, team, from, to)
	if err != nil {
		return graph.ComponentID{}, errors.AddContext(err, errors.CtxOperation, "create")
	}
	span.SetAttributes(attribute.String("component_id", id.String()))
	return id, nil
}

// AddEdges adds from -> dep for every dep in order and stops at the first
// failure. Edges applied before the failure stay committed and are listed in
// the result next to the edge that failed.
func (s *graphService) AddEdges(ctx context.Context, team graph.TeamID, from graph.NodeID, deps []graph.NodeID) (res ports.AddEdgesResult, err error) {
	ctx, span := observability.Tracer.Start(ctx, "graphService.AddEdges", trace.WithAttributes(
		attribute.String("team_id", team.String()),
		attribute.String("from", from.String()),
		attribute.Int("dependencies", len(deps)),
	))
	defer func() { endSpan(span, err) }()

	if team.IsZero() {
		return res, errors.New(errors.CodeValidationError, "team id is required")
	}
	if err := s.validateDependencies(from, deps); err != nil {
		return res, err
	}
	for _, dep := range deps {
		if dep == from {
			return res, errors.AddContext(errors.AddContext(
				errors.New(errors.CodeCycleRejected, "task cannot depend on itself"),
				errors.CtxFrom, from.String()),
				errors.CtxTo, dep.String())
		}
	}
	if err := s.validateTasks(ctx, team, append([]graph.NodeID{from}, deps...)); err != nil {
		return res, err
	}

	res.Applied = make([]graph.Edge, 0, len(deps))
	for _, dep := range deps {
		edge := graph.Edge{From: from, To: dep}
		id, err := s.app.mutator.AddEdge(ctx, team, from, dep)
		if err != nil {
			res.FailedEdge = &edge
			return res, errors.AddContext(err, "applied", len(res.Applied))
		}
		res.ComponentID = id
		res.Applied = append(res.Applied, edge)
	}
	span.SetAttributes(attribute.String("component_id", res.ComponentID.String()))
	return res, nil
}

// DeleteEdges removes from -> dep for every dep in order. A removal may split
// the record, so each later edge is looked up among the records that are
// still alive from this call.
func (s *graphService) DeleteEdges(ctx context.Context, id graph.ComponentID, from graph.NodeID, deps []graph.NodeID) (res ports.DeleteEdgesResult, err error) {
	ctx, span := observability.Tracer.Start(ctx, "graphService.DeleteEdges", trace.WithAttributes(
		attribute.String("component_id", id.String()),
		attribute.String("from", from.String()),
		attribute.Int("dependencies", len(deps)),
	))
	defer func() { endSpan(span, err) }()

	if id.IsZero() {
		return res, errors.New(errors.CodeValidationError, "component id is required")
	}
	if err := s.validateDependencies(from, deps); err != nil {
		return res, err
	}

	res.ComponentID = id
	live := []graph.ComponentID{id}
	summarize := func() {
		res.Survived = false
		res.Created = nil
		for _, alive := range live {
			if alive == id {
				res.Survived = true
				continue
			}
			res.Created = append(res.Created, alive)
		}
	}
	for i, dep := range deps {
		target := id
		if i > 0 {
			found, err := s.locateEdge(ctx, live, from, dep)
			if err != nil {
				summarize()
				return res, err
			}
			target = found
		}

		removed, err := s.app.mutator.RemoveEdge(ctx, target, from, dep)
		if err != nil {
			summarize()
			return res, errors.AddContext(err, "removed", len(res.Removed))
		}
		res.Removed = append(res.Removed, graph.Edge{From: from, To: dep})
		if !removed.Survived {
			live = dropID(live, target)
		}
		live = append(live, removed.Created...)
	}

	summarize()
	return res, nil
}

func (s *graphService) GetComponent(ctx context.Context, id graph.ComponentID) (c graph.Component, err error) {
	ctx, span := observability.Tracer.Start(ctx, "graphService.GetComponent", trace.WithAttributes(
		attribute.String("component_id", id.String()),
	))
	defer func() { endSpan(span, err) }()

	if id.IsZero() {
		return graph.Component{}, errors.New(errors.CodeValidationError, "component id is required")
	}
	return s.app.store.Get(ctx, id)
}

// GetComponentDetails returns the component with its task metadata. Tasks the
// directory does not know are listed in MissingTaskIDs.
func (s *graphService) GetComponentDetails(ctx context.Context, id graph.ComponentID) (ports.ComponentDetails, error) {
	c, err := s.GetComponent(ctx, id)
	if err != nil {
		return ports.ComponentDetails{}, err
	}
	details := ports.ComponentDetails{Component: c}
	nodes := c.Adjacency.Nodes()
	if s.app.tasks == nil {
		details.MissingTaskIDs = nodes
		return details, nil
	}

	ctx, span := observability.Tracer.Start(ctx, "graphService.ResolveTasks", trace.WithAttributes(
		attribute.Int("tasks", len(nodes)),
	))
	defer span.End()

	summaries, err := s.app.tasks.ResolveTasksByIDs(ctx, nodes)
	if err != nil {
		span.RecordError(err)
		return ports.ComponentDetails{}, errors.AddContext(err, errors.CtxComponent, id.String())
	}
	known := make(graph.NodeSet, len(summaries))
	for _, summary := range summaries {
		known.Add(summary.ID)
	}
	details.Tasks = summaries
	for _, node := range nodes {
		if !known.Has(node) {
			details.MissingTaskIDs = append(details.MissingTaskIDs, node)
		}
	}
	return details, nil
}

func (s *graphService) ListComponentsByTeam(ctx context.Context, team graph.TeamID) (out []graph.Component, err error) {
	ctx, span := observability.Tracer.Start(ctx, "graphService.ListComponentsByTeam", trace.WithAttributes(
		attribute.String("team_id", team.String()),
	))
	defer func() { endSpan(span, err) }()

	if team.IsZero() {
		return nil, errors.New(errors.CodeValidationError, "team id is required")
	}
	out, err = s.app.store.ListByTeam(ctx, team)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("components", len(out)))
	return out, nil
}

func (s *graphService) validateDependencies(from graph.NodeID, deps []graph.NodeID) error {
	if from.IsZero() {
		return errors.New(errors.CodeValidationError, "from task id is required")
	}
	if len(deps) == 0 {
		return errors.New(errors.CodeValidationError, "at least one dependency task id is required")
	}
	if limit := s.app.Config.Engine.MaxDependencies; limit > 0 && len(deps) > limit {
		return errors.Newf(errors.CodeValidationError, "%d dependencies exceed the limit of %d", len(deps), limit)
	}
	seen := make(graph.NodeSet, len(deps))
	for _, dep := range deps {
		if dep.IsZero() {
			return errors.New(errors.CodeValidationError, "dependency task ids must not be empty")
		}
		if seen.Has(dep) {
			return errors.AddContext(
				errors.New(errors.CodeValidationError, "duplicate dependency task id"),
				errors.CtxTo, dep.String())
		}
		seen.Add(dep)
	}
	return nil
}

func (s *graphService) validateTasks(ctx context.Context, team graph.TeamID, ids []graph.NodeID) error {
	if !s.app.Config.Engine.ValidateTasks || s.app.tasks == nil {
		return nil
	}
	ok, err := s.app.tasks.TasksExistAndBelongToTeam(ctx, ids, team)
	if err != nil {
		return err
	}
	if !ok {
		return errors.AddContext(
			errors.New(errors.CodeValidationError, "tasks do not exist or belong to another team"),
			errors.CtxTeam, team.String())
	}
	return nil
}

// locateEdge finds which of the live records holds from -> to.
func (s *graphService) locateEdge(ctx context.Context, live []graph.ComponentID, from, to graph.NodeID) (graph.ComponentID, error) {
	for _, id := range live {
		c, err := s.app.store.Get(ctx, id)
		if errors.IsCode(err, errors.CodeComponentNotFound) {
			continue
		}
		if err != nil {
			return graph.ComponentID{}, err
		}
		if c.Adjacency.HasEdge(from, to) {
			return id, nil
		}
	}
	return graph.ComponentID{}, errors.AddContext(errors.AddContext(
		errors.New(errors.CodeEdgeNotFound, fmt.Sprintf("edge %s -> %s is not part of the component", from, to)),
		errors.CtxFrom, from.String()),
		errors.CtxTo, to.String())
}

func dropID(ids []graph.ComponentID, drop graph.ComponentID) []graph.ComponentID {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
