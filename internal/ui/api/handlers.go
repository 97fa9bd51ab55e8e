package api

import (
	"net/http"
	"strconv"

	"dagger/internal/core/errors"
	"dagger/internal/engine/graph"
	"dagger/internal/output"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if status.Status != "up" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(c, code, status)
}

func (s *Server) handleMutation(c *gin.Context) {
	var req dagRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeValidationError, "request body is not valid JSON"))
		return
	}
	if err := requestValidate.Struct(req); err != nil {
		s.fail(c, validationError(err))
		return
	}
	if err := req.requireFields(); err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	from := mustNode(req.FromTaskID)
	deps := make([]graph.NodeID, 0, len(req.DependencyTaskIDs))
	for _, raw := range req.DependencyTaskIDs {
		deps = append(deps, mustNode(raw))
	}

	switch req.Action {
	case actionCreate:
		team := mustTeam(req.TeamID)
		to := mustNode(req.ToTaskID)
		id, err := s.svc.CreateFromEdge(ctx, team, from, to)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.respondMutation(c, http.StatusCreated, mutationResponse{
			Action:      req.Action,
			ComponentID: id,
			Applied:     []graph.Edge{{From: from, To: to}},
		}, id)

	case actionAddEdges:
		res, err := s.svc.AddEdges(ctx, mustTeam(req.TeamID), from, deps)
		if err != nil {
			body := errorBody(err)
			body.Applied = res.Applied
			body.FailedEdge = res.FailedEdge
			s.failWith(c, err, body)
			return
		}
		s.respondMutation(c, http.StatusOK, mutationResponse{
			Action:      req.Action,
			ComponentID: res.ComponentID,
			Applied:     res.Applied,
		}, res.ComponentID)

	case actionDeleteEdges:
		res, err := s.svc.DeleteEdges(ctx, mustComponent(req.ComponentID), from, deps)
		if err != nil {
			body := errorBody(err)
			body.Removed = res.Removed
			s.failWith(c, err, body)
			return
		}
		survived := res.Survived
		ids := res.Created
		if survived {
			ids = append([]graph.ComponentID{res.ComponentID}, ids...)
		}
		s.respondMutation(c, http.StatusOK, mutationResponse{
			Action:      req.Action,
			ComponentID: res.ComponentID,
			Removed:     res.Removed,
			Survived:    &survived,
			Created:     res.Created,
		}, ids...)
	}
}

// respondMutation attaches the current state of the affected records.
func (s *Server) respondMutation(c *gin.Context, status int, resp mutationResponse, ids ...graph.ComponentID) {
	resp.Components = make([]output.ComponentJSON, 0, len(ids))
	for _, id := range ids {
		comp, err := s.svc.GetComponent(c.Request.Context(), id)
		if errors.IsCode(err, errors.CodeComponentNotFound) {
			// Changed by a concurrent request after our commit.
			continue
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		out, err := toComponentResponse(comp)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp.Components = append(resp.Components, out)
	}
	respondJSON(c, status, resp)
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := graph.ParseComponentID(c.Param("id"))
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeValidationError, "component id must be a UUID"))
		return
	}
	format, err := output.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeValidationError, "invalid format"))
		return
	}
	includeTasks := false
	if raw := c.Query("include_tasks"); raw != "" {
		includeTasks, err = strconv.ParseBool(raw)
		if err != nil {
			s.fail(c, errors.Wrap(err, errors.CodeValidationError, "include_tasks must be a boolean"))
			return
		}
	}

	ctx := c.Request.Context()
	if format != output.FormatJSON {
		details, err := s.svc.GetComponentDetails(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		text, err := output.Render(format, details)
		if err != nil {
			s.fail(c, errors.Wrap(err, errors.CodeInternal, "render component"))
			return
		}
		c.Data(http.StatusOK, format.ContentType(), []byte(text))
		return
	}

	if !includeTasks {
		comp, err := s.svc.GetComponent(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		out, err := toComponentResponse(comp)
		if err != nil {
			s.fail(c, err)
			return
		}
		respondJSON(c, http.StatusOK, out)
		return
	}

	details, err := s.svc.GetComponentDetails(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := output.NewDetailsJSON(details)
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeInternal, "encode component"))
		return
	}
	respondJSON(c, http.StatusOK, out)
}

func (s *Server) handleList(c *gin.Context) {
	raw := c.Query("team_id")
	if raw == "" {
		s.fail(c, errors.New(errors.CodeValidationError, "team_id query parameter is required"))
		return
	}
	team, err := graph.ParseTeamID(raw)
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeValidationError, "team_id must be a UUID"))
		return
	}
	components, err := s.svc.ListComponentsByTeam(c.Request.Context(), team)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := listResponse{TeamID: team, Components: make([]output.ComponentJSON, 0, len(components))}
	for _, comp := range components {
		out, err := toComponentResponse(comp)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp.Components = append(resp.Components, out)
	}
	respondJSON(c, http.StatusOK, resp)
}

func (s *Server) fail(c *gin.Context, err error) {
	s.failWith(c, err, errorBody(err))
}

func (s *Server) failWith(c *gin.Context, err error, body errorResponse) {
	_ = c.Error(err)
	respondJSON(c, errors.HTTPStatus(err), body)
}

func respondJSON(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

// The must* helpers parse ids already checked by requestValidate.
func mustNode(raw string) graph.NodeID {
	id, _ := graph.ParseNodeID(raw)
	return id
}

func mustTeam(raw string) graph.TeamID {
	id, _ := graph.ParseTeamID(raw)
	return id
}

func mustComponent(raw string) graph.ComponentID {
	id, _ := graph.ParseComponentID(raw)
	return id
}
