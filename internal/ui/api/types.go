package api

import (
	"reflect"
	"strings"

	"dagger/internal/core/errors"
	"dagger/internal/engine/graph"
	"dagger/internal/output"

	"github.com/go-playground/validator/v10"
)

const (
	actionCreate      = "create"
	actionAddEdges    = "add_edges"
	actionDeleteEdges = "delete_edges"
)

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	requestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = requestValidate.RegisterValidation("dagaction", validateAction)
}

func validateAction(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case actionCreate, actionAddEdges, actionDeleteEdges:
		return true
	default:
		return false
	}
}

// dagRequest is the body of POST /v1/dag. Which ids are required depends on
// the action; see requireFields.
type dagRequest struct {
	Action            string   `json:"action" validate:"required,dagaction"`
	TeamID            string   `json:"team_id" validate:"omitempty,uuid"`
	ComponentID       string   `json:"component_id" validate:"omitempty,uuid"`
	FromTaskID        string   `json:"from_task_id" validate:"required,uuid"`
	ToTaskID          string   `json:"to_task_id" validate:"omitempty,uuid"`
	DependencyTaskIDs []string `json:"dependency_task_ids" validate:"omitempty,max=1000,dive,uuid"`
}

func (r dagRequest) requireFields() error {
	missing := func(field string) error {
		return errors.AddContext(
			errors.Newf(errors.CodeValidationError, "%s is required for action %s", field, r.Action),
			"field", field)
	}
	switch r.Action {
	case actionCreate:
		if r.TeamID == "" {
			return missing("team_id")
		}
		if r.ToTaskID == "" {
			return missing("to_task_id")
		}
	case actionAddEdges:
		if r.TeamID == "" {
			return missing("team_id")
		}
		if len(r.DependencyTaskIDs) == 0 {
			return missing("dependency_task_ids")
		}
	case actionDeleteEdges:
		if r.ComponentID == "" {
			return missing("component_id")
		}
		if len(r.DependencyTaskIDs) == 0 {
			return missing("dependency_task_ids")
		}
	}
	return nil
}

// validationError turns validator output into a VALIDATION_ERROR naming the
// offending json fields.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, errors.CodeValidationError, "invalid request")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return errors.AddContext(
		errors.New(errors.CodeValidationError, "invalid request: "+strings.Join(fields, ", ")),
		"fields", fields)
}

type listResponse struct {
	TeamID     graph.TeamID           `json:"team_id"`
	Components []output.ComponentJSON `json:"components"`
}

type mutationResponse struct {
	Action      string                 `json:"action"`
	ComponentID graph.ComponentID      `json:"component_id"`
	Applied     []graph.Edge           `json:"applied,omitempty"`
	Removed     []graph.Edge           `json:"removed,omitempty"`
	Survived    *bool                  `json:"survived,omitempty"`
	Created     []graph.ComponentID    `json:"created_component_ids,omitempty"`
	Components  []output.ComponentJSON `json:"components"`
}

type errorResponse struct {
	Error      string                 `json:"error"`
	Code       errors.ErrorCode       `json:"code"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Applied    []graph.Edge           `json:"applied,omitempty"`
	FailedEdge *graph.Edge            `json:"failed_edge,omitempty"`
	Removed    []graph.Edge           `json:"removed,omitempty"`
}

func errorBody(err error) errorResponse {
	code := errors.CodeOf(err)
	msg := errors.MessageOf(err)
	if code == errors.CodeInternal || code == errors.CodeStorage {
		msg = "internal error"
	}
	return errorResponse{
		Error:     msg,
		Code:      code,
		Context:   errors.ContextOf(err),
		Retryable: errors.IsRetryable(err),
	}
}

func toComponentResponse(c graph.Component) (output.ComponentJSON, error) {
	out, err := output.NewComponentJSON(c)
	if err != nil {
		return output.ComponentJSON{}, errors.Wrap(err, errors.CodeInternal, "encode component")
	}
	return out, nil
}
