package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"chemrecon/internal/calibration"
	"chemrecon/internal/pipeline"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Code   string       `json:"code"`
	Fields []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

var errInvalidJSON = errors.New("request body is not valid JSON")

type statusRule struct {
	target error
	status int
	code   string
}

var statusRules = []statusRule{
	{calibration.ErrNoRunLoaded, http.StatusConflict, "no_run_loaded"},
	{calibration.ErrWouldLeaveTooFewPoints, http.StatusConflict, "too_few_points"},
	{calibration.ErrAnalyteNotSelected, http.StatusConflict, "analyte_not_selected"},
	{calibration.ErrUnknownAnalyte, http.StatusNotFound, "unknown_analyte"},
	{calibration.ErrUnknownPoint, http.StatusNotFound, "unknown_point"},
	{calibration.ErrUnknownColumn, http.StatusNotFound, "unknown_column"},
	{calibration.ErrFitDegenerate, http.StatusUnprocessableEntity, "fit_degenerate"},
	{calibration.ErrInsufficientPoints, http.StatusUnprocessableEntity, "insufficient_points"},
	{calibration.ErrNoIntensityColumn, http.StatusUnprocessableEntity, "no_intensity_column"},
	{pipeline.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "unsupported_format"},
	{fs.ErrNotExist, http.StatusNotFound, "not_found"},
	{errInvalidJSON, http.StatusBadRequest, "invalid_json"},
}

func classify(err error) (int, ErrorResponse) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp := ErrorResponse{Error: "request validation failed", Code: "validation"}
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		return http.StatusBadRequest, resp
	}
	var bad badRequestError
	if errors.As(err, &bad) {
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "bad_request"}
	}
	for _, rule := range statusRules {
		if errors.Is(err, rule.target) {
			return rule.status, ErrorResponse{Error: err.Error(), Code: rule.code}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "internal"}
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		"error", err,
		"code", body.Code,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
	)
	render.Status(r, status)
	render.JSON(w, r, body)
}
