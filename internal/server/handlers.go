package server

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"chemrecon/internal"
	"chemrecon/internal/calibration"
)

type loadRunRequest struct {
	Path string `json:"path" validate:"required"`
}

type selectChannelRequest struct {
	Column string `json:"column" validate:"required"`
}

type loadRunResponse struct {
	internal.RunSummary
	MatchRate int `json:"matchRate"`
	Standards int `json:"standards"`
}

type matchView struct {
	internal.Match
	Level internal.ConfidenceLevel `json:"level"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return errInvalidJSON
	}
	return s.validate.Struct(v)
}

// runPath resolves p against RunsDir. Paths that leave RunsDir are refused.
func (s *Server) runPath(p string) (string, error) {
	root, err := filepath.Abs(s.cfg.RunsDir)
	if err != nil {
		return "", err
	}
	full := filepath.Clean(p)
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", badRequestError{msg: "run path must be inside the runs directory"}
	}
	return full, nil
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) {
	var req loadRunRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	path, err := s.runPath(req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.processor.ProcessFile(r.Context(), path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.mu.Lock()
	s.loaded = &res
	s.session.LoadRun(res.CalibrationRun(s.processor.Rules()))
	s.mu.Unlock()

	s.metrics.runsLoaded.Inc()
	s.metrics.matchedRows.Set(float64(res.Summary.MatchedSamples))
	render.JSON(w, r, loadRunResponse{
		RunSummary: res.Summary,
		MatchRate:  res.Summary.MatchRatePercent(),
		Standards:  res.Standards.Len(),
	})
}

func (s *Server) matches(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded == nil {
		s.writeError(w, r, calibration.ErrNoRunLoaded)
		return
	}
	out := make([]matchView, 0, len(loaded.Matches))
	for _, m := range loaded.Matches {
		out = append(out, matchView{Match: m, Level: internal.LevelFor(m.Confidence)})
	}
	render.JSON(w, r, out)
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	out, err := s.session.Overview()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (s *Server) selectAnalyte(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.SelectAnalyte(chi.URLParam(r, "analyte"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func (s *Server) selectChannel(w http.ResponseWriter, r *http.Request) {
	var req selectChannelRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.session.SelectIntensityColumn(chi.URLParam(r, "analyte"), req.Column)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func (s *Server) compareChannels(w http.ResponseWriter, r *http.Request) {
	out, err := s.session.CompareChannels(chi.URLParam(r, "analyte"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, badRequestError{msg: "point index must be an integer"})
		return
	}
	st, err := s.session.ToggleExclusion(chi.URLParam(r, "analyte"), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.toggles.Inc()
	render.JSON(w, r, st)
}
