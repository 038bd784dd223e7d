package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/schema"
	"github.com/brandguard/brandguard/core/store"
	"github.com/brandguard/brandguard/core/upstream"
)

// handleCreateEvaluation answers with the upstream payload exactly as
// received; the stored evaluation id travels in X-Evaluation-Id.
func (s *server) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req upstream.EvaluateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, r, fault.Validation(schema.RootPath, "body must be a JSON object: "+err.Error()))
		return
	}
	ev, err := s.upstream.Evaluate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Evaluation-Id", ev.ID)
	w.Header().Set("Location", "/api/v1/evaluations/"+ev.ID)
	writeRawJSON(w, http.StatusOK, ev.Result)
}

func (s *server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := s.findEvaluation(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *server) handleFixEvaluation(w http.ResponseWriter, r *http.Request) {
	res, err := s.upstream.Fix(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleListFixes(w http.ResponseWriter, r *http.Request) {
	ev, err := s.findEvaluation(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := s.store.ListByEvaluationID(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []store.FixResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": results})
}

func (s *server) findEvaluation(r *http.Request) (*store.Evaluation, error) {
	id, err := pathValue(r, "id")
	if err != nil {
		return nil, err
	}
	ev, err := s.store.FindEvaluationByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fault.NotFound("evaluation", id)
	}
	return ev, nil
}
