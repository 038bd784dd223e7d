package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/logging"
	"github.com/brandguard/brandguard/core/rules"
)

type issueBody struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type errorBody struct {
	Code           string      `json:"code"`
	Message        string      `json:"message"`
	Field          string      `json:"field,omitempty"`
	Issues         []issueBody `json:"issues,omitempty"`
	UpstreamStatus int         `json:"upstreamStatus,omitempty"`
	UpstreamBody   string      `json:"upstreamBody,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error(component, "encode response failed", "error", err)
	}
}

func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// writeError renders err in the error envelope. Classified faults keep their
// kind as the code so operators can tell config errors from outages.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := describeError(err)
	if status >= http.StatusInternalServerError {
		logging.Error(component, "request failed", "method", r.Method, "path", r.URL.Path, "code", body.Code, "error", err)
	}
	writeErrorBody(w, status, body)
}

func describeError(err error) (int, errorBody) {
	var parseErr *rules.ParseError
	var ruleErr *rules.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorBody{
			Code:    string(fault.KindValidation),
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		}
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, errorBody{
			Code:    string(fault.KindValidation),
			Message: parseErr.Error(),
		}
	case errors.As(err, &ruleErr):
		issues := make([]issueBody, 0, len(ruleErr.Issues))
		for _, is := range ruleErr.Issues {
			issues = append(issues, issueBody{Path: is.Path, Reason: is.Reason})
		}
		return http.StatusUnprocessableEntity, errorBody{
			Code:    string(fault.KindUnprocessable),
			Message: ruleErr.Error(),
			Issues:  issues,
		}
	}
	if fe, ok := fault.As(err); ok {
		body := errorBody{
			Code:           string(fe.Kind),
			Message:        fe.Message,
			Field:          fe.Field,
			UpstreamStatus: fe.UpstreamStatus,
			UpstreamBody:   fe.UpstreamBody,
		}
		return fault.HTTPStatus(fe.Kind), body
	}
	return http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"}
}

// readBody reads at most limit bytes; larger bodies yield *http.MaxBytesError.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}
