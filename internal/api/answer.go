package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AbhiSondakar/NLIDB/internal/answer"
	"github.com/AbhiSondakar/NLIDB/internal/auth"
	"github.com/AbhiSondakar/NLIDB/internal/decode"
	"github.com/AbhiSondakar/NLIDB/internal/gateway"
	"github.com/AbhiSondakar/NLIDB/internal/sqlguard"
)

type answerRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Explanation string   `json:"explanation"`
	SQL         string   `json:"sql"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	Truncated   bool     `json:"truncated"`
	DurationMs  int64    `json:"duration_ms"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
}

func handleAnswer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ANSWER_NOT_CONFIGURED", "answer dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request answerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid answer request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := deps.Answerer.Ask(r.Context(), request.Question)
	if err != nil {
		status, code, message, retryable, extra := mapAnswerError(err)
		writeError(r.Context(), w, status, code, message, retryable, extra)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{
		Explanation: result.Explanation,
		SQL:         result.SanitizedSQL,
		Columns:     result.Result.Columns,
		Rows:        result.Result.Rows,
		Truncated:   result.Result.Truncated,
		DurationMs:  result.Result.Duration.Milliseconds(),
		Provider:    result.Provider,
		Model:       result.Model,
	})
}

// mapAnswerError turns pipeline failures into the stable wire error codes.
// Timeouts and connection loss are retryable; a rejected or broken query is
// not, the caller has to rephrase instead.
func mapAnswerError(err error) (status int, code, message string, retryable bool, extra map[string]any) {
	var pErr *answer.PipelineError
	if !errors.As(err, &pErr) {
		return http.StatusInternalServerError, "ANSWER_FAILED", "failed to answer question", true, map[string]any{"details": err.Error()}
	}

	switch pErr.Stage {
	case answer.StageSchema:
		return http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": pErr.Err.Error()}
	case answer.StageGenerate:
		if errors.Is(pErr.Err, answer.ErrQuestionRequired) {
			return http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil
		}
		return http.StatusBadGateway, "GENERATION_FAILED", "failed to generate a query for the question", true, map[string]any{"details": pErr.Err.Error()}
	case answer.StageDecode:
		extra := map[string]any{"details": pErr.Err.Error()}
		var dErr *decode.Error
		if errors.As(pErr.Err, &dErr) {
			extra["kind"] = string(dErr.Kind)
		}
		return http.StatusBadGateway, "DECODE_FAILED", "model response was not a usable query", true, extra
	case answer.StageValidate:
		extra := map[string]any{"details": pErr.Err.Error()}
		var vErr *sqlguard.ValidationError
		if errors.As(pErr.Err, &vErr) {
			extra["code"] = string(vErr.Code)
			if vErr.Token != "" {
				extra["token"] = vErr.Token
			}
		}
		return http.StatusBadRequest, "VALIDATION_REJECTED", "generated query is not allowed", false, extra
	case answer.StageExecute:
		extra := map[string]any{"details": pErr.Err.Error()}
		var execErr *gateway.ExecError
		if errors.As(pErr.Err, &execErr) {
			extra["kind"] = string(execErr.Kind)
			switch execErr.Kind {
			case gateway.FailureTimeout:
				return http.StatusGatewayTimeout, "EXECUTION_FAILED", "query execution timed out", true, extra
			case gateway.FailureConnection:
				return http.StatusServiceUnavailable, "EXECUTION_FAILED", "database connection failed", true, extra
			}
		}
		return http.StatusBadRequest, "EXECUTION_FAILED", "query execution failed", false, extra
	default:
		return http.StatusInternalServerError, "ANSWER_FAILED", "failed to answer question", true, map[string]any{"details": pErr.Err.Error()}
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
