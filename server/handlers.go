package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/ensemble"
	"github.com/rushteam/cardiokit/inference"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error  errorDetail            `json:"error"`
	Errors []*inference.TaskError `json:"errors,omitempty"`
}

type modelsBody struct {
	Source   string           `json:"source"`
	Report   *ensemble.Report `json:"report"`
	Ensemble ensemble.Spec    `json:"ensemble"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	var record core.InputRecord
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		s.writeError(w, r, core.WrapDomainError("server", core.ErrorCodeInvalidInput, err, "decode request body"))
		return
	}

	res, err := s.predictor.Predict(r.Context(), record)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.state == nil || s.state.Bundle == nil {
		s.writeError(w, r, core.NewMissingArtifactError("inference context", nil))
		return
	}
	writeJSON(w, http.StatusOK, modelsBody{
		Source:   s.state.Bundle.Source,
		Report:   s.state.Bundle.Report,
		Ensemble: s.state.Spec,
	})
}

func (s *Server) handleFeatures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"features": s.monitor.Stats()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: errorDetail{Code: codeFor(err), Message: err.Error()}}
	// 两个子任务都失败时逐个给出
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			body.Errors = append(body.Errors, inference.NewTaskError("", e))
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("predict failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case core.IsInvalidInput(err):
		return http.StatusBadRequest
	case core.IsMissingArtifact(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	if de := core.GetDomainError(err); de != nil {
		return de.Code
	}
	return "INTERNAL"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
