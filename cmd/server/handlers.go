package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

// handleSaveChanges handles POST /breeze/SaveChanges
func (s *Server) handleSaveChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var bundle breeze.SaveBundle
	if err := readJSONBody(r, &bundle); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	result, err := s.manager.SaveChanges(r.Context(), &bundle)
	if err != nil {
		status := saveErrorStatus(err)
		if status >= http.StatusInternalServerError {
			zap.S().Errorw("save changes failed", "error", err)
		}
		writeSaveError(w, status, err)
		return
	}
	if result.Failed() {
		writeJSON(w, http.StatusBadRequest, saveErrorResponse{Errors: result.Errors, Message: result.Message})
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("database unavailable: %v", err))
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveErrorStatus maps a save failure to its HTTP status.
func saveErrorStatus(err error) int {
	var saveErr *breeze.SaveError
	if !errors.As(err, &saveErr) {
		return http.StatusInternalServerError
	}
	switch saveErr.Type {
	case breeze.ErrorTypeConcurrency:
		return http.StatusConflict
	case breeze.ErrorTypeConfiguration, breeze.ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeSaveError(w http.ResponseWriter, status int, err error) {
	resp := saveErrorResponse{Message: err.Error()}
	var saveErr *breeze.SaveError
	if errors.As(err, &saveErr) {
		resp.Errors = saveErr.EntityErrors
		resp.Code = saveErr.Code
		resp.Details = saveErr.Details
	}
	if resp.Errors == nil {
		resp.Errors = []breeze.EntityError{}
	}
	writeJSON(w, status, resp)
}
