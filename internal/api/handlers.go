package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/sidestamp/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	runs *RunService
}

// NewHandler creates a new Handler.
func NewHandler(runs *RunService) *Handler {
	return &Handler{runs: runs}
}

// StartRun handles POST /api/runs.
//
//	@Summary		Start a run over a directory of the library
//	@Tags			runs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StartRunRequest	true	"Directory relative to the library root"
//	@Success		202		{object}	RunStatus
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs [post]
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	st, err := h.runs.Start(req.Path, req.DryRun)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("a run is already in progress"))
		case errors.Is(err, apperr.ErrInvalidPath), errors.Is(err, apperr.ErrDirectoryNotFound):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("start run failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// CurrentRun handles GET /api/runs/current.
//
//	@Summary		Get the current or last run
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	RunStatus
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/current [get]
func (h *Handler) CurrentRun(w http.ResponseWriter, _ *http.Request) {
	st, err := h.runs.Current()
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no run yet"))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, st)
}
