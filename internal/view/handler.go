package view

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

const (
	maxRequestBodyBytes = 4 << 10
	maxPages            = 1000
)

// Rescanner starts a new scan on request.
type Rescanner interface {
	Rescan(ctx context.Context, reason string) error
}

// StateProvider exposes the running scan's progress.
type StateProvider interface {
	State() model.ScanState
}

type Handler struct {
	grid      *Grid
	rescanner Rescanner
	state     StateProvider
	logger    *slog.Logger
}

type HandlerOption func(*Handler)

func WithRescanner(r Rescanner) HandlerOption {
	return func(h *Handler) { h.rescanner = r }
}

func WithStateProvider(p StateProvider) HandlerOption {
	return func(h *Handler) { h.state = p }
}

func NewHandler(grid *Grid, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{grid: grid, logger: logger.With("component", "view")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the view routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /collections", h.handleSnapshot)
	mux.HandleFunc("POST /collections/load-more", h.handleLoadMore)
	mux.HandleFunc("POST /collections/rescan", h.handleRescan)
	mux.HandleFunc("GET /scan/state", h.handleState)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("pages")
	if raw == "" {
		writeJSON(w, http.StatusOK, h.grid.Snapshot())
		return
	}
	pages, err := strconv.Atoi(raw)
	if err != nil || pages < 1 || pages > maxPages {
		writeError(w, http.StatusBadRequest, "pages must be an integer between 1 and 1000")
		return
	}
	writeJSON(w, http.StatusOK, h.grid.SnapshotPages(pages))
}

func (h *Handler) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.grid.LoadMore())
}

type rescanRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRescan(w http.ResponseWriter, r *http.Request) {
	if h.rescanner == nil {
		writeError(w, http.StatusServiceUnavailable, "rescan not available")
		return
	}

	req := rescanRequest{Reason: "manual"}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	if err := h.rescanner.Rescan(r.Context(), req.Reason); err != nil {
		h.logger.Error("rescan request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rescan failed")
		return
	}
	writeJSON(w, http.StatusAccepted, h.grid.Snapshot())
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if h.state == nil {
		writeError(w, http.StatusServiceUnavailable, "scan state not available")
		return
	}
	writeJSON(w, http.StatusOK, h.state.State())
}
