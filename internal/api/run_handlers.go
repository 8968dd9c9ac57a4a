package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	iduuid "github.com/JakeFAU/chunkgen/internal/id/uuid"
	"github.com/JakeFAU/chunkgen/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	runTimeout      = 3 * time.Second
)

// RunHandler exposes read-only run history endpoints.
type RunHandler struct {
	repo    store.RunRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the repository and logger.
func NewRunHandler(repo store.RunRepository, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		repo:    repo,
		timeout: runTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns
// {"runs": [...]} on success, 400 for invalid filters, 503 when no repository
// is configured, or 500 if the repository call fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := store.RunStatus(strings.ToLower(raw))
		if !s.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &s
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, rec := range runs {
		out = append(out, toRunDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}}, 400 for
// malformed IDs, or 404 when the repository reports store.ErrNotFound.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Stringer("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(rec)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := iduuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type runDTO struct {
	ID         string     `json:"id"`
	Region     string     `json:"region"`
	Status     string     `json:"status"`
	Total      int64      `json:"total"`
	Completed  int64      `json:"completed"`
	Failed     int64      `json:"failed"`
	Pass       int        `json:"pass"`
	Percent    float64    `json:"percent"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

func toRunDTO(rec store.RunRecord) runDTO {
	dto := runDTO{
		ID:         rec.ID.String(),
		Region:     rec.Region,
		Status:     string(rec.Status),
		Total:      rec.Total,
		Completed:  rec.Completed,
		Failed:     rec.Failed,
		Pass:       rec.Pass,
		StartedAt:  rec.StartedAt,
		UpdatedAt:  rec.UpdatedAt,
		FinishedAt: rec.FinishedAt,
		Error:      rec.ErrorMessage,
	}
	if rec.Total > 0 {
		dto.Percent = float64(rec.Completed) / float64(rec.Total) * 100
	}
	return dto
}
