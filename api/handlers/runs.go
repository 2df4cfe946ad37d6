package handlers

import (
	"net/http"
	"strconv"

	"github.com/BaSui01/evoflow/api"
	"github.com/BaSui01/evoflow/tracker"
	"go.uber.org/zap"
)

// =============================================================================
// 🧬 运行查询 Handler
// =============================================================================

// RunHandler 演化运行只读查询
type RunHandler struct {
	tracker tracker.Tracker
	logger  *zap.Logger
}

// NewRunHandler 创建运行查询处理器
func NewRunHandler(t tracker.Tracker, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{tracker: t, logger: logger.With(zap.String("component", "run_handler"))}
}

// HandleGetRun 处理 GET /runs/{runID}
func (h *RunHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	ctx := r.Context()

	run, err := h.tracker.GetRun(ctx, runID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	gens, err := h.tracker.ListGenerations(ctx, runID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	invs, err := h.tracker.ListInvocations(ctx, runID, -1)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.NewRunDetail(run, gens, invs))
}

// HandleListInvocations 处理 GET /runs/{runID}/invocations[?generation=N]
func (h *RunHandler) HandleListInvocations(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	ctx := r.Context()

	out := api.InvocationList{RunID: runID}
	generation := -1
	if raw := r.URL.Query().Get("generation"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, ErrInvalidRequest, "generation must be a non-negative integer")
			return
		}
		generation = n
		out.Generation = &n
	}

	if _, err := h.tracker.GetRun(ctx, runID); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	invs, err := h.tracker.ListInvocations(ctx, runID, generation)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	out.Invocations = invs
	if out.Invocations == nil {
		out.Invocations = []tracker.WorkflowInvocation{}
	}

	WriteSuccess(w, out)
}
