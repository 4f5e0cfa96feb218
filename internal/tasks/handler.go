package tasks

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"librarian/internal/catalog"
	"librarian/internal/httpx"
)

// MaxReportWait caps the ?wait= parameter.
const MaxReportWait = time.Minute

type Handler struct {
	runner     *Runner
	reportWait time.Duration
}

func NewHandler(runner *Runner, reportWait time.Duration) *Handler {
	return &Handler{runner: runner, reportWait: reportWait}
}

func (h *Handler) HandleSendReminders(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, NameOverdueReminders)
}

func (h *Handler) HandleTestEmail(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, NameSendTestEmail)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, name string) {
	t, err := h.runner.Enqueue(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, t)
}

// HandleWeeklyReport enqueues the report and waits a bounded time for it.
// A task still running when the wait ends is reported as in progress.
func (h *Handler) HandleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	wait := h.reportWait
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			httpx.Error(w, http.StatusBadRequest, "wait must be a duration such as 10s")
			return
		}
		wait = min(d, MaxReportWait)
	}

	t, err := h.runner.Enqueue(r.Context(), NameWeeklyReport)
	if err != nil {
		writeError(w, err)
		return
	}

	done, err := h.runner.Wait(r.Context(), t.ID, wait)
	switch {
	case errors.Is(err, ErrTaskTimeout):
		state := t.State
		if done != nil {
			state = done.State
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{
			"task_id": t.ID,
			"state":   state,
			"message": "report generation in progress",
		})
	case err != nil:
		writeError(w, err)
	case done.State == StateFailed:
		httpx.JSON(w, http.StatusInternalServerError, done)
	default:
		httpx.JSON(w, http.StatusOK, done)
	}
}

func (h *Handler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.runner.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownTask):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		catalog.WriteError(w, err)
	}
}
