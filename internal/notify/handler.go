package notify

import (
	"errors"
	"net/http"

	"librarian/internal/catalog"
	"librarian/internal/httpx"
	"librarian/internal/membership"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// HandleListNotifications returns the caller's notifications, newest first.
// ?unread=true limits the result to unread ones.
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	claims, _ := membership.ClaimsFrom(r.Context())
	unread := r.URL.Query().Get("unread") == "true"

	out, err := h.store.ListNotifications(r.Context(), claims.PatronID, unread)
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	claims, _ := membership.ClaimsFrom(r.Context())

	n, err := h.store.MarkNotificationRead(r.Context(), claims.PatronID, id)
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	claims, _ := membership.ClaimsFrom(r.Context())

	if err := h.store.DeleteNotification(r.Context(), claims.PatronID, id); err != nil {
		catalog.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errUnknownType = errors.New("unknown email_type")

// HandleListEmailLogs is the admin view of the email audit trail.
func (h *Handler) HandleListEmailLogs(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	if typ != "" && !ValidEmailType(typ) {
		httpx.Error(w, http.StatusBadRequest, errUnknownType.Error()+": "+typ)
		return
	}
	skip, limit := httpx.Page(r)

	logs, err := h.store.ListEmailLogs(r.Context(), EmailLogFilter{
		Type: typ,
		Page: catalog.Page{Skip: skip, Limit: limit},
	})
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) HandleGetEmailLog(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.store.GetEmailLog(r.Context(), id)
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}
