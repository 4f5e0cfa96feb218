// internal/membership/handler.go
package membership

import (
	"errors"
	"net/http"

	"librarian/internal/catalog"
	"librarian/internal/httpx"
)

type Handler struct {
	service Service
	tokens  *Tokens
}

func NewHandler(service Service, tokens *Tokens) *Handler {
	return &Handler{service: service, tokens: tokens}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
		Email    string `json:"email" validate:"omitempty,email"`
		Password string `json:"password" validate:"required,min=6,max=128"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	patron, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, patron)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	patron, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, exp, err := h.tokens.Issue(patron)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.JSON(w, http.StatusOK, Session{AccessToken: token, TokenType: "bearer", ExpiresAt: exp, Patron: patron})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	patron, err := h.service.GetPatron(r.Context(), claims.PatronID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patron)
}

func (h *Handler) HandleListPatrons(w http.ResponseWriter, r *http.Request) {
	skip, limit := httpx.Page(r)
	patrons, err := h.service.ListPatrons(r.Context(), catalog.Page{Skip: skip, Limit: limit})
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patrons)
}

func (h *Handler) HandleGetPatron(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedPatron(w, r)
	if !ok {
		return
	}
	patron, err := h.service.GetPatron(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patron)
}

func (h *Handler) HandleHeldBooks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedPatron(w, r)
	if !ok {
		return
	}
	books, err := h.service.HeldBooks(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

func (h *Handler) HandleDeletePatron(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeletePatron(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizedPatron reads {id} and checks the caller is that patron or an admin.
func (h *Handler) authorizedPatron(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	claims, _ := ClaimsFrom(r.Context())
	if !claims.CanActFor(id) {
		httpx.Error(w, http.StatusForbidden, ErrForbidden.Error())
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		httpx.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrRateLimited):
		httpx.Error(w, http.StatusTooManyRequests, err.Error())
	default:
		catalog.WriteError(w, err)
	}
}
