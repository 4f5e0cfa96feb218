// internal/circulation/handler.go
package circulation

import (
	"context"
	"net/http"
	"time"

	"librarian/internal/catalog"
	"librarian/internal/httpx"
	"librarian/internal/membership"
)

// BookLookup reads a single book.
type BookLookup interface {
	GetBook(ctx context.Context, id int64) (*catalog.Book, error)
}

type Handler struct {
	service Service
	scanner *Scanner
	books   BookLookup
}

func NewHandler(service Service, scanner *Scanner, books BookLookup) *Handler {
	return &Handler{service: service, scanner: scanner, books: books}
}

// HandleCheckout lends a book. Patrons may only check out for themselves;
// an omitted patron_id means the caller.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID   int64 `json:"book_id" validate:"required,gt=0"`
		PatronID int64 `json:"patron_id" validate:"omitempty,gt=0"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	claims, _ := membership.ClaimsFrom(r.Context())
	if req.PatronID == 0 {
		req.PatronID = claims.PatronID
	}
	if !claims.CanActFor(req.PatronID) {
		httpx.Error(w, http.StatusForbidden, membership.ErrForbidden.Error())
		return
	}

	book, err := h.service.Checkout(r.Context(), req.BookID, req.PatronID)
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, book)
}

// HandleReturn accepts a return from the holder or an admin.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID int64 `json:"book_id" validate:"required,gt=0"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	claims, _ := membership.ClaimsFrom(r.Context())
	if !claims.IsAdmin() {
		current, err := h.books.GetBook(r.Context(), req.BookID)
		if err != nil {
			catalog.WriteError(w, err)
			return
		}
		if current.PatronID != nil && *current.PatronID != claims.PatronID {
			httpx.Error(w, http.StatusForbidden, membership.ErrForbidden.Error())
			return
		}
	}

	book, err := h.service.Return(r.Context(), req.BookID)
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, book)
}

// HandleOverdue lists overdue books as of ?as_of=YYYY-MM-DD, default today.
func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := h.scanner.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	books, err := h.scanner.FindOverdue(r.Context(), asOf)
	if err != nil {
		catalog.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of": asOf.Format("2006-01-02"),
		"count": len(books),
		"books": books,
	})
}
