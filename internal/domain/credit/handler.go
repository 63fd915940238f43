package credit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/middleware"
	"github.com/bannerforge/bannerforge-api/internal/pkg/errorhandler"
	"github.com/bannerforge/bannerforge-api/internal/pkg/response"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns credit router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.Balance)
	r.Get("/transactions", h.Transactions)

	return r
}

// Balance handles GET /credits
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.Check(r.Context(), userID, ParseTier(middleware.GetTier(r.Context())))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}

	response.OK(w, balance)
}

// Transactions handles GET /credits/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	// fetch one extra row to know whether there is a next page
	txs, err := h.svc.Transactions(r.Context(), userID, limit+1, offset)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}

	hasNext := len(txs) > limit
	if hasNext {
		txs = txs[:limit]
	}

	response.WithMeta(w, txs, response.Meta{Limit: limit, Offset: offset, HasNext: hasNext})
}
