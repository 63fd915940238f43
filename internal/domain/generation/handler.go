package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/ratelimit"
	"github.com/bannerforge/bannerforge-api/internal/middleware"
	"github.com/bannerforge/bannerforge-api/internal/pkg/errorhandler"
	"github.com/bannerforge/bannerforge-api/internal/pkg/response"
)

// DeviceHeader carries the client's device fingerprint.
const DeviceHeader = "X-Device-Fingerprint"

const maxBodyBytes = 64 << 10

// Handler handles generation HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates generation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns generation router. POST is reachable anonymously so the
// pipeline can report maintenance before authentication.
func (h *Handler) Routes(authMiddleware, optionalAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.With(optionalAuth).Post("/", h.Create)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
	})

	return r
}

// Create handles POST /generations
// @Summary Generate a design
// @Tags Generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Generation request"
// @Success 201 {object} response.Response{data=Result}
// @Failure 400,401,402,422,429,500,502,503 {object} response.Response
// @Router /generations [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	ctx := r.Context()
	id := Identity{
		UserID: middleware.GetUserID(ctx),
		Tier:   credit.ParseTier(middleware.GetTier(ctx)),
		IP:     middleware.ClientIP(r),
		Device: strings.TrimSpace(r.Header.Get(DeviceHeader)),
	}

	result, err := h.service.Generate(ctx, id, req)
	if err != nil {
		errorhandler.HandleError(ctx, w, err)
		return
	}

	ratelimit.SetHeaders(w, result.Admission)
	response.Created(w, result)
}

// List handles GET /generations
// @Summary List my generations
// @Tags Generation
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Response{data=[]Record}
// @Router /generations [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	records, err := h.service.History(r.Context(), userID, limit+1, offset)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}

	hasNext := len(records) > limit
	if hasNext {
		records = records[:limit]
	}

	response.WithMeta(w, records, response.Meta{Limit: limit, Offset: offset, HasNext: hasNext})
}

// GetByID handles GET /generations/{id}
// @Summary Get a generation
// @Tags Generation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Generation ID"
// @Success 200 {object} response.Response{data=Record}
// @Failure 400,404 {object} response.Response
// @Router /generations/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid generation ID")
		return
	}

	rec, err := h.service.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "Generation not found")
			return
		}
		errorhandler.HandleError(r.Context(), w, err)
		return
	}

	response.OK(w, rec)
}
