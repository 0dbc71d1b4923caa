package promocodes

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/pkg/response"
)

// Handler handles promo code endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a promo code handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Validate handles POST /promo/validate. No use is consumed.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "code and amount required")
		return
	}
	quote, err := h.svc.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, quote)
}

// List handles GET /admin/promocodes.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /admin/promocodes.
func (h *Handler) Create(c *gin.Context) {
	var req PromoInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	promo, err := h.svc.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, promo)
}

// Update handles PATCH /admin/promocodes/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid promo code id")
		return
	}
	var req PromoUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	promo, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, promo)
}

// Delete handles DELETE /admin/promocodes/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid promo code id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}
