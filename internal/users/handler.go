package users

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/pkg/response"
)

// Handler handles user profile and admin user endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListResponse is a page of users.
type ListResponse struct {
	Users []models.UserPublic `json:"users"`
	Total int64               `json:"total"`
}

// UpdateMe handles PATCH /users/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	var req ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// List handles GET /admin/users?role=&q=&limit=&skip=.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	skip, _ := strconv.ParseInt(c.Query("skip"), 10, 64)
	list, total, err := h.svc.List(c.Request.Context(), ListFilter{
		Role:   models.Role(c.Query("role")),
		Search: c.Query("q"),
		Limit:  limit,
		Skip:   skip,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]models.UserPublic, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToPublic())
	}
	response.OK(c, ListResponse{Users: out, Total: total})
}

// ChangeRoleRequest is the body for PATCH /admin/users/:id/role.
type ChangeRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// ChangeRole handles PATCH /admin/users/:id/role.
func (h *Handler) ChangeRole(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	u, err := h.svc.ChangeRole(c.Request.Context(), p, id, req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// ToggleBan handles POST /admin/users/:id/ban.
func (h *Handler) ToggleBan(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	u, err := h.svc.ToggleBan(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// Delete handles DELETE /admin/users/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}
