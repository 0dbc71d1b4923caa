package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/pkg/response"
	"github.com/campverse/backend/pkg/utils"
)

// Lister reads email logs.
type Lister interface {
	List(ctx context.Context, f Filter) ([]models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo Lister
}

// NewHandler creates an email logs handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /admin/email-logs?recipient=&refId=&status=&limit=. Admin only.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	status := c.Query("status")
	if status != "" && status != models.EmailLogStatusSent && status != models.EmailLogStatusFailed {
		response.BadRequest(c, "invalid status")
		return
	}
	logs, err := h.repo.List(c.Request.Context(), Filter{
		Recipient: utils.NormalizeEmail(c.Query("recipient")),
		RefID:     c.Query("refId"),
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}
