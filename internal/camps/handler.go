package camps

import (
	"context"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/pkg/response"
	"github.com/campverse/backend/pkg/storage"
)

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Handler handles camp HTTP endpoints.
type Handler struct {
	svc    *Service
	images ImageUploader
	logger *zap.Logger
}

// NewHandler creates a camps handler. images may be nil when S3 is not configured.
func NewHandler(svc *Service, images ImageUploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, images: images, logger: logger}
}

// ListResponse is a page of camps.
type ListResponse struct {
	Camps []models.Camp `json:"camps"`
	Total int64         `json:"total"`
}

// ApproveRequest is the body for POST /camps/:id/approve.
type ApproveRequest struct {
	Action ApprovalAction `json:"action" binding:"required"`
	Reason string         `json:"reason"`
}

// Create handles POST /camps.
func (h *Handler) Create(c *gin.Context) {
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	var req CampInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	camp, err := h.svc.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, camp)
}

// List handles GET /camps?mine=1&status=&category=&q=&limit=&skip=. Authentication is optional.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	skip, _ := strconv.ParseInt(c.Query("skip"), 10, 64)
	list, total, err := h.svc.List(c.Request.Context(), viewer(c), ListQuery{
		Mine:     c.Query("mine") == "1" || c.Query("mine") == "true",
		Status:   models.CampStatus(c.Query("status")),
		Category: c.Query("category"),
		Search:   c.Query("q"),
		Limit:    limit,
		Skip:     skip,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ListResponse{Camps: list, Total: total})
}

// Get handles GET /camps/:id where :id is an ObjectID or a slug.
func (h *Handler) Get(c *gin.Context) {
	camp, err := h.svc.Get(c.Request.Context(), viewer(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, camp)
}

// Update handles PATCH /camps/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := campID(c)
	if !ok {
		return
	}
	var req CampUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	camp, err := h.svc.Update(c.Request.Context(), p, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, camp)
}

// Delete handles DELETE /camps/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := campID(c)
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	if err := h.svc.Delete(c.Request.Context(), p, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// Approve handles POST /camps/:id/approve. Admin only.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := campID(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "action required")
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	result, err := h.svc.Approve(c.Request.Context(), p, id, req.Action, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// UploadImage handles POST /camps/:id/image (multipart "file").
func (h *Handler) UploadImage(c *gin.Context) {
	if h.images == nil {
		response.Error(c, errStorageDisabled)
		return
	}
	id, ok := campID(c)
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	if _, err := h.svc.CheckEditable(c.Request.Context(), p, id); err != nil {
		response.Error(c, err)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	if file.Size > storage.MaxImageSize {
		response.BadRequest(c, "image exceeds 5MB")
		return
	}
	contentType, ok := storage.ImageContentType(file.Header.Get("Content-Type"), file.Filename)
	if !ok {
		response.BadRequest(c, "unsupported image type")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.BadRequest(c, "cannot read file")
		return
	}
	defer f.Close()

	url, err := h.images.UploadImage(c.Request.Context(), storage.CampImageKey(id.Hex(), uuid.New().String(), contentType), contentType, f, file.Size)
	if err != nil {
		h.logger.Error("camp image upload failed", zap.Error(err), zap.String("camp_id", id.Hex()))
		response.Error(c, err)
		return
	}
	camp, err := h.svc.SetImage(c.Request.Context(), p, id, url)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, camp)
}

// AddReview handles POST /camps/:id/reviews.
func (h *Handler) AddReview(c *gin.Context) {
	id, ok := campID(c)
	if !ok {
		return
	}
	var req ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	camp, err := h.svc.AddReview(c.Request.Context(), p, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"avgRating": camp.AvgRating, "ratingBreakdown": camp.RatingBreakdown, "reviews": len(camp.Reviews)})
}

func campID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid camp id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func viewer(c *gin.Context) *authz.Principal {
	if p, ok := middleware.CurrentPrincipal(c); ok {
		return &p
	}
	return nil
}
