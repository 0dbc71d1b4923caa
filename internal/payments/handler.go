package payments

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/response"
	"github.com/campverse/backend/pkg/storage"
)

const (
	defaultQRSize = 512
	maxQRSize     = 1024
)

// SlipUploader stores slip images and returns their public URL.
type SlipUploader interface {
	UploadImage(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Handler handles payment HTTP endpoints.
type Handler struct {
	svc          *Service
	uploads      SlipUploader
	releaseBatch int64
	logger       *zap.Logger
}

// NewHandler creates a payments handler. uploads may be nil when S3 is not configured.
func NewHandler(svc *Service, uploads SlipUploader, releaseBatch int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, uploads: uploads, releaseBatch: int64(releaseBatch), logger: logger}
}

// AttachSlipRequest is the body for PATCH /payment/:id.
type AttachSlipRequest struct {
	SlipURL string               `json:"slipUrl" binding:"required,url"`
	Status  models.PaymentStatus `json:"status" binding:"required,eq=completed"`
}

// VerifySlipRequest is the body for POST /payment/verify-slip.
type VerifySlipRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
}

// RejectRequest is the body for POST /payments/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// Create handles POST /payment.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pay)
}

// Get handles GET /payment/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := paymentID(c, c.Param("id"))
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.Get(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pay)
}

// List handles GET /payments?status=&campId=&limit=&skip=.
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{Status: models.PaymentStatus(c.Query("status"))}
	if raw := c.Query("campId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			response.BadRequest(c, "invalid campId")
			return
		}
		q.CampID = &id
	}
	q.Limit, _ = strconv.ParseInt(c.Query("limit"), 10, 64)
	q.Skip, _ = strconv.ParseInt(c.Query("skip"), 10, 64)
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	list, err := h.svc.List(c.Request.Context(), p, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// AttachSlip handles PATCH /payment/:id with an already hosted slip URL.
func (h *Handler) AttachSlip(c *gin.Context) {
	id, ok := paymentID(c, c.Param("id"))
	if !ok {
		return
	}
	var req AttachSlipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "slipUrl and status=completed required")
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.AttachSlip(c.Request.Context(), p, id, req.SlipURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pay)
}

// UploadSlip handles POST /payment/slip (multipart "file" and "paymentId").
func (h *Handler) UploadSlip(c *gin.Context) {
	if h.uploads == nil {
		response.Error(c, apperrors.Clone(apperrors.ErrUnavailable, "Slip upload is not configured"))
		return
	}
	id, ok := paymentID(c, c.PostForm("paymentId"))
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	if _, err := h.svc.CheckPayable(c.Request.Context(), p, id); err != nil {
		response.Error(c, err)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	if file.Size > storage.MaxImageSize {
		response.BadRequest(c, "slip exceeds 5MB")
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

	key := storage.SlipKey(id.Hex(), uuid.New().String(), contentType)
	url, err := h.uploads.UploadImage(c.Request.Context(), key, contentType, f, file.Size)
	if err != nil {
		h.logger.Error("slip upload failed", zap.Error(err), zap.String("payment_id", id.Hex()))
		response.Error(c, err)
		return
	}
	pay, err := h.svc.AttachSlip(c.Request.Context(), p, id, url)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pay)
}

// VerifySlip handles POST /payment/verify-slip.
func (h *Handler) VerifySlip(c *gin.Context) {
	var req VerifySlipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "paymentId required")
		return
	}
	id, ok := paymentID(c, req.PaymentID)
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.RequestVerification(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"verified":             pay.SlipVerified,
		"requiresManualReview": pay.RequiresManualReview,
		"issues":               pay.VerificationIssues,
		"payment":              pay,
	})
}

// Approve handles POST /payments/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := paymentID(c, c.Param("id"))
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.Approve(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pay)
}

// Reject handles POST /payments/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := paymentID(c, c.Param("id"))
	if !ok {
		return
	}
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "reason required")
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.Reject(c.Request.Context(), p, id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pay)
}

// Confirm handles POST /payments/:id/confirm.
func (h *Handler) Confirm(c *gin.Context) {
	id, ok := paymentID(c, c.Param("id"))
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	pay, err := h.svc.Confirm(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pay)
}

// QRCode handles GET /payment/:id/qr?size=.
func (h *Handler) QRCode(c *gin.Context) {
	id, ok := paymentID(c, c.Param("id"))
	if !ok {
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))
	if size <= 0 || size > maxQRSize {
		size = defaultQRSize
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	png, err := h.svc.QRCode(c.Request.Context(), p, id, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// ReleaseDue handles POST /admin/payments/release-due.
func (h *Handler) ReleaseDue(c *gin.Context) {
	n, err := h.svc.ReleaseDue(c.Request.Context(), time.Now().UTC(), h.releaseBatch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"released": n})
}

func paymentID(c *gin.Context, raw string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		response.BadRequest(c, "invalid payment id")
		return primitive.NilObjectID, false
	}
	return id, true
}
