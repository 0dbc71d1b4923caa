package registrations

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/pkg/response"
)

const ticketQRSize = 320

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc           *Service
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler creates a registrations handler. publicBaseURL prefixes the ticket links
// encoded in QR codes.
func NewHandler(svc *Service, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, publicBaseURL: strings.TrimRight(publicBaseURL, "/"), logger: logger}
}

// ReviewRequest is the body for PATCH /registrations/:id/status.
type ReviewRequest struct {
	Status models.RegistrationStatus `json:"status" binding:"required,oneof=approved rejected"`
	Note   string                    `json:"note" binding:"max=500"`
}

// Create handles POST /registrations.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	reg, err := h.svc.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// List handles GET /registrations?campId=&status=&limit=&skip=.
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{Status: models.RegistrationStatus(c.Query("status"))}
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

// Get handles GET /registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	reg, err := h.svc.Get(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// ListForCamp handles GET /camps/:id/registrations.
func (h *Handler) ListForCamp(c *gin.Context) {
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	out, err := h.svc.ListForCamp(c.Request.Context(), p, id, models.RegistrationStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// Review handles PATCH /registrations/:id/status.
func (h *Handler) Review(c *gin.Context) {
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "status must be approved or rejected")
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	reg, err := h.svc.Review(c.Request.Context(), p, id, req.Status, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// Confirm handles POST /registrations/:id/confirm.
func (h *Handler) Confirm(c *gin.Context) {
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	reg, err := h.svc.Confirm(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// Cancel handles POST /registrations/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	reg, err := h.svc.Cancel(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// VerifyTicket handles GET /ticket/verify?id=. Organizer of the camp or admin.
func (h *Handler) VerifyTicket(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Query("id"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	result, err := h.svc.CheckIn(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// TicketQR handles GET /registrations/:id/ticket.png. The code links to the check-in page.
func (h *Handler) TicketQR(c *gin.Context) {
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	reg, err := h.svc.Get(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	png, err := qrcode.Encode(h.TicketURL(reg.ID), qrcode.Medium, ticketQRSize)
	if err != nil {
		h.logger.Error("ticket qr encode failed", zap.Error(err), zap.String("registration_id", id.Hex()))
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// TicketURL is the link printed on a ticket.
func (h *Handler) TicketURL(id primitive.ObjectID) string {
	return h.publicBaseURL + "/ticket/verify?id=" + url.QueryEscape(id.Hex())
}

func objectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return primitive.NilObjectID, false
	}
	return id, true
}
