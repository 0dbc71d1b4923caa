package payouts

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/pkg/response"
)

// Reader reads the ledger.
type Reader interface {
	List(ctx context.Context, organizerID string, limit int) ([]Entry, error)
	Summarize(ctx context.Context, organizerID string) (*Summary, error)
}

// Handler serves payout ledger endpoints.
type Handler struct {
	ledger Reader
}

// NewHandler creates a payouts handler.
func NewHandler(ledger Reader) *Handler {
	return &Handler{ledger: ledger}
}

// Mine handles GET /payouts/me for organizers.
func (h *Handler) Mine(c *gin.Context) {
	p := c.MustGet(middleware.ContextPrincipal).(authz.Principal)
	organizerID := p.UserID.Hex()
	summary, err := h.ledger.Summarize(c.Request.Context(), organizerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.ledger.List(c.Request.Context(), organizerID, limit(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"summary": summary, "entries": entries})
}

// List handles GET /admin/payouts?organizerId=&limit=.
func (h *Handler) List(c *gin.Context) {
	entries, err := h.ledger.List(c.Request.Context(), c.Query("organizerId"), limit(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

func limit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}
