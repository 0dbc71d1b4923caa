package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/internal/models"
)

type fakeReader struct {
	entries  []Entry
	askedFor string
	err      error
}

func (f *fakeReader) List(_ context.Context, organizerID string, _ int) ([]Entry, error) {
	f.askedFor = organizerID
	return f.entries, f.err
}

func (f *fakeReader) Summarize(_ context.Context, organizerID string) (*Summary, error) {
	total := decimal.Zero
	for _, e := range f.entries {
		total = total.Add(e.Amount)
	}
	return &Summary{OrganizerID: organizerID, Payments: int64(len(f.entries)), Total: total}, f.err
}

func TestMine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	organizer := authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleOrganizer}
	reader := &fakeReader{entries: []Entry{
		{ID: uuid.New(), PaymentID: "p1", OrganizerID: organizer.UserID.Hex(), Amount: decimal.RequireFromString("2800.00"), ReleasedAt: time.Now()},
		{ID: uuid.New(), PaymentID: "p2", OrganizerID: organizer.UserID.Hex(), Amount: decimal.RequireFromString("1500.50"), ReleasedAt: time.Now()},
	}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/payouts/me", nil)
	c.Set(middleware.ContextPrincipal, organizer)
	NewHandler(reader).Mine(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, organizer.UserID.Hex(), reader.askedFor)
	var body struct {
		Data struct {
			Summary Summary `json:"summary"`
			Entries []Entry `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Data.Summary.Payments)
	assert.True(t, decimal.RequireFromString("4300.5").Equal(body.Data.Summary.Total))
	assert.Len(t, body.Data.Entries, 2)
}

func TestList_Error(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/admin/payouts?organizerId=abc", nil)
	reader := &fakeReader{err: errors.New("connection refused")}
	NewHandler(reader).List(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "abc", reader.askedFor)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
