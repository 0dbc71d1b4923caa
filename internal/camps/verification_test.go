package camps

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campverse/backend/internal/models"
)

func goodCamp(now time.Time) *models.Camp {
	start := now.Add(30 * 24 * time.Hour)
	end := start.Add(3 * 24 * time.Hour)
	return &models.Camp{
		Name:             "Young Coders Camp",
		Description:      strings.Repeat("Learn programming with friends. ", 3),
		ImageURL:         "https://cdn.example.com/camp.png",
		Location:         "Chiang Mai",
		StartDate:        &start,
		EndDate:          &end,
		Capacity:         40,
		OrganizerContact: "contact@example.com",
	}
}

func TestVerifyPerfectScore(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := Verify(goodCamp(now), now)
	assert.Equal(t, 100, v.Score)
	assert.Empty(t, v.Issues)
}

func TestVerifyDeductions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	before := past.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		mutate func(c *models.Camp)
		want   int
	}{
		{"short name", func(c *models.Camp) { c.Name = "Camp" }, 90},
		{"short description", func(c *models.Camp) { c.Description = "Too short" }, 85},
		{"missing image", func(c *models.Camp) { c.ImageURL = "" }, 90},
		{"non-http image", func(c *models.Camp) { c.ImageURL = "ftp://x/y.png" }, 90},
		{"start in past", func(c *models.Camp) { c.StartDate = &past }, 80},
		{"end before start", func(c *models.Camp) { c.EndDate = &before; c.StartDate = &past }, 60},
		{"no capacity", func(c *models.Camp) { c.Capacity = 0 }, 90},
		{"no location", func(c *models.Camp) { c.Location = " " }, 90},
		{"no contact", func(c *models.Camp) { c.OrganizerContact = "" }, 90},
		{"two fraud words", func(c *models.Camp) { c.Description += " Get rich with BITCOIN" }, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := goodCamp(now)
			tt.mutate(c)
			assert.Equal(t, tt.want, Verify(c, now).Score)
		})
	}
}

func TestVerifyFloorsAtZero(t *testing.T) {
	c := &models.Camp{Name: "free money guaranteed income bitcoin wire transfer get rich"}
	v := Verify(c, time.Now())
	assert.Equal(t, 0, v.Score)
	assert.NotEmpty(t, v.Issues)
}
