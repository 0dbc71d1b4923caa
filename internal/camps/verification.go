package camps

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/campverse/backend/internal/models"
)

// fraudWords are phrases that commonly show up in scam listings.
var fraudWords = []string{"free money", "guaranteed income", "bitcoin", "wire transfer", "get rich"}

// Verification is the advisory content check shown to admins before approving a camp.
type Verification struct {
	Score  int      `json:"score"`
	Issues []string `json:"issues"`
}

// Verify scores camp out of 100. The score never blocks approval.
func Verify(camp *models.Camp, now time.Time) Verification {
	v := Verification{Score: 100, Issues: []string{}}
	deduct := func(points int, issue string) {
		v.Score -= points
		v.Issues = append(v.Issues, issue)
	}

	if utf8.RuneCountInString(strings.TrimSpace(camp.Name)) < 5 {
		deduct(10, "name is shorter than 5 characters")
	}
	if utf8.RuneCountInString(strings.TrimSpace(camp.Description)) < 50 {
		deduct(15, "description is shorter than 50 characters")
	}
	if !isHTTPURL(camp.ImageURL) {
		deduct(10, "image URL is missing or invalid")
	}
	if camp.StartDate != nil && camp.StartDate.Before(now) {
		deduct(20, "start date is in the past")
	}
	if camp.StartDate != nil && camp.EndDate != nil && camp.EndDate.Before(*camp.StartDate) {
		deduct(20, "end date is before start date")
	}
	if camp.Capacity <= 0 {
		deduct(10, "capacity is missing or invalid")
	}
	if strings.TrimSpace(camp.Location) == "" {
		deduct(10, "location is missing")
	}
	if strings.TrimSpace(camp.OrganizerContact) == "" {
		deduct(10, "organizer contact is missing")
	}
	text := strings.ToLower(camp.Name + " " + camp.Description)
	for _, w := range fraudWords {
		if strings.Contains(text, w) {
			deduct(15, "suspicious phrase: "+w)
		}
	}

	if v.Score < 0 {
		v.Score = 0
	}
	return v
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
