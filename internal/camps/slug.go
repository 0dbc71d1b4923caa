package camps

import (
	"strings"
	"unicode"

	apperrors "github.com/campverse/backend/pkg/errors"
)

// Slugify lowercases name and collapses every run of characters that are not letters,
// digits or combining marks into a single hyphen. Names that reduce to nothing are rejected.
func Slugify(name string) (string, error) {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	slug := b.String()
	if slug == "" || slug == "-" {
		return "", apperrors.ErrInvalidSlug
	}
	return slug, nil
}
