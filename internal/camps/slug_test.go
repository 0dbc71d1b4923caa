package camps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/campverse/backend/pkg/errors"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Summer Science Camp 2025", "summer-science-camp-2025"},
		{"  Code & Coffee!!  ", "code-coffee"},
		{"--Robotics--", "robotics"},
		{"ค่ายวิทยาศาสตร์ ปี 2", "ค่ายวิทยาศาสตร์-ปี-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slugify(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlugifyRejectsDegenerateNames(t *testing.T) {
	for _, name := range []string{"", "   ", "-", "!!!", "- - -"} {
		_, err := Slugify(name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidSlug, name)
	}
}
