package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		want        string
		ok          bool
	}{
		{"declared type wins", "image/png", "slip.bin", "image/png", true},
		{"extension fallback", "", "slip.JPEG", "image/jpeg", true},
		{"octet stream with ext", "application/octet-stream", "slip.webp", "image/webp", true},
		{"pdf rejected", "application/pdf", "slip.pdf", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ImageContentType(tt.contentType, tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "slips/p1/abc.png", SlipKey("p1", "abc", "image/png"))
	assert.Equal(t, "camps/c1/cover.jpg", CampImageKey("c1", "cover", "image/jpeg"))
}
