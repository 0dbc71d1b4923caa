package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", ErrCampFull)
	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, "Camp is full", got.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	got := FromError(errors.New("socket closed"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Contains(t, got.Error(), "socket closed")
}

func TestCloneMatchesSentinel(t *testing.T) {
	cloned := Clone(ErrInvalidPromo, "Promo code has expired")
	assert.True(t, errors.Is(cloned, ErrInvalidPromo))
	assert.False(t, errors.Is(cloned, ErrCampFull))
	assert.Equal(t, "Promo code has expired", cloned.Message)
	assert.Equal(t, "Invalid promo code", ErrInvalidPromo.Message)
}

func TestFromErrorNil(t *testing.T) {
	assert.Nil(t, FromError(nil))
}
