package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	calls int
	limit int64
	err   error
	panic bool
}

func (f *fakeReleaser) ReleaseDue(_ context.Context, _ time.Time, limit int64) (int, error) {
	f.calls++
	f.limit = limit
	if f.panic {
		panic("boom")
	}
	return 3, f.err
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", &fakeReleaser{}, 10, nil)
	assert.Error(t, err)
}

func TestReleaseEscrow(t *testing.T) {
	r := &fakeReleaser{}
	s, err := New("0 */15 * * * *", r, 200, nil)
	require.NoError(t, err)

	s.releaseEscrow()
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, int64(200), r.limit)

	r.err = errors.New("mongo down")
	assert.NotPanics(t, s.releaseEscrow)

	r.panic = true
	assert.NotPanics(t, s.releaseEscrow)
	assert.Equal(t, 3, r.calls)
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", &fakeReleaser{}, 10, nil)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
