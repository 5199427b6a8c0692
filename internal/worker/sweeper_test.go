package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReleaser struct {
	cutoffs  chan time.Time
	released int
	err      error
}

func (f *fakeReleaser) ReleaseExpired(ctx context.Context, cutoff time.Time) (int, error) {
	select {
	case f.cutoffs <- cutoff:
	default:
	}
	return f.released, f.err
}

func TestReservationSweeper_SweepUsesTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	releaser := &fakeReleaser{cutoffs: make(chan time.Time, 1), released: 3}

	s := NewReservationSweeper(releaser, 30*time.Minute, time.Minute, zap.NewNop())
	s.now = func() time.Time { return now }

	assert.Equal(t, 3, s.Sweep(context.Background()))
	assert.Equal(t, now.Add(-30*time.Minute), <-releaser.cutoffs)
}

func TestReservationSweeper_SweepReportsPartialProgress(t *testing.T) {
	releaser := &fakeReleaser{cutoffs: make(chan time.Time, 1), released: 1, err: errors.New("redis timeout")}
	s := NewReservationSweeper(releaser, time.Minute, time.Minute, zap.NewNop())

	assert.Equal(t, 1, s.Sweep(context.Background()))
}

func TestReservationSweeper_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	releaser := &fakeReleaser{cutoffs: make(chan time.Time, 10)}
	s := NewReservationSweeper(releaser, time.Minute, 5*time.Millisecond, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-releaser.cutoffs:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not tick")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
