package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSweeper struct {
	removed int64
	err     error
	calls   int
}

func (s *stubSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls++
	return s.removed, s.err
}

type stubPurger struct {
	purged int
}

func (p *stubPurger) Purge() int {
	return p.purged
}

func TestCleanupManager_Run(t *testing.T) {
	tests := []struct {
		name        string
		sweeper     *stubSweeper
		purger      RecordPurger
		wantStatus  string
		wantRemoved int64
		wantPurged  int
		wantErr     bool
	}{
		{
			name:        "sessions and records",
			sweeper:     &stubSweeper{removed: 4},
			purger:      &stubPurger{purged: 7},
			wantStatus:  "succeeded",
			wantRemoved: 4,
			wantPurged:  7,
		},
		{
			name:        "without limiter",
			sweeper:     &stubSweeper{removed: 2},
			wantStatus:  "succeeded",
			wantRemoved: 2,
		},
		{
			name:       "sweep failure",
			sweeper:    &stubSweeper{err: errors.New("db down")},
			purger:     &stubPurger{purged: 1},
			wantStatus: "failed",
			wantPurged: 1,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewCleanupManager(tt.sweeper, tt.purger, NewMetricsCollector(), zap.NewNop())

			run, err := cm.Run(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.NotEmpty(t, run.Error)
			} else {
				require.NoError(t, err)
			}

			assert.NotEmpty(t, run.ID)
			assert.Equal(t, tt.wantStatus, run.Status)
			assert.Equal(t, tt.wantRemoved, run.SessionsRemoved)
			assert.Equal(t, tt.wantPurged, run.RecordsPurged)
			assert.False(t, run.EndTime.Before(run.StartTime))
			assert.Equal(t, 1, tt.sweeper.calls)
		})
	}
}

func TestCleanupManager_Stats(t *testing.T) {
	sweeper := &stubSweeper{removed: 3}
	cm := NewCleanupManager(sweeper, &stubPurger{purged: 2}, NewMetricsCollector(), zap.NewNop())

	first, err := cm.Run(context.Background())
	require.NoError(t, err)

	sweeper.err = errors.New("timeout")
	sweeper.removed = 0
	second, err := cm.Run(context.Background())
	require.Error(t, err)

	stats := cm.Stats()
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, int64(3), stats.TotalSessionsRemoved)
	assert.Equal(t, 4, stats.TotalRecordsPurged)
	require.Len(t, stats.Recent, 2)
	assert.Equal(t, second.ID, stats.Recent[0].ID)
	assert.Equal(t, first.ID, stats.Recent[1].ID)
}
