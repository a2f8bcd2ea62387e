package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal", "ticks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(run string, seq uint64, at time.Time) model.Telemetry {
	return model.Telemetry{
		RunID:     run,
		Seq:       seq,
		Time:      at,
		State:     model.StateFollowingLine,
		Band:      model.BandSafe,
		Distance:  55.5,
		LineState: model.LineForward,
		Directive: model.Drive(model.SourceLine, 0, 10),
	}
}

func TestPublishAndLatest(t *testing.T) {
	s := openTemp(t)
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for seq := uint64(1); seq <= 300; seq++ {
		require.NoError(t, s.Publish(record("run-a", seq, start.Add(time.Duration(seq)*time.Millisecond))))
	}

	last, err := s.Latest("run-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), last.Seq)
	assert.Equal(t, model.StateFollowingLine, last.State)
	assert.Equal(t, model.Drive(model.SourceLine, 0, 10), last.Directive)

	_, err = s.Latest("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestTailKeepsTickOrder(t *testing.T) {
	s := openTemp(t)
	now := time.Now().UTC()
	for _, seq := range []uint64{1, 2, 256, 257, 3} {
		require.NoError(t, s.Publish(record("run-a", seq, now)))
	}

	recs, err := s.Tail("run-a", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []uint64{3, 256, 257}, []uint64{recs[0].Seq, recs[1].Seq, recs[2].Seq})

	all, err := s.Tail("run-a", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRuns(t *testing.T) {
	s := openTemp(t)
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Publish(record("later", 1, t0.Add(time.Hour))))
	require.NoError(t, s.Publish(record("earlier", 1, t0)))
	require.NoError(t, s.Publish(record("earlier", 2, t0.Add(time.Second))))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "earlier", runs[0].ID)
	assert.Equal(t, 2, runs[0].Ticks)
	assert.True(t, runs[0].Started.Equal(t0))
	assert.Equal(t, "later", runs[1].ID)
}

func TestPublishRequiresRunID(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.Publish(model.Telemetry{Seq: 1}))
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Publish(record("run-a", 7, time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	last, err := s.Latest("run-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), last.Seq)
}
