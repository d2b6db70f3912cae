package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadLatest(t *testing.T) {
	s := openTestStore(t)
	run := NewRunID()

	_, err := s.Latest(run)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, it := range []int{0, 2, 10, 1} {
		require.NoError(t, s.Save(run, Checkpoint{
			Iteration:     it,
			Model:         []byte(`{"root":[1]}`),
			Lambda:        []float64{float64(it), 0.5},
			LogLikelihood: -float64(100 - it),
		}))
	}

	cp, err := s.Load(run, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cp.Iteration)
	assert.Equal(t, []float64{2, 0.5}, cp.Lambda)
	assert.JSONEq(t, `{"root":[1]}`, string(cp.Model))
	assert.False(t, cp.SavedAt.IsZero())

	_, err = s.Load(run, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := s.Latest(run)
	require.NoError(t, err)
	assert.Equal(t, 10, latest.Iteration)

	iters, err := s.Iterations(run)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 10}, iters)
}

func TestRunsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	a, b := NewRunID(), NewRunID()
	require.NoError(t, s.Save(a, Checkpoint{Iteration: 5}))
	require.NoError(t, s.Save(b, Checkpoint{Iteration: 1}))

	latest, err := s.Latest(a)
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Iteration)

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, runs)
}

func TestSaveRejectsBadRunID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save("not-a-uuid", Checkpoint{}))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Save(NewRunID(), Checkpoint{}))
	require.NoError(t, s.Close())
}
