package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/types"
)

const diskOnlyDoc = `
scenarios:
  - id: unattached-disk
    kind: disk
    predicate:
      state_equals: {value: unattached}
    cost_model: disk_storage
`

func writeScenarioFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreDefaults(t *testing.T) {
	st, err := NewStore("", testRegistry(t), nil)
	require.NoError(t, err)
	defer st.Close()

	set := st.Current()
	require.NotNil(t, set)
	assert.Equal(t, 15, set.Len())
	assert.NoError(t, st.Watch(), "watching without a file is a no-op")
}

func TestStoreLoadsFile(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), diskOnlyDoc)

	st, err := NewStore(path, testRegistry(t), nil)
	require.NoError(t, err)
	defer st.Close()

	set := st.Current()
	assert.Equal(t, 1, set.Len())
	assert.Len(t, set.ForKind(types.KindDisk), 1)
}

func TestStoreMissingFile(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "absent.yaml"), testRegistry(t), nil)
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestStoreReloadKeepsPreviousSetOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeScenarioFile(t, dir, diskOnlyDoc)

	st, err := NewStore(path, testRegistry(t), nil)
	require.NoError(t, err)
	defer st.Close()
	before := st.Current()

	require.NoError(t, os.WriteFile(path, []byte("{unclosed"), 0o644))
	require.Error(t, st.Reload())

	assert.Same(t, before, st.Current(), "a broken edit must not replace the active set")
}

func TestStoreWatchPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := writeScenarioFile(t, dir, diskOnlyDoc)

	st, err := NewStore(path, testRegistry(t), nil)
	require.NoError(t, err)
	defer st.Close()

	reloaded := make(chan *Set, 1)
	st.OnReload(func(s *Set) {
		select {
		case reloaded <- s:
		default:
		}
	})
	require.NoError(t, st.Watch())

	updated := diskOnlyDoc + `
  - id: aged-snapshot
    kind: snapshot
    predicate:
      age_at_least: {days: 90}
    cost_model: snapshot_storage
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case set := <-reloaded:
		assert.Equal(t, 2, set.Len())
		assert.NotEqual(t, "", set.Version())
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not pick up the edited scenario file")
	}

	assert.Equal(t, 2, st.Current().Len())
}
