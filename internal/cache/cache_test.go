package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudebot/rudebot/internal/repository"
)

type staticRefs struct {
	refs []repository.ResourceRef
	err  error
}

func (s staticRefs) ResourceRefs(context.Context) ([]repository.ResourceRef, error) {
	return s.refs, s.err
}

func writeFile(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func newDir(t *testing.T) *ResourceDir {
	t.Helper()
	d, err := NewResourceDir(t.TempDir())
	require.NoError(t, err)
	return d
}

func TestResourceDir_Paths(t *testing.T) {
	d := newDir(t)

	p := d.PathFor(42)
	assert.Equal(t, filepath.Join(d.Root(), "42.audio"), p)

	id, ok := d.ItemIDFor(filepath.Base(p))
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)

	_, ok = d.ItemIDFor("notes.txt")
	assert.False(t, ok)

	a, b := d.TempPath(42), d.TempPath(42)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(filepath.Base(a), "42-"))
}

func TestResourceDir_Commit(t *testing.T) {
	d := newDir(t)

	tmp := d.TempPath(1)
	require.NoError(t, os.WriteFile(tmp, []byte("data"), 0o644))
	require.NoError(t, d.Commit(tmp, d.PathFor(1)))
	assert.True(t, d.Exists(d.PathFor(1)))
	assert.NoFileExists(t, tmp)

	empty := d.TempPath(2)
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.Error(t, d.Commit(empty, d.PathFor(2)))
	assert.NoFileExists(t, empty)
	assert.False(t, d.Exists(d.PathFor(2)))
}

func TestSweeper_RemovesUnreferenced(t *testing.T) {
	d := newDir(t)
	for _, id := range []int64{1, 2, 3} {
		writeFile(t, d.PathFor(id), time.Hour)
	}

	s := NewSweeper(d, staticRefs{refs: []repository.ResourceRef{
		{ItemID: 7, Path: d.PathFor(2)},
	}}, time.Minute, time.Hour, nil)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{d.PathFor(1), d.PathFor(3)}, res.Removed)
	assert.FileExists(t, d.PathFor(2))
	assert.NoFileExists(t, d.PathFor(1))
}

func TestSweeper_LeavesForeignFiles(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	db, err := repository.Open(filepath.Join(d.Root(), "rudebot.db"))
	require.NoError(t, err)
	repo := repository.NewRepo(db)
	t.Cleanup(func() { _ = repo.Close() })

	item, err := repo.AddItem(ctx, "room", "user", "kept", "kept", "")
	require.NoError(t, err)
	writeFile(t, d.PathFor(item.ID), time.Hour)
	writeFile(t, d.PathFor(item.ID+1), time.Hour)

	dbPath := filepath.Join(d.Root(), "rudebot.db")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dbPath, old, old))
	foreign := []string{"rudebot.db.bak", "notes.txt", "12.audio.bak"}
	for _, name := range foreign {
		writeFile(t, filepath.Join(d.Root(), name), time.Hour)
	}
	foreign = append(foreign, "rudebot.db")

	res, err := NewSweeper(d, repo, time.Minute, time.Hour, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.PathFor(item.ID + 1)}, res.Removed)
	for _, name := range foreign {
		assert.FileExists(t, filepath.Join(d.Root(), name))
	}
	assert.FileExists(t, d.PathFor(item.ID))

	n, err := repo.CountItems(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "database still usable after the sweep")
}

func TestSweeper_KeepsIDAddressedFilesOfLiveRows(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.PathFor(3), time.Hour)
	writeFile(t, d.PathFor(4), time.Hour)

	// Row 3 is still resolving: no path recorded yet.
	s := NewSweeper(d, staticRefs{refs: []repository.ResourceRef{{ItemID: 3}}}, time.Minute, time.Hour, nil)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{d.PathFor(4)}, res.Removed)
	assert.FileExists(t, d.PathFor(3))
}

func TestSweeper_SkipsFreshFiles(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.PathFor(9), 0)

	s := NewSweeper(d, staticRefs{}, time.Minute, time.Hour, nil)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.FileExists(t, d.PathFor(9))
}

func TestSweeper_ReclaimsStaleTemp(t *testing.T) {
	d := newDir(t)
	stale := d.TempPath(1)
	fresh := d.TempPath(2)
	writeFile(t, stale, 2*time.Hour)
	writeFile(t, fresh, time.Minute)

	s := NewSweeper(d, staticRefs{}, time.Minute, time.Hour, nil)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, res.Removed)
	assert.FileExists(t, fresh)
}

func TestSweeper_RowSnapshotFailureDeletesNothing(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.PathFor(1), time.Hour)

	s := NewSweeper(d, staticRefs{err: errors.New("db locked")}, time.Minute, time.Hour, nil)

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.FileExists(t, d.PathFor(1))
}

func TestSweeper_RunWithoutIntervalSweepsOnce(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.PathFor(1), time.Hour)

	done := make(chan struct{})
	go func() {
		NewSweeper(d, staticRefs{}, time.Minute, time.Hour, nil).Run(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run with no interval must return after one sweep")
	}
	assert.NoFileExists(t, d.PathFor(1))
}
