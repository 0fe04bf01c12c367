package memo_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/memo/internal/apperr"
	"github.com/starford/memo/internal/index"
	"github.com/starford/memo/internal/memo"
	"github.com/starford/memo/internal/models"
	"github.com/starford/memo/internal/storage"
	"github.com/starford/memo/internal/testutil"
)

// stepClock returns t, then advances by step on each call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

var start = time.Date(2026, 10, 18, 9, 30, 15, 0, time.Local)

func newRepo(t *testing.T, step time.Duration, opts ...memo.Option) (*memo.Repository, *stepClock) {
	t.Helper()
	clock := &stepClock{t: start, step: step}
	opts = append([]memo.Option{memo.WithClock(clock.Now)}, opts...)
	return testutil.TestRepository(t, opts...), clock
}

func TestCreateScenario(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)

	h, err := repo.Create(ctx, "Hello world, this is a long note")
	require.NoError(t, err)
	assert.False(t, h.IsZero())

	rec, err := repo.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "Hello worl", rec.Title)
	assert.Equal(t, filepath.Join(repo.Dir(), "memo-2026-10-18-09-30-15.txt"), rec.FilePath)
	assert.True(t, rec.DateAdded.Equal(rec.DateModified))
	assert.True(t, rec.DateAdded.Equal(start))

	raw, err := os.ReadFile(rec.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "Hello world, this is a long note", string(raw))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTitle(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"short":           "short",
		"exactly10!":      "exactly10!",
		"eleven char":     "eleven cha",
		"日本語のメモを保存します。": "日本語のメモを保存し",
	}
	for in, want := range cases {
		assert.Equal(t, want, memo.Title(in), "Title(%q)", in)
	}
}

func TestTitleIsPrefixOfInvalidUTF8(t *testing.T) {
	content := "\xffabcdefghijklmn"
	title := memo.Title(content)
	assert.Equal(t, "\xffabcdefghi", title)
	assert.True(t, strings.HasPrefix(content, title))

	mixed := "ab\xe3\x81cd日本語efgh"
	assert.True(t, strings.HasPrefix(mixed, memo.Title(mixed)))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)

	cases := map[string]string{
		"one line":        "one line\n",
		"two\nlines\n":    "two\nlines\n",
		"no trailing\nnl": "no trailing\nnl\n",
		"":                "",
	}
	for in, want := range cases {
		h, err := repo.Create(ctx, in)
		require.NoError(t, err)
		got, err := repo.Load(ctx, &h)
		require.NoError(t, err)
		assert.Equal(t, want, got, "load(create(%q))", in)
	}
}

func TestLoadNilHandle(t *testing.T) {
	repo, _ := newRepo(t, time.Second)
	got, err := repo.Load(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestUpdatePreservesHandleAndDateAdded(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)

	h, err := repo.Create(ctx, "first version")
	require.NoError(t, err)
	before, err := repo.Get(ctx, h)
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, h, "second version"))

	after, err := repo.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.FilePath, after.FilePath)
	assert.True(t, after.DateAdded.Equal(before.DateAdded))
	assert.True(t, after.DateModified.After(before.DateModified))
	assert.Equal(t, "second ver", after.Title)

	got, err := repo.Load(ctx, &h)
	require.NoError(t, err)
	assert.Equal(t, "second version\n", got)
}

func TestUpdateStrictlyIncreasesWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, 0)

	h, err := repo.Create(ctx, "a")
	require.NoError(t, err)
	prev, _ := repo.Get(ctx, h)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Update(ctx, h, "b"))
		cur, _ := repo.Get(ctx, h)
		assert.True(t, cur.DateModified.After(prev.DateModified))
		prev = cur
	}
}

func TestListOrder(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)

	h1, _ := repo.Create(ctx, "one")
	h2, _ := repo.Create(ctx, "two")
	h3, _ := repo.Create(ctx, "three")

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []models.Handle{h3, h2, h1}, handles(list))

	require.NoError(t, repo.Update(ctx, h1, "one again"))
	list, _ = repo.List(ctx)
	assert.Equal(t, []models.Handle{h1, h3, h2}, handles(list))
}

func TestSameSecondCreatesGetDistinctFiles(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, 0)

	h1, err := repo.Create(ctx, "first")
	require.NoError(t, err)
	h2, err := repo.Create(ctx, "second")
	require.NoError(t, err)

	r1, _ := repo.Get(ctx, h1)
	r2, _ := repo.Get(ctx, h2)
	assert.NotEqual(t, r1.FilePath, r2.FilePath)
	assert.Equal(t, "memo-2026-10-18-09-30-15-1.txt", filepath.Base(r2.FilePath))

	c1, _ := repo.Load(ctx, &h1)
	c2, _ := repo.Load(ctx, &h2)
	assert.Equal(t, "first\n", c1)
	assert.Equal(t, "second\n", c2)
}

func TestUnknownHandle(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)
	h, _ := repo.Create(ctx, "keep")
	bogus := models.HandleFromID(999)

	err := repo.Update(ctx, bogus, "x")
	assert.ErrorIs(t, err, apperr.ErrUnknownHandle)

	text, err := repo.Load(ctx, &bogus)
	assert.ErrorIs(t, err, apperr.ErrUnknownHandle)
	assert.Equal(t, memo.DefaultMessages().FileNotFound, text)

	var zero models.Handle
	assert.ErrorIs(t, repo.Update(ctx, zero, "x"), apperr.ErrUnknownHandle)

	list, _ := repo.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, h, list[0].Handle())
	files, _ := filepath.Glob(filepath.Join(repo.Dir(), "*.txt"))
	assert.Len(t, files, 1)
}

func TestDirectoryFailureIsolation(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	dir := filepath.Join(blocker, "docs")
	store, err := storage.NewFS(dir)
	require.NoError(t, err)
	db := testutil.TestDB(t)
	repo, err := memo.NewRepository(memo.Config{Dir: dir}, store, db, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)

	_, err = repo.Create(ctx, "lost?")
	assert.ErrorIs(t, err, apperr.ErrDirectoryUnavailable)

	list, _ := db.List()
	assert.Empty(t, list)
	entries, _ := os.ReadDir(tmp)
	assert.Len(t, entries, 1)
}

// failingStore fails every write.
type failingStore struct {
	storage.Provider
}

func (failingStore) Write(string, string) error { return errors.New("disk full") }

func TestCreateWriteFailureLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	dir, fsStore := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	repo, err := memo.NewRepository(memo.Config{Dir: dir}, failingStore{fsStore}, db, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)

	_, err = repo.Create(ctx, "content")
	assert.ErrorIs(t, err, apperr.ErrWriteFailure)
	list, _ := db.List()
	assert.Empty(t, list)
}

// failingIndex fails inserts and touches, delegating everything else.
type failingIndex struct {
	index.NoteIndex
}

func (failingIndex) Insert(models.Record) (int64, error) {
	return 0, errors.New("database is locked")
}

func (failingIndex) Touch(int64, time.Time, string) error {
	return errors.New("database is locked")
}

func TestCreateIndexFailureKeepsOrphan(t *testing.T) {
	ctx := context.Background()
	dir, store := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	repo, err := memo.NewRepository(memo.Config{Dir: dir}, store, failingIndex{db}, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)

	_, err = repo.Create(ctx, "precious words")
	assert.ErrorIs(t, err, apperr.ErrIndexWriteFailure)

	files, _ := filepath.Glob(filepath.Join(dir, "*.txt"))
	require.Len(t, files, 1)
	raw, _ := os.ReadFile(files[0])
	assert.Equal(t, "precious words", string(raw))

	rep, err := repo.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, files, rep.Orphans)
	assert.Empty(t, rep.Broken)
}

func TestUpdateIndexFailureKeepsNewContent(t *testing.T) {
	ctx := context.Background()
	dir, store := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	good, err := memo.NewRepository(memo.Config{Dir: dir}, store, db, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	h, err := good.Create(ctx, "v1")
	require.NoError(t, err)
	before, _ := db.Get(h.ID())

	bad, err := memo.NewRepository(memo.Config{Dir: dir}, store, failingIndex{db}, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Update(ctx, h, "v2"), apperr.ErrIndexWriteFailure)

	got, _ := good.Load(ctx, &h)
	assert.Equal(t, "v2\n", got)
	after, _ := db.Get(h.ID())
	assert.True(t, after.DateModified.Equal(before.DateModified))
}

func TestUpdateWriteFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)
	h, err := repo.Create(ctx, "v1")
	require.NoError(t, err)
	before, _ := repo.Get(ctx, h)

	// Without its directory the atomic write cannot stage a temp file.
	require.NoError(t, os.RemoveAll(repo.Dir()))

	err = repo.Update(ctx, h, "v2")
	assert.ErrorIs(t, err, apperr.ErrWriteFailure)
	after, _ := repo.Get(ctx, h)
	assert.True(t, after.DateModified.Equal(before.DateModified))
	assert.Equal(t, before.Title, after.Title)
}

func TestLoadFileNotFound(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second, memo.WithMessages(memo.Messages{FileNotFound: "gone"}))
	h, _ := repo.Create(ctx, "soon deleted")
	rec, _ := repo.Get(ctx, h)
	require.NoError(t, os.Remove(rec.FilePath))

	text, err := repo.Load(ctx, &h)
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
	assert.Equal(t, "gone", text)

	rep, err := repo.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Broken, 1)
	assert.Equal(t, h, rep.Broken[0].Handle())
}

func TestLoadReadFailure(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)
	h, _ := repo.Create(ctx, "will become a dir")
	rec, _ := repo.Get(ctx, h)
	require.NoError(t, os.Remove(rec.FilePath))
	require.NoError(t, os.Mkdir(rec.FilePath, 0o755))

	text, err := repo.Load(ctx, &h)
	assert.ErrorIs(t, err, apperr.ErrReadFailure)
	assert.NotErrorIs(t, err, apperr.ErrFileNotFound)
	assert.Equal(t, memo.DefaultMessages().ReadFailed, text)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)
	h, _ := repo.Create(ctx, "bye")
	rec, _ := repo.Get(ctx, h)

	require.NoError(t, repo.Delete(ctx, h))
	_, err := os.Stat(rec.FilePath)
	assert.True(t, os.IsNotExist(err))
	_, err = repo.Get(ctx, h)
	assert.ErrorIs(t, err, apperr.ErrUnknownHandle)
	assert.ErrorIs(t, repo.Delete(ctx, h), apperr.ErrUnknownHandle)

	h2, _ := repo.Create(ctx, "next")
	assert.Greater(t, h2.ID(), h.ID())
}

func TestDeleteBrokenRecord(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)
	h, _ := repo.Create(ctx, "x")
	rec, _ := repo.Get(ctx, h)
	require.NoError(t, os.Remove(rec.FilePath))

	assert.NoError(t, repo.Delete(ctx, h))
	rep, _ := repo.Audit(ctx)
	assert.True(t, rep.Clean())
}

func TestAuditMissingDirectory(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)
	h, _ := repo.Create(ctx, "x")
	require.NoError(t, os.RemoveAll(repo.Dir()))

	rep, err := repo.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Orphans)
	require.Len(t, rep.Broken, 1)
	assert.Equal(t, h, rep.Broken[0].Handle())
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	var got []string
	var recs []models.Record
	repo, _ := newRepo(t, time.Second, memo.WithEventCallback(func(kind string, rec models.Record) {
		got = append(got, kind+" "+rec.Handle().String())
		recs = append(recs, rec)
	}))

	h, _ := repo.Create(ctx, "a")
	_ = repo.Update(ctx, h, "second body")
	_ = repo.Update(ctx, models.HandleFromID(404), "c")
	_ = repo.Delete(ctx, h)

	assert.Equal(t, []string{
		"created " + h.String(),
		"updated " + h.String(),
		"deleted " + h.String(),
	}, got)

	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].Title)
	assert.True(t, recs[0].DateModified.Equal(start))
	assert.Equal(t, "second bod", recs[1].Title)
	assert.True(t, recs[1].DateModified.After(recs[0].DateModified))
	assert.True(t, recs[1].DateAdded.Equal(recs[0].DateAdded))
	assert.Equal(t, recs[1].Title, recs[2].Title)
}

func handles(recs []models.Record) []models.Handle {
	out := make([]models.Handle, len(recs))
	for i, r := range recs {
		out[i] = r.Handle()
	}
	return out
}

// lockedIndex fails every lookup that is not a plain miss.
type lockedIndex struct {
	index.NoteIndex
}

func (lockedIndex) IDByPath(string) (int64, error) {
	return 0, errors.New("database is locked")
}

func (lockedIndex) GetPath(int64) (string, error) {
	return "", errors.New("database is locked")
}

func TestCreateNameLookupFailureReturns(t *testing.T) {
	ctx := context.Background()
	dir, store := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	repo, err := memo.NewRepository(memo.Config{Dir: dir}, store, lockedIndex{db}, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := repo.Create(ctx, "x")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperr.ErrIndexWriteFailure)
	case <-time.After(3 * time.Second):
		t.Fatal("Create did not return")
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.txt"))
	assert.Empty(t, files, "nothing is written when the name cannot be checked")
	list, _ := db.List()
	assert.Empty(t, list)
}

func TestLoadIndexFailureIsReadFailure(t *testing.T) {
	ctx := context.Background()
	dir, store := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	good, err := memo.NewRepository(memo.Config{Dir: dir}, store, db, memo.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	h, err := good.Create(ctx, "kept")
	require.NoError(t, err)

	bad, err := memo.NewRepository(memo.Config{Dir: dir}, store, lockedIndex{db},
		memo.WithLogger(testutil.DiscardLogger()),
		memo.WithMessages(memo.Messages{ReadFailed: "unreadable"}))
	require.NoError(t, err)

	text, err := bad.Load(ctx, &h)
	assert.ErrorIs(t, err, apperr.ErrReadFailure)
	assert.Equal(t, "unreadable", text)
}

func TestRoundTripLongLine(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Second)

	content := strings.Repeat("a", 17<<20)
	h, err := repo.Create(ctx, content)
	require.NoError(t, err)
	got, err := repo.Load(ctx, &h)
	require.NoError(t, err)
	assert.Equal(t, len(content)+1, len(got))
	assert.True(t, got == content+"\n")
}
