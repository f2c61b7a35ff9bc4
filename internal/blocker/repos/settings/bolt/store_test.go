package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/distraction-block/internal/blocker/common/clock"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/repos/settings"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "settings.db")
}

func openStore(t *testing.T, path string, clk clock.Clock) settings.Store {
	t.Helper()
	st, err := New(path, Options{Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type assertErr struct{}

func (assertErr) Error() string { return "assert error" }

func TestBoltStore_FirstInstallDefaults(t *testing.T) {
	st := openStore(t, tempDB(t), nil)
	got, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)
}

func TestBoltStore_SaveLoadAndPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)
	clk := &clock.MockClock{CurrentTime: time.Unix(1_760_000_000, 0)}

	st, err := New(path, Options{Clock: clk})
	require.NoError(t, err)
	want := domain.Settings{BlockedSites: []string{"facebook.com", "twitter.com"}, IsBlocking: true}
	require.NoError(t, st.Save(ctx, want))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, st.Close())

	reopened := openStore(t, path, clk)
	got, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ts, err := reopened.(settings.Timestamped).Updated(ctx)
	require.NoError(t, err)
	assert.Equal(t, clk.CurrentTime.Unix(), ts.Unix())
}

func TestBoltStore_UpdatedZeroBeforeSave(t *testing.T) {
	st := openStore(t, tempDB(t), nil)
	ts, err := st.(settings.Timestamped).Updated(context.Background())
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestBoltStore_OverwriteKeepsOrder(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, tempDB(t), nil)
	require.NoError(t, st.Save(ctx, domain.Settings{BlockedSites: []string{"a.com", "b.com"}, IsBlocking: true}))
	require.NoError(t, st.Save(ctx, domain.Settings{BlockedSites: []string{"c.com", "a.com"}}))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.com", "a.com"}, got.BlockedSites)
	assert.False(t, got.IsBlocking)
}

func TestBoltStore_CorruptValue(t *testing.T) {
	st := openStore(t, tempDB(t), nil)
	bs := st.(*boltStore)
	require.NoError(t, bs.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keyBlockedSites, []byte("{oops"))
	}))
	_, err := st.Load(context.Background())
	assert.ErrorContains(t, err, settings.KeyBlockedSites)
}

func TestBoltStore_MissingBucketLoadsDefaults(t *testing.T) {
	st := openStore(t, tempDB(t), nil)
	bs := st.(*boltStore)
	require.NoError(t, bs.db.Update(func(tx *bbolt.Tx) error { return tx.DeleteBucket(bucketSettings) }))

	got, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)

	// Save recreates the bucket.
	require.NoError(t, st.Save(context.Background(), domain.Settings{IsBlocking: true}))
	got, err = st.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsBlocking)
}

func TestBoltStore_CancelledContext(t *testing.T) {
	st := openStore(t, tempDB(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, st.Save(ctx, domain.DefaultSettings()), context.Canceled)
	_, err = st.(settings.Timestamped).Updated(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeBucketCreator struct{ errs map[string]error }

func (f fakeBucketCreator) CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error) {
	if err := f.errs[string(name)]; err != nil {
		return nil, err
	}
	return nil, nil
}

func TestNew_EnsureBucketsErrors(t *testing.T) {
	for _, fail := range []string{string(bucketSettings), string(bucketMeta)} {
		t.Run(fail, func(t *testing.T) {
			old := ensureBucketsFn
			ensureBucketsFn = func(bucketCreator) error {
				return ensureBuckets(fakeBucketCreator{errs: map[string]error{fail: assertErr{}}})
			}
			defer func() { ensureBucketsFn = old }()

			st, err := New(tempDB(t), Options{})
			assert.Error(t, err)
			assert.Nil(t, st)
		})
	}
}

func TestNew_OpenError(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "no-such-dir", "settings.db")
	st, err := New(bad, Options{})
	assert.Error(t, err)
	assert.Nil(t, st)
}

func TestNew_LockedByAnotherHandle(t *testing.T) {
	path := tempDB(t)
	openStore(t, path, nil)

	st, err := New(path, Options{Timeout: 50 * time.Millisecond})
	assert.Error(t, err, "second writer must not get the file")
	assert.Nil(t, st)
}

func TestSave_ErrorPathsLeaveRecordUntouched(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, tempDB(t), nil)
	orig := domain.Settings{BlockedSites: []string{"a.com"}, IsBlocking: true}
	require.NoError(t, st.Save(ctx, orig))
	next := domain.Settings{BlockedSites: []string{"b.com"}}

	oldEns := ensureBucketsFn
	ensureBucketsFn = func(bucketCreator) error { return assertErr{} }
	assert.Error(t, st.Save(ctx, next))
	ensureBucketsFn = oldEns

	oldWrite := writeSettingsFn
	writeSettingsFn = func(*bbolt.Tx, domain.Settings) error { return assertErr{} }
	assert.Error(t, st.Save(ctx, next))
	writeSettingsFn = oldWrite

	oldMeta := writeMetaFn
	writeMetaFn = func(*bbolt.Tx, int64) error { return assertErr{} }
	assert.Error(t, st.Save(ctx, next))
	writeMetaFn = oldMeta

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, orig, got, "failed transactions must roll back")
}
