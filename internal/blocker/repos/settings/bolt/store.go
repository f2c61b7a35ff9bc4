package bolt

import (
	"context"
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/distraction-block/internal/blocker/common/clock"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/repos/settings"
)

var (
	bucketSettings = []byte("settings")
	bucketMeta     = []byte("meta")

	keyBlockedSites = []byte(settings.KeyBlockedSites)
	keyIsBlocking   = []byte(settings.KeyIsBlocking)
	keyUpdated      = []byte(settings.KeyUpdated)
)

const defaultOpenTimeout = time.Second

// Options configure the Bolt store.
type Options struct {
	Clock clock.Clock
	// Timeout bounds waiting for the file lock held by another process.
	Timeout time.Duration
}

// boltStore implements settings.Store using bbolt.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketSettings, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

func writeSettings(tx *bbolt.Tx, s domain.Settings) error {
	sites, flag, err := settings.Encode(s)
	if err != nil {
		return err
	}
	b := tx.Bucket(bucketSettings)
	if err := b.Put(keyBlockedSites, sites); err != nil {
		return err
	}
	return b.Put(keyIsBlocking, flag)
}

func writeMeta(tx *bbolt.Tx, updatedUnix int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(updatedUnix))
	return tx.Bucket(bucketMeta).Put(keyUpdated, buf)
}

// seams for tests
var (
	ensureBucketsFn = func(tx bucketCreator) error { return ensureBuckets(tx) }
	writeSettingsFn = writeSettings
	writeMetaFn     = writeMeta
)

// New opens (or creates) a Bolt database at path and ensures buckets exist.
// A fresh file holds no keys, which Load reports as first-install defaults.
func New(path string, opts Options) (settings.Store, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Load(ctx context.Context) (domain.Settings, error) {
	if err := ctx.Err(); err != nil {
		return domain.Settings{}, err
	}
	var out domain.Settings
	err := s.db.View(func(tx *bbolt.Tx) error {
		var sites, flag []byte
		if b := tx.Bucket(bucketSettings); b != nil {
			sites = b.Get(keyBlockedSites)
			flag = b.Get(keyIsBlocking)
		}
		var err error
		out, err = settings.Decode(sites, flag)
		return err
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return out, nil
}

// Save writes both fields and the updated stamp in one transaction.
func (s *boltStore) Save(ctx context.Context, st domain.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.clock.Now().Unix()
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := ensureBucketsFn(tx); err != nil {
			return err
		}
		if err := writeSettingsFn(tx, st); err != nil {
			return err
		}
		return writeMetaFn(tx, now)
	})
}

// Updated returns the time of the last successful Save, zero if never saved.
func (s *boltStore) Updated(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	var ts time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyUpdated); len(v) == 8 {
				ts = time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
			}
		}
		return nil
	})
	return ts, err
}

var (
	_ settings.Store       = (*boltStore)(nil)
	_ settings.Timestamped = (*boltStore)(nil)
)
