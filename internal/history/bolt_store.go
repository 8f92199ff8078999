package history

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/plgd-dev/cinfo/internal/mote"
)

const readingsBucket = "readings"

// boltStore keeps one nested bucket per mote, keyed by receive time.
type boltStore struct {
	db *bolt.DB
}

func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(readingsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Record appends r under its mote.
func (b *boltStore) Record(r mote.Reading) error {
	value, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(readingsBucket))
		if root == nil {
			return fmt.Errorf("readings bucket missing")
		}
		bucket, err := root.CreateBucketIfNotExists([]byte(r.Mote))
		if err != nil {
			return err
		}
		return bucket.Put(timeKey(r.ReceivedAt), value)
	})
}

// Last returns the most recent reading of moteAddr.
func (b *boltStore) Last(moteAddr string) (mote.Reading, bool, error) {
	var r mote.Reading
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(readingsBucket))
		if root == nil {
			return fmt.Errorf("readings bucket missing")
		}
		bucket := root.Bucket([]byte(moteAddr))
		if bucket == nil {
			return nil
		}
		_, value := bucket.Cursor().Last()
		if value == nil {
			return nil
		}
		if err := yaml.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("decode reading: %w", err)
		}
		found = true
		return nil
	})
	return r, found, err
}

func timeKey(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}
