package blacklist

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// bucketBlacklist is the bbolt bucket backing the blacklist set, named
// after the well-known Key shared with the rest of this system's
// durable state rather than an unrelated literal.
var bucketBlacklist = []byte(Key)

// BoltStore is the default durable Store implementation, backed by a
// single bbolt bucket. Every host is stored as a bucket key with a
// one-byte marker value; membership is a key lookup rather than a
// decoded value.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at path and
// ensures the blacklist bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open blacklist database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlacklist)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create blacklist bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Contains(host string) (bool, error) {
	var present bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlacklist)
		present = b.Get([]byte(host)) != nil
		return nil
	})
	return present, err
}

func (s *BoltStore) Add(host string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlacklist)
		return b.Put([]byte(host), []byte{1})
	})
}

func (s *BoltStore) Remove(host string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlacklist)
		return b.Delete([]byte(host))
	})
}

func (s *BoltStore) List() ([]string, error) {
	var hosts []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlacklist)
		return b.ForEach(func(k, v []byte) error {
			hosts = append(hosts, string(k))
			return nil
		})
	})
	return hosts, err
}

var _ Store = (*BoltStore)(nil)
