package database

import (
	"bytes"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombolt "github.com/prysmaticlabs/prombbolt"
	bolt "go.etcd.io/bbolt"
)

const databaseFileName = "storagechain.db"

// storageBucket is the single flat keyspace of the storage schema. The key
// prefix, not the bucket, namespaces record families.
var storageBucket = []byte("storage")

// KVStore is a bolt-backed implementation of Database.
type KVStore struct {
	db           *bolt.DB
	databasePath string
}

var _ = Database(&KVStore{})

// NewKVStore initializes a new boltDB key-value store at the directory
// path specified and stores an open connection db object as a property
// of the KVStore struct.
func NewKVStore(dirPath string) (*KVStore, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second, InitialMmapSize: 10e6})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	kv := &KVStore{
		db:           boltDB,
		databasePath: dirPath,
	}

	if err := kv.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(storageBucket)
		return err
	}); err != nil {
		return nil, err
	}

	err = prometheus.Register(createBoltCollector(kv.db))

	return kv, err
}

// ClearDB removes the previously stored database in the data directory.
func (k *KVStore) ClearDB() error {
	if _, err := os.Stat(k.databasePath); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(createBoltCollector(k.db))
	return os.Remove(path.Join(k.databasePath, databaseFileName))
}

// Close closes the underlying BoltDB database.
func (k *KVStore) Close() error {
	prometheus.Unregister(createBoltCollector(k.db))
	return k.db.Close()
}

// DatabasePath at which this database writes files.
func (k *KVStore) DatabasePath() string {
	return k.databasePath
}

// Get retrieves the value stored under key, or nil if none exists.
func (k *KVStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := k.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(storageBucket).Get(key)
		if enc == nil {
			return nil
		}
		value = make([]byte, len(enc))
		copy(value, enc)
		return nil
	})
	return value, err
}

// Has checks whether key exists in the db.
func (k *KVStore) Has(key []byte) (bool, error) {
	var exists bool
	err := k.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(storageBucket).Get(key) != nil
		return nil
	})
	return exists, err
}

// PutBatch writes all entries in a single transaction.
func (k *KVStore) PutBatch(entries []Entry) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(storageBucket)
		for _, entry := range entries {
			if err := bkt.Put(entry.Key, entry.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the entry stored under key, if any.
func (k *KVStore) Delete(key []byte) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(storageBucket).Delete(key)
	})
}

// IteratorAscending yields pairs with keys >= from in ascending order.
func (k *KVStore) IteratorAscending(from []byte) (Iterator, error) {
	return k.newIterator(from, false)
}

// IteratorDescending yields pairs with keys <= to in descending order.
func (k *KVStore) IteratorDescending(to []byte) (Iterator, error) {
	return k.newIterator(to, true)
}

func (k *KVStore) newIterator(bound []byte, reverse bool) (Iterator, error) {
	// A read transaction pins the snapshot for the iterator's lifetime.
	tx, err := k.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &boltIterator{
		tx:      tx,
		cursor:  tx.Bucket(storageBucket).Cursor(),
		bound:   bound,
		reverse: reverse,
	}, nil
}

type boltIterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	bound   []byte
	reverse bool
	started bool
	closed  bool
	key     []byte
	value   []byte
}

func (it *boltIterator) Next() bool {
	if it.closed {
		return false
	}
	var k, v []byte
	switch {
	case !it.started && !it.reverse:
		if it.bound == nil {
			k, v = it.cursor.First()
		} else {
			k, v = it.cursor.Seek(it.bound)
		}
	case !it.started && it.reverse:
		if it.bound == nil {
			k, v = it.cursor.Last()
		} else {
			// Seek positions at the first key >= bound; step back when it
			// overshoots or runs off the end.
			k, v = it.cursor.Seek(it.bound)
			if k == nil {
				k, v = it.cursor.Last()
			} else if bytes.Compare(k, it.bound) > 0 {
				k, v = it.cursor.Prev()
			}
		}
	case it.reverse:
		k, v = it.cursor.Prev()
	default:
		k, v = it.cursor.Next()
	}
	it.started = true
	if k == nil {
		it.key, it.value = nil, nil
		return false
	}
	it.key, it.value = k, v
	return true
}

func (it *boltIterator) Key() []byte   { return it.key }
func (it *boltIterator) Value() []byte { return it.value }
func (it *boltIterator) Error() error  { return nil }

func (it *boltIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.tx.Rollback()
}

// createBoltCollector returns a prometheus collector specifically configured for boltdb.
func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombolt.New("boltDB", db)
}
