package db

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/types"
)

const (
	SchemaVersion = 1

	metadataRootBucket   = "cve-db"
	metadataNestedBucket = "metadata"
	metadataKey          = "data"
)

var (
	db    *bolt.DB
	dbDir string

	ErrRecordNotFound = xerrors.New("record not found")
)

// Operation is the store contract the rest of the pipeline depends on.
// All mutation goes through UpsertCveRecord inside a BatchUpdate
// transaction; every read runs in its own view transaction and sees a
// consistent snapshot even while a batch ingestion is in progress.
type Operation interface {
	BatchUpdate(fn func(*bolt.Tx) error) error
	UpsertCveRecord(tx *bolt.Tx, record types.CveRecord, refs []types.ProductRef) error

	GetCveRecord(cveID string) (types.CveRecord, error)
	GetProductRefs(cveID string) ([]types.ProductRef, error)
	ForEachCveRecord(fn func(record types.CveRecord) error) error
	ForEachProductRef(fn func(ref types.ProductRef) error) error
	RecentCveIDs(limit int) ([]string, error)

	SetMetadata(metadata Metadata) error
	GetMetadata() (Metadata, error)
}

type Metadata struct {
	Version   int
	UpdatedAt time.Time
}

type Config struct {
}

func Init(cacheDir string) (err error) {
	dbPath := Path(cacheDir)
	dbDir = filepath.Dir(dbPath)
	if err = os.MkdirAll(dbDir, 0700); err != nil {
		return oops.With("dir_path", dbDir).Wrapf(err, "failed to mkdir")
	}

	db, err = bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return oops.With("file_path", dbPath).Wrapf(err, "failed to open db")
	}
	return nil
}

func Path(cacheDir string) string {
	dbDir = filepath.Join(cacheDir, "db")
	dbPath := filepath.Join(dbDir, "cve.db")
	return dbPath
}

func Close() error {
	if err := db.Close(); err != nil {
		return oops.Wrapf(err, "failed to close DB")
	}
	return nil
}

func (dbc Config) BatchUpdate(fn func(tx *bolt.Tx) error) error {
	err := db.Batch(fn)
	if err != nil {
		return oops.Wrapf(err, "error in batch update")
	}
	return nil
}

func (dbc Config) put(bucket *bolt.Bucket, key string, value interface{}) error {
	v, err := json.Marshal(value)
	if err != nil {
		return oops.With("key", key).Wrapf(err, "json marshal error")
	}
	return bucket.Put([]byte(key), v)
}

func (dbc Config) SetMetadata(metadata Metadata) error {
	err := db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(metadataRootBucket))
		if err != nil {
			return oops.With("bucket_name", metadataRootBucket).Wrapf(err, "failed to create bucket")
		}
		nested, err := root.CreateBucketIfNotExists([]byte(metadataNestedBucket))
		if err != nil {
			return oops.With("bucket_name", metadataNestedBucket).Wrapf(err, "failed to create bucket")
		}
		return dbc.put(nested, metadataKey, metadata)
	})
	if err != nil {
		return oops.Wrapf(err, "failed to save metadata")
	}
	return nil
}

func (dbc Config) GetMetadata() (Metadata, error) {
	var metadata Metadata
	err := db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(metadataRootBucket))
		if root == nil {
			return ErrRecordNotFound
		}
		nested := root.Bucket([]byte(metadataNestedBucket))
		if nested == nil {
			return ErrRecordNotFound
		}
		value := nested.Get([]byte(metadataKey))
		if value == nil {
			return ErrRecordNotFound
		}
		return json.Unmarshal(value, &metadata)
	})
	if err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}
