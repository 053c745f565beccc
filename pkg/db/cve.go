package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/vulnfeed/cve-db/pkg/types"
)

const (
	cveBucket       = "cve"
	publishedBucket = "published"

	// separates the timestamp from the CVE ID inside published index
	// keys; sorts before every printable character so ordering stays
	// purely chronological.
	indexSep = "\x00"
)

// UpsertCveRecord writes the canonical record keyed by its identifier
// and atomically replaces the full set of product refs for that CVE.
// The previous published-index entry is removed when the publication
// date changed, so a re-ingest never leaves a stale ordering key.
func (dbc Config) UpsertCveRecord(tx *bolt.Tx, record types.CveRecord, refs []types.ProductRef) error {
	eb := oops.With("cve_id", record.ID)

	bucket, err := tx.CreateBucketIfNotExists([]byte(cveBucket))
	if err != nil {
		return eb.With("bucket_name", cveBucket).Wrapf(err, "failed to create bucket")
	}

	if prev := bucket.Get([]byte(record.ID)); prev != nil {
		var old types.CveRecord
		if err = json.Unmarshal(prev, &old); err != nil {
			return eb.Wrapf(err, "json unmarshal error")
		}
		if err = dbc.deletePublishedIndex(tx, old); err != nil {
			return err
		}
	}

	if err = dbc.put(bucket, record.ID, record); err != nil {
		return eb.Wrapf(err, "failed to put record")
	}

	if err = dbc.putPublishedIndex(tx, record); err != nil {
		return err
	}

	return dbc.replaceProductRefs(tx, record.ID, refs)
}

func (dbc Config) putPublishedIndex(tx *bolt.Tx, record types.CveRecord) error {
	if record.Published == nil {
		return nil
	}
	bucket, err := tx.CreateBucketIfNotExists([]byte(publishedBucket))
	if err != nil {
		return oops.With("bucket_name", publishedBucket).Wrapf(err, "failed to create bucket")
	}
	return bucket.Put(publishedIndexKey(*record.Published, record.ID), []byte(record.ID))
}

func (dbc Config) deletePublishedIndex(tx *bolt.Tx, record types.CveRecord) error {
	if record.Published == nil {
		return nil
	}
	bucket := tx.Bucket([]byte(publishedBucket))
	if bucket == nil {
		return nil
	}
	if err := bucket.Delete(publishedIndexKey(*record.Published, record.ID)); err != nil {
		return oops.With("cve_id", record.ID).Wrapf(err, "failed to delete index key")
	}
	return nil
}

func publishedIndexKey(published time.Time, cveID string) []byte {
	return []byte(published.UTC().Format(time.RFC3339) + indexSep + cveID)
}

func (dbc Config) GetCveRecord(cveID string) (types.CveRecord, error) {
	var record types.CveRecord
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(cveBucket))
		if bucket == nil {
			return ErrRecordNotFound
		}
		value := bucket.Get([]byte(cveID))
		if value == nil {
			return ErrRecordNotFound
		}
		return json.Unmarshal(value, &record)
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return types.CveRecord{}, err
		}
		return types.CveRecord{}, oops.With("cve_id", cveID).Wrapf(err, "failed to get record")
	}
	return record, nil
}

func (dbc Config) ForEachCveRecord(fn func(record types.CveRecord) error) error {
	eb := oops.With("bucket_name", cveBucket)
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(cveBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var record types.CveRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return eb.With("cve_id", string(k)).Wrapf(err, "json unmarshal error")
			}
			return fn(record)
		})
	})
	if err != nil {
		return eb.Wrapf(err, "for each error")
	}
	return nil
}

// RecentCveIDs returns CVE identifiers ordered by publication date,
// newest first, up to limit when limit is positive. Records without a
// publication date have no index entry and are not listed here.
func (dbc Config) RecentCveIDs(limit int) ([]string, error) {
	var ids []string
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(publishedBucket))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			ids = append(ids, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, oops.With("bucket_name", publishedBucket).Wrapf(err, "cursor scan error")
	}
	return ids, nil
}
