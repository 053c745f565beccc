package db

import (
	"encoding/json"
	"errors"

	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/vulnfeed/cve-db/pkg/types"
)

const productBucket = "product"

// replaceProductRefs drops the nested bucket holding the CVE's current
// refs and refills it, all inside the caller's transaction. Keys are
// (vendor, product) pairs, so exact duplicates collapse on write and a
// repeated upsert cannot grow the set.
func (dbc Config) replaceProductRefs(tx *bolt.Tx, cveID string, refs []types.ProductRef) error {
	eb := oops.With("bucket_name", productBucket).With("cve_id", cveID)

	root, err := tx.CreateBucketIfNotExists([]byte(productBucket))
	if err != nil {
		return eb.Wrapf(err, "failed to create bucket")
	}

	if err = root.DeleteBucket([]byte(cveID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return eb.Wrapf(err, "failed to delete nested bucket")
	}

	if len(refs) == 0 {
		return nil
	}

	nested, err := root.CreateBucket([]byte(cveID))
	if err != nil {
		return eb.Wrapf(err, "failed to create nested bucket")
	}
	for _, ref := range refs {
		ref.CveID = cveID
		if err = dbc.put(nested, ref.Vendor+indexSep+ref.Product, ref); err != nil {
			return eb.Wrapf(err, "failed to put product ref")
		}
	}
	return nil
}

func (dbc Config) GetProductRefs(cveID string) ([]types.ProductRef, error) {
	var refs []types.ProductRef
	err := db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(productBucket))
		if root == nil {
			return nil
		}
		nested := root.Bucket([]byte(cveID))
		if nested == nil {
			return nil
		}
		return nested.ForEach(func(_, v []byte) error {
			var ref types.ProductRef
			if err := json.Unmarshal(v, &ref); err != nil {
				return oops.With("cve_id", cveID).Wrapf(err, "json unmarshal error")
			}
			refs = append(refs, ref)
			return nil
		})
	})
	if err != nil {
		return nil, oops.With("bucket_name", productBucket).Wrapf(err, "failed to get product refs")
	}
	return refs, nil
}

func (dbc Config) ForEachProductRef(fn func(ref types.ProductRef) error) error {
	eb := oops.With("bucket_name", productBucket)
	err := db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(productBucket))
		if root == nil {
			return nil
		}
		return root.ForEach(func(cveID, _ []byte) error {
			nested := root.Bucket(cveID)
			if nested == nil {
				return nil
			}
			return nested.ForEach(func(_, v []byte) error {
				var ref types.ProductRef
				if err := json.Unmarshal(v, &ref); err != nil {
					return eb.With("cve_id", string(cveID)).Wrapf(err, "json unmarshal error")
				}
				return fn(ref)
			})
		})
	})
	if err != nil {
		return eb.Wrapf(err, "for each error")
	}
	return nil
}
