package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dshulyak/playground/core"
)

const (
	// Plans survive the process here when revert is disabled, so a later
	// cleanup can reverse exactly what was deployed.
	DefaultPath = "/var/run/playground/state.db"

	plansBucket = "plans"
)

/**
 * Persists the plans deployed under the given prefix.
 * @param path the database path (DefaultPath if empty)
 * @param prefix the playground prefix
 * @param plans every host's plan
 * @return error if any, nil otherwise.
 */
func Save(path, prefix string, plans []*core.Plan) error {
	encoded, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("encode plans: %w", err)
	}
	return withDB(path, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt, err := tx.CreateBucketIfNotExists([]byte(plansBucket))
			if err != nil {
				return err
			}
			return bkt.Put([]byte(prefix), encoded)
		})
	})
}

/**
 * Loads the plans recorded for the given prefix.
 * @return the plans, or nil when nothing was recorded.
 */
func Load(path, prefix string) ([]*core.Plan, error) {
	var encoded []byte
	err := withDB(path, func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			bkt := tx.Bucket([]byte(plansBucket))
			if bkt == nil {
				return nil
			}
			if value := bkt.Get([]byte(prefix)); value != nil {
				encoded = append([]byte(nil), value...)
			}
			return nil
		})
	})
	if err != nil || encoded == nil {
		return nil, err
	}
	var plans []*core.Plan
	if err := json.Unmarshal(encoded, &plans); err != nil {
		return nil, fmt.Errorf("decode plans for %s: %w", prefix, err)
	}
	return plans, nil
}

/**
 * Forgets the plans recorded for the given prefix.
 */
func Delete(path, prefix string) error {
	return withDB(path, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket([]byte(plansBucket))
			if bkt == nil {
				return nil
			}
			return bkt.Delete([]byte(prefix))
		})
	})
}

/**
 * Helper to open the database with a short timeout, run f, and close it.
 * The database is only held open for the duration of one operation.
 */
func withDB(path string, f func(*bolt.DB) error) error {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("store: open %s: %w", path, err)
	}
	defer func() {
		_ = db.Close()
	}()
	return f(db)
}
