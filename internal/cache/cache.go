// Package cache implements the per-repository merge cache: a durable
// key-value store that collects line and file records of one rebuild and
// merges line observations coming from different branches.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

var (
	linesBucket = []byte("lines")
	filesBucket = []byte("files")
)

// txChunkSize bounds the number of puts per write transaction.
const txChunkSize = 10000

// lineEntry is the stored form of a line record. Keys are derived from a
// hash of the content, so the full key is kept in the value.
type lineEntry struct {
	Key      domain.LineKey `json:"key"`
	Branches string         `json:"branches"`
}

// MergeCache is a bbolt backed store with a lines table and a files table.
type MergeCache struct {
	db   *bolt.DB
	path string
}

// Create opens an empty cache at path, discarding anything left there by an
// earlier run.
func Create(path string) (*MergeCache, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to reset cache: %w", err)
	}
	return Open(path)
}

// Open opens or creates the cache at path.
func Open(path string) (*MergeCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{linesBucket, filesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache %s: %w", path, err)
	}

	return &MergeCache{db: db, path: path}, nil
}

func lineStoreKey(key domain.LineKey) []byte {
	return []byte(key.Path + "\x00" + strconv.Itoa(key.LineNumber) + "\x00" + strconv.FormatUint(xxhash.Sum64String(key.Content), 16))
}

// WriteAndPersist merges lines and files into the store and commits them.
// Line branches are appended to the stored branch list, files are kept as a
// set. On success both maps are emptied.
func (c *MergeCache) WriteAndPersist(lines map[domain.LineKey]string, files map[domain.FileRecord]struct{}) error {
	pending := make([]domain.LineKey, 0, min(len(lines), txChunkSize))
	for key := range lines {
		pending = append(pending, key)
		if len(pending) == txChunkSize {
			if err := c.mergeLines(pending, lines); err != nil {
				return err
			}
			pending = pending[:0]
		}
	}
	if err := c.mergeLines(pending, lines); err != nil {
		return err
	}

	records := make([]domain.FileRecord, 0, min(len(files), txChunkSize))
	for r := range files {
		records = append(records, r)
		if len(records) == txChunkSize {
			if err := c.putFiles(records); err != nil {
				return err
			}
			records = records[:0]
		}
	}
	if err := c.putFiles(records); err != nil {
		return err
	}

	clear(lines)
	clear(files)
	return nil
}

func (c *MergeCache) mergeLines(keys []domain.LineKey, lines map[domain.LineKey]string) error {
	if len(keys) == 0 {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(linesBucket)
		for _, key := range keys {
			storeKey := lineStoreKey(key)
			entry := lineEntry{Key: key}
			if existing := b.Get(storeKey); existing != nil {
				if err := json.Unmarshal(existing, &entry); err != nil {
					return fmt.Errorf("corrupt line entry: %w", err)
				}
			}
			entry.Branches = domain.MergeBranches(entry.Branches, lines[key])

			value, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := b.Put(storeKey, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist lines: %w", err)
	}
	return nil
}

func (c *MergeCache) putFiles(records []domain.FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		for _, r := range records {
			key, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := b.Put(key, []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist files: %w", err)
	}
	return nil
}

// ReadAndClear streams every stored line and file record to the callbacks and
// then empties the store. A callback error stops the stream and leaves the
// store untouched.
func (c *MergeCache) ReadAndClear(onLine func(key domain.LineKey, branches string) error, onFile func(r domain.FileRecord) error) error {
	err := c.db.View(func(tx *bolt.Tx) error {
		err := tx.Bucket(linesBucket).ForEach(func(_, v []byte) error {
			var entry lineEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt line entry: %w", err)
			}
			return onLine(entry.Key, entry.Branches)
		})
		if err != nil {
			return err
		}

		return tx.Bucket(filesBucket).ForEach(func(k, _ []byte) error {
			var r domain.FileRecord
			if err := json.Unmarshal(k, &r); err != nil {
				return fmt.Errorf("corrupt file entry: %w", err)
			}
			return onFile(r)
		})
	})
	if err != nil {
		return err
	}

	return c.clear()
}

func (c *MergeCache) clear() error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{linesBucket, filesBucket} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Len returns the number of stored line and file records.
func (c *MergeCache) Len() (lines, files int, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		lines = tx.Bucket(linesBucket).Stats().KeyN
		files = tx.Bucket(filesBucket).Stats().KeyN
		return nil
	})
	return lines, files, err
}

// Path returns the location of the store file.
func (c *MergeCache) Path() string {
	return c.path
}

// Close closes the store.
func (c *MergeCache) Close() error {
	return c.db.Close()
}

// Remove closes the store and deletes its file.
func (c *MergeCache) Remove() error {
	closeErr := c.db.Close()
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return errors.Join(closeErr, fmt.Errorf("failed to remove cache: %w", err))
	}
	return closeErr
}
