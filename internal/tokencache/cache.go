// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokencache keeps short-lived vendor access tokens between process
// runs so that a script issuing several store calls does not trade its refresh
// token on every request. Entries expire through badger's TTL.
package tokencache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"
	"github.com/zeebo/blake3"

	"github.com/bartekus/webstore/internal/apperrors"
)

// Cache is a badger-backed token store.
type Cache struct {
	db     *badger.DB
	logger logr.Logger
}

// Open opens (or creates) the cache at path. An empty path opens an in-memory cache.
func Open(path string, logger logr.Logger) (*Cache, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, apperrors.WrapStorage(err, fmt.Sprintf("create cache directory %s", path))
		}
		opts = badger.DefaultOptions(path)
		opts.ValueLogFileSize = 1 << 20
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.WrapStorage(err, fmt.Sprintf("open token cache at %s", path))
	}
	return &Cache{db: db, logger: logger}, nil
}

// Key derives a cache key from credential parts. Secrets never appear in keys.
func Key(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key. ok is false on a miss or an expired entry.
func (c *Cache) Get(key string) (value string, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.logger.V(2).Info("token cache miss", "key", key[:min(8, len(key))])
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.WrapStorage(err, "get token")
	}
	return value, true, nil
}

// Set stores value under key for ttl. Non-positive ttls are ignored.
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl))
	})
	if err != nil {
		return apperrors.WrapStorage(err, "set token")
	}
	return nil
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return apperrors.WrapStorage(err, "delete token")
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
