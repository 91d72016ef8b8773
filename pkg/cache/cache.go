// Package cache holds serialized entity snapshots in a process-external
// key/value store with per-entry TTL.
//
// The cache is a disposable projection of the relational store. Writers
// delete the owning entity's keys after every write; nothing is ever updated
// in place. Readers that get an error must treat it as a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("cache: invalid key")

// Cache is the look-aside store used for identity snapshots and menu trees.
type Cache interface {
	// Get decodes the snapshot stored under key into dest. found is false on
	// a miss; err is non-nil only when the backend failed.
	Get(ctx context.Context, key string, dest any) (found bool, err error)

	// Set stores value under key for ttl. A zero ttl keeps the entry until it
	// is evicted or deleted.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// UserKey is the identity snapshot key for a user.
func UserKey(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

// EntityKey is the generic per-entity key, e.g. CacheModel:Menu:7.
func EntityKey(entityType string, id any) string {
	return fmt.Sprintf("CacheModel:%s:%v", entityType, id)
}

// UserKeys builds identity keys for a batch of users.
func UserKeys(ids []int64) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, UserKey(id))
	}
	return keys
}

// KeyFamily strips the trailing id segment so metrics are labelled by entity
// kind instead of individual key.
func KeyFamily(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 {
		return key
	}
	return key[:i]
}
