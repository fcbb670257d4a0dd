package runner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/ranker"
	pkgredis "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/redis"
)

const keyPrefix = "qlm:ranked:"

// Store is the byte store behind the ranked-list cache. *redis.Client
// satisfies it; a missing key must produce an error for which
// redis.IsNilError is true.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Flusher deletes keys matching a glob pattern. *redis.Client satisfies it.
type Flusher interface {
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// InvalidateRankedLists deletes every cached ranked list held by f and
// returns the number of entries removed.
func InvalidateRankedLists(ctx context.Context, f Flusher) (int64, error) {
	return f.FlushByPattern(ctx, keyPrefix+"*")
}

// RankedListCache memoises ranked lists across runs. Entries are CBOR so
// that zero-evidence scores survive the round trip.
type RankedListCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewRankedListCache(store Store, ttl time.Duration) *RankedListCache {
	return &RankedListCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "ranked-list-cache"),
	}
}

type cachedList struct {
	Docs []ranker.RankedDoc `cbor:"d"`
}

func (c *RankedListCache) get(ctx context.Context, key string) ([]ranker.RankedDoc, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var entry cachedList
	if err := cbor.Unmarshal(data, &entry); err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		return nil, false
	}
	return entry.Docs, true
}

func (c *RankedListCache) set(ctx context.Context, key string, docs []ranker.RankedDoc) {
	data, err := cbor.Marshal(cachedList{Docs: docs})
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached list for key or computes and stores it.
// Concurrent callers with the same key share one computation. The boolean
// reports a cache hit.
func (c *RankedListCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() ([]ranker.RankedDoc, error),
) ([]ranker.RankedDoc, bool, error) {
	if docs, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return docs, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if docs, ok := c.get(ctx, key); ok {
			return docs, nil
		}
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.RankedDoc), false, nil
}

func (c *RankedListCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// CacheKey identifies a ranked list by everything that determines it: the
// collection content, the analyzer, the model parameters and the distinct
// query terms.
func CacheKey(fingerprint, analyzer string, lambda float64, k int, filterZero bool, terms []string) string {
	sorted := slices.Clone(terms)
	slices.Sort(sorted)
	raw := strings.Join([]string{
		fingerprint,
		analyzer,
		strconv.FormatFloat(lambda, 'g', -1, 64),
		strconv.Itoa(k),
		strconv.FormatBool(filterZero),
		strings.Join(sorted, "\x00"),
	}, "|")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
