package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// cacheEntry is the on-disk envelope: the Result plus when it was written,
// so Get can enforce the TTL (spec §4.2 "two days").
type cacheEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Result   protocol.Result `json:"result"`
}

// Cache is the Executor's fingerprint-keyed Result cache. It provides
// single-flight coalescing of concurrent misses and atomic (temp+rename)
// writes, as spec §4.2 requires. golang.org/x/sync/singleflight is a
// literal match for "coalesce concurrent misses to one producer per
// fingerprint" — this is exactly the documented purpose of that package.
type Cache struct {
	dir   string
	ttl   time.Duration
	group singleflight.Group
	log   *zap.SugaredLogger
}

// NewCache creates a Cache rooted at dir (created if absent) with entries
// considered fresh for ttl.
func NewCache(dir string, ttl time.Duration, log *zap.SugaredLogger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, ttl: ttl, log: log}, nil
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

// Get returns a fresh cached Result for fingerprint, if one exists.
// Read and decode failures are treated as a miss (spec §7 "Cache:
// read/write failure: log, fall through to live execution"), never
// returned as an error; decode failures are logged, a missing or
// unreadable file is not.
func (c *Cache) Get(fingerprint string) (protocol.Result, bool) {
	data, err := os.ReadFile(c.path(fingerprint))
	if err != nil {
		return protocol.Result{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warnw("cache: corrupt entry, treating as miss", "fingerprint", fingerprint, "err", err)
		return protocol.Result{}, false
	}
	if time.Since(entry.StoredAt) > c.ttl {
		return protocol.Result{}, false
	}
	return entry.Result, true
}

// put writes res under fingerprint atomically: a temp file in the same
// directory, then an atomic rename (spec §4.2 "atomically (temp-file +
// rename, or equivalent)").
func (c *Cache) put(fingerprint string, res protocol.Result) {
	entry := cacheEntry{StoredAt: time.Now(), Result: res}
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warnw("cache: marshal failed", "err", err)
		return
	}
	tmp, err := os.CreateTemp(c.dir, "."+fingerprint+"-*.tmp")
	if err != nil {
		c.log.Warnw("cache: write failed", "err", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		c.log.Warnw("cache: write failed", "err", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		c.log.Warnw("cache: write failed", "err", err)
		return
	}
	if err := os.Rename(tmpName, c.path(fingerprint)); err != nil {
		os.Remove(tmpName)
		c.log.Warnw("cache: rename failed", "err", err)
	}
}

// Do returns the fresh cached Result for fingerprint if one exists;
// otherwise it calls produce at most once across any number of concurrent
// callers sharing the same fingerprint, caches the outcome, and returns it
// to all of them (spec §4.2 "Bounded parallelism" / "Caching").
func (c *Cache) Do(fingerprint string, produce func() (protocol.Result, error)) (protocol.Result, error) {
	if res, ok := c.Get(fingerprint); ok {
		return res, nil
	}
	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		if res, ok := c.Get(fingerprint); ok {
			return res, nil
		}
		res, err := produce()
		if err != nil {
			return protocol.Result{}, err
		}
		c.put(fingerprint, res)
		return res, nil
	})
	if err != nil {
		return protocol.Result{}, err
	}
	return v.(protocol.Result), nil
}
