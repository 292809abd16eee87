package eligibility

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS structured_segments (
	key        TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	segment    TEXT NOT NULL,
	result     TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// Cache stores structuring results keyed by model and segment so reruns over the same table skip
// segments that were already structured.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) a SQLite cache database at path. Use ":memory:" for a throwaway cache.
func OpenCache(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("OpenCache: path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("OpenCache: open: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("OpenCache: init schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// CacheKey identifies a segment structured by a given model.
func CacheKey(model, segment string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(segment))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (result string, ok bool, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT result FROM structured_segments WHERE key = ?`, key).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Cache.Get: %w", err)
	}
	return result, true, nil
}

// Put stores (or replaces) the result for key.
func (c *Cache) Put(ctx context.Context, key, model, segment, result string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO structured_segments (key, model, segment, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		key, model, segment, result, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("Cache.Put: %w", err)
	}
	return nil
}

// Len returns the number of cached results.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM structured_segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Cache.Len: %w", err)
	}
	return n, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// CachingStructurer consults Cache before calling Next. Only successful results are stored.
type CachingStructurer struct {
	Next  Structurer
	Cache *Cache
	Model string
}

func (s CachingStructurer) Structure(ctx context.Context, segment string) (string, error) {
	if s.Next == nil {
		return "", errors.New("CachingStructurer: Next is nil")
	}
	if s.Cache == nil {
		return s.Next.Structure(ctx, segment)
	}

	key := CacheKey(s.Model, segment)
	if out, ok, err := s.Cache.Get(ctx, key); err != nil {
		return "", err
	} else if ok {
		markCached(ctx)
		return out, nil
	}

	out, err := s.Next.Structure(ctx, segment)
	if err != nil {
		return "", err
	}
	if err := s.Cache.Put(ctx, key, s.Model, segment, out); err != nil {
		return "", err
	}
	return out, nil
}

type cacheProbeKey struct{}

// withCacheProbe lets ProcessRow learn whether a CachingStructurer served the row from cache.
func withCacheProbe(ctx context.Context, hit *bool) context.Context {
	return context.WithValue(ctx, cacheProbeKey{}, hit)
}

func markCached(ctx context.Context) {
	if hit, ok := ctx.Value(cacheProbeKey{}).(*bool); ok && hit != nil {
		*hit = true
	}
}
