// Package cache is the JSON disk cache for search and citation results.
// Files are named by the MD5 of the request key and carry their own
// expiry metadata, so the cache survives restarts and needs no index.
// All writes are best-effort: a failed write logs a warning and the
// operation proceeds.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"research-master/internal/domain"
	"research-master/internal/metrics"
)

type Status int

const (
	Miss Status = iota
	Hit
	Expired
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

const (
	searchesDir  = "searches"
	citationsDir = "citations"

	DefaultSearchTTL   = 1800 * time.Second
	DefaultCitationTTL = 900 * time.Second
	DefaultMaxBytes    = 500 << 20
)

type Config struct {
	Enabled     bool
	Directory   string
	SearchTTL   time.Duration
	CitationTTL time.Duration
	MaxBytes    int64
}

type Cache struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.Directory == "" {
		if base, err := os.UserCacheDir(); err == nil {
			cfg.Directory = filepath.Join(base, "research-master")
		} else {
			cfg.Directory = filepath.Join(os.TempDir(), "research-master")
		}
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.CitationTTL <= 0 {
		cfg.CitationTTL = DefaultCitationTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{cfg: cfg, logger: logger}
}

func (c *Cache) Enabled() bool     { return c.cfg.Enabled }
func (c *Cache) Directory() string { return c.cfg.Directory }

// SearchKey derives the cache key for a search request. Optional query
// dimensions participate only when set, so equivalent requests collide.
func SearchKey(q *domain.SearchQuery, source string) string {
	parts := []string{q.Query, source, fmt.Sprintf("%d", q.MaxResults)}
	if q.Year != "" {
		parts = append(parts, q.Year)
	}
	if q.Author != "" {
		parts = append(parts, q.Author)
	}
	if q.Category != "" {
		parts = append(parts, q.Category)
	}
	return hashKey(strings.Join(parts, "|"))
}

// CitationKey covers citations, references and related lookups, which
// differ only in the op prefix.
func CitationKey(op, paperID, source string, max int) string {
	return hashKey(fmt.Sprintf("%s|%s|%s|%d", op, paperID, source, max))
}

func hashKey(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	Metadata entryMetadata          `json:"metadata"`
	Response *domain.SearchResponse `json:"response"`
}

type entryMetadata struct {
	CachedAt  int64  `json:"cached_at"`
	ExpiresAt int64  `json:"expires_at"`
	SourceID  string `json:"source_id"`
	Query     string `json:"query"`
}

func (c *Cache) GetSearch(key string) (*domain.SearchResponse, Status) {
	return c.get(searchesDir, key)
}

func (c *Cache) SetSearch(key, sourceID, query string, resp *domain.SearchResponse) {
	c.set(searchesDir, key, sourceID, query, c.cfg.SearchTTL, resp)
}

func (c *Cache) GetCitations(key string) (*domain.SearchResponse, Status) {
	return c.get(citationsDir, key)
}

func (c *Cache) SetCitations(key, sourceID, query string, resp *domain.SearchResponse) {
	c.set(citationsDir, key, sourceID, query, c.cfg.CitationTTL, resp)
}

func (c *Cache) get(sub, key string) (*domain.SearchResponse, Status) {
	if !c.cfg.Enabled {
		return nil, Miss
	}
	path := c.path(sub, key)
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.ObserveCache(sub, "miss")
		return nil, Miss
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt files count as misses and are removed.
		os.Remove(path)
		metrics.ObserveCache(sub, "miss")
		return nil, Miss
	}
	if time.Now().Unix() >= e.Metadata.ExpiresAt {
		os.Remove(path)
		metrics.ObserveCache(sub, "expired")
		return nil, Expired
	}
	metrics.ObserveCache(sub, "hit")
	return e.Response, Hit
}

func (c *Cache) set(sub, key, sourceID, query string, ttl time.Duration, resp *domain.SearchResponse) {
	if !c.cfg.Enabled || resp == nil {
		return
	}
	now := time.Now()
	e := entry{
		Metadata: entryMetadata{
			CachedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
			SourceID:  sourceID,
			Query:     query,
		},
		Response: resp,
	}
	data, err := json.Marshal(&e)
	if err != nil {
		c.warn("encoding cache entry", err)
		return
	}

	dir := filepath.Join(c.cfg.Directory, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.warn("creating cache directory", err)
		return
	}
	tmp, err := os.CreateTemp(dir, key+"-*.tmp")
	if err != nil {
		c.warn("creating cache temp file", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.warn("writing cache entry", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		c.warn("closing cache temp file", err)
		return
	}
	path := c.path(sub, key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		c.warn("renaming cache entry", err)
		return
	}
	metrics.ObserveCache(sub, "write")
	c.enforceCap(path)
}

// enforceCap prunes the oldest entries until the cache fits its size
// budget. The entry just written is exempt, so a single oversized
// response still caches rather than evicting itself.
func (c *Cache) enforceCap(keep string) {
	type cacheFile struct {
		path string
		size int64
		mod  time.Time
	}
	var files []cacheFile
	var total int64
	for _, sub := range []string{searchesDir, citationsDir} {
		dir := filepath.Join(c.cfg.Directory, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, de := range entries {
			if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			files = append(files, cacheFile{filepath.Join(dir, de.Name()), info.Size(), info.ModTime()})
			total += info.Size()
		}
	}
	if total <= c.cfg.MaxBytes {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files {
		if total <= c.cfg.MaxBytes {
			return
		}
		if f.path == keep {
			continue
		}
		if err := os.Remove(f.path); err == nil {
			total -= f.size
			metrics.ObserveCache("cache", "evict")
		}
	}
}

func (c *Cache) warn(msg string, err error) {
	metrics.ObserveCache("cache", "write_error")
	c.logger.Warn(msg+" failed", slog.String("error", err.Error()))
}

func (c *Cache) path(sub, key string) string {
	return filepath.Join(c.cfg.Directory, sub, key+".json")
}

// ---------- Maintenance ----------

// ClearAll removes every cached entry and reports how many files went.
func (c *Cache) ClearAll() (int, error) {
	n1, err1 := c.clear(searchesDir)
	n2, err2 := c.clear(citationsDir)
	if err1 != nil {
		return n1 + n2, err1
	}
	return n1 + n2, err2
}

func (c *Cache) ClearSearches() (int, error) { return c.clear(searchesDir) }

func (c *Cache) ClearCitations() (int, error) { return c.clear(citationsDir) }

func (c *Cache) clear(sub string) (int, error) {
	dir := filepath.Join(c.cfg.Directory, sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, de.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes what is on disk right now.
type Stats struct {
	Enabled            bool   `json:"enabled"`
	Directory          string `json:"directory"`
	Searches           int    `json:"searches"`
	Citations          int    `json:"citations"`
	TotalBytes         int64  `json:"total_bytes"`
	MaxBytes           int64  `json:"max_bytes"`
	SearchTTLSeconds   int    `json:"search_ttl_seconds"`
	CitationTTLSeconds int    `json:"citation_ttl_seconds"`
}

func (c *Cache) Stats() Stats {
	st := Stats{
		Enabled:            c.cfg.Enabled,
		Directory:          c.cfg.Directory,
		MaxBytes:           c.cfg.MaxBytes,
		SearchTTLSeconds:   int(c.cfg.SearchTTL / time.Second),
		CitationTTLSeconds: int(c.cfg.CitationTTL / time.Second),
	}
	st.Searches, st.TotalBytes = c.scan(searchesDir, st.TotalBytes)
	st.Citations, st.TotalBytes = c.scan(citationsDir, st.TotalBytes)
	return st
}

func (c *Cache) scan(sub string, bytes int64) (int, int64) {
	entries, err := os.ReadDir(filepath.Join(c.cfg.Directory, sub))
	if err != nil {
		return 0, bytes
	}
	count := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		count++
		if info, err := de.Info(); err == nil {
			bytes += info.Size()
		}
	}
	return count, bytes
}
