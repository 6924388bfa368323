package alignment

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soundloom/internal/fileutil"
	"soundloom/internal/library"
	"soundloom/internal/logging"
)

// Cache persists alignment results keyed by the combined track's content hash
// so re-exporting an unchanged text skips a WhisperX run. Each key is one JSON
// file under the cache directory; an entry recorded with a different model or
// language misses and is overwritten by the next Store.
type Cache struct {
	dir    string
	logger *slog.Logger
}

type cacheEntry struct {
	Model    string                  `json:"model"`
	Language string                  `json:"language"`
	CachedAt time.Time               `json:"cached_at"`
	Words    []library.WordTimestamp `json:"words"`
}

// NewCache creates a cache rooted at dir. An empty dir yields a cache whose
// operations are no-ops, so callers need no nil checks.
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		dir:    strings.TrimSpace(dir),
		logger: logging.NewComponentLogger(logger, "alignment-cache"),
	}
}

// Lookup returns the cached word sequence for the key when it was produced
// with the same model and language a fresh run would use.
func (c *Cache) Lookup(key, model, lang string) ([]library.WordTimestamp, bool) {
	if c.dir == "" || key == "" {
		return nil, false
	}

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("unreadable alignment cache entry",
			logging.String("key", key),
			logging.Error(err))
		return nil, false
	}
	if entry.Model != model || entry.Language != lang || len(entry.Words) == 0 {
		return nil, false
	}
	return entry.Words, true
}

// Store persists a result for the key, replacing any prior entry.
func (c *Cache) Store(key, model, lang string, words []library.WordTimestamp) error {
	if c.dir == "" || key == "" || len(words) == 0 {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	entry := cacheEntry{
		Model:    model,
		Language: lang,
		CachedAt: time.Now().UTC(),
		Words:    words,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.entryPath(key), data); err != nil {
		return fmt.Errorf("persist cache entry: %w", err)
	}
	return nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
