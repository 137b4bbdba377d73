package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheMetaFile = "meta.json"
	cacheBodyFile = "body.ics"
)

// validators are the response headers that make the next request conditional.
type validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

func (v validators) apply(req *http.Request) {
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
}

type cacheEntry struct {
	URL        string     `json:"url"`
	Validators validators `json:"validators"`
	StoredAt   time.Time  `json:"stored_at"`

	body []byte
}

// diskCache keeps the last good body of every feed, one directory per URL.
type diskCache struct {
	root string
}

func (c diskCache) dir(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.root, hex.EncodeToString(sum[:8]))
}

// load returns the cached entry for url. A missing entry is an error; callers
// treat it as "nothing to fall back to".
func (c diskCache) load(url string) (cacheEntry, error) {
	dir := c.dir(url)

	raw, err := os.ReadFile(filepath.Join(dir, cacheMetaFile))
	if err != nil {
		return cacheEntry{}, err
	}
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return cacheEntry{}, fmt.Errorf("cache meta %s: %w", dir, err)
	}
	if e.URL != url {
		return cacheEntry{}, fmt.Errorf("cache dir %s belongs to another feed", dir)
	}
	if e.body, err = os.ReadFile(filepath.Join(dir, cacheBodyFile)); err != nil {
		return cacheEntry{}, err
	}
	return e, nil
}

// store writes the body before the metadata so the metadata never points at
// a body that is not there.
func (c diskCache) store(e cacheEntry) error {
	dir := c.dir(e.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, cacheBodyFile), e.body); err != nil {
		return err
	}
	e.StoredAt = time.Now().UTC()
	meta, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, cacheMetaFile), meta)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".itincal-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
