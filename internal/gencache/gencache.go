// Package gencache persists per-library generation fingerprints so the
// build pipeline can skip template expansion when nothing that feeds the
// generated sources has changed.
package gencache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when Fingerprint format changes
const fingerprintSchemaVersion uint16 = 1

// Cache хранит отпечатки генерации по имени библиотеки на диске.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Fingerprint captures every input the generated units of a library
// depend on. Two equal fingerprints mean regeneration would write the
// exact same files.
type Fingerprint struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Library      string
	TemplateHash string   // hex SHA-256 of the template content
	AxisDigest   string   // content hash of the axis set
	Tokens       []string // placeholders declared outside the template
	Files        []string // generated file names, in combination order
}

// New builds a fingerprint for the current inputs.
func New(library string, templateContent []byte, axisDigest string, tokens, files []string) *Fingerprint {
	return &Fingerprint{
		Schema:       fingerprintSchemaVersion,
		Library:      library,
		TemplateHash: HashContent(templateContent),
		AxisDigest:   axisDigest,
		Tokens:       slices.Clone(tokens),
		Files:        slices.Clone(files),
	}
}

// HashContent returns the hex SHA-256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Open initializes a cache rooted at dir, creating the directory when
// absent.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(library string) string {
	return filepath.Join(c.dir, library+".mp")
}

// Put serializes and writes a fingerprint to the cache.
func (c *Cache) Put(fp *Fingerprint) error {
	if c == nil || fp == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(fp.Library)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		// после успешного Rename файла уже нет, это не ошибка
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "gencache: failed to remove temp file: %v\n", rmErr)
		}
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(fp); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads the fingerprint stored for library. A missing entry, a schema
// mismatch or a corrupt file is a miss, not an error: the worst outcome
// of a miss is one redundant regeneration.
func (c *Cache) Get(library string) (*Fingerprint, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(library))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() {
		_ = f.Close()
	}()

	var fp Fingerprint
	if err := msgpack.NewDecoder(f).Decode(&fp); err != nil {
		return nil, false, nil
	}
	if fp.Schema != fingerprintSchemaVersion {
		return nil, false, nil
	}
	return &fp, true, nil
}

// Drop removes the fingerprint for library if present.
func (c *Cache) Drop(library string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.pathFor(library)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DropAll invalidates the whole cache, useful after format changes.
// The cache stays usable afterwards.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// тривиально: переименуем каталог, удалим и создадим заново
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(c.dir, 0o755)
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

// Matches reports whether fp would still be produced by the inputs
// described in want.
func (fp *Fingerprint) Matches(want *Fingerprint) bool {
	if fp == nil || want == nil {
		return false
	}
	return fp.Schema == want.Schema &&
		fp.Library == want.Library &&
		fp.TemplateHash == want.TemplateHash &&
		fp.AxisDigest == want.AxisDigest &&
		slices.Equal(fp.Tokens, want.Tokens) &&
		slices.Equal(fp.Files, want.Files)
}

// OutputsExist reports whether every named file is present in dir. A
// matching fingerprint only allows skipping generation when the outputs
// it promised are actually on disk.
func OutputsExist(dir string, files []string) bool {
	for _, name := range files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
